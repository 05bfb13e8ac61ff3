package room

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile bundles the actor identity and the room to create, as loaded from a
// YAML file by the roomctl command.
type Profile struct {
	Actor Actor `yaml:"actor"`
	Room  Spec  `yaml:"room"`
}

// Validate checks the fields the matchmaking service requires.
func (p Profile) Validate() error {
	if p.Actor.Name == "" {
		return fmt.Errorf("profile: actor.name must not be empty")
	}
	if p.Room.MaxPlayers < 1 {
		return fmt.Errorf("profile: room.max_players must be >= 1, got %d", p.Room.MaxPlayers)
	}
	return nil
}

// LoadProfile reads and validates a YAML profile.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns a valid Profile or a non-nil error.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading profile %q: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parsing profile %q: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}
