// Package room holds the room and actor records exchanged with the matchmaking
// service, the owned-room store, and the candidate selection heuristic used
// when joining.
package room

// Actor describes the local participant. It is passed to the remote service
// unchanged.
type Actor struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Spec describes the room to create when no existing room can be joined.
type Spec struct {
	Name       string            `json:"name" yaml:"name"`
	MaxPlayers int               `json:"maxPlayers" yaml:"max_players"`
	Private    bool              `json:"private,omitempty" yaml:"private,omitempty"`
	Data       map[string]string `json:"data,omitempty" yaml:"data,omitempty"`
}

// Record is a read-only snapshot of a room as reported by discovery or by a
// join/create response.
type Record struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	CurrentPlayers int               `json:"currentPlayers"`
	MaxPlayers     int               `json:"maxPlayers"`
	Data           map[string]string `json:"data,omitempty"`

	// Owned is derived locally from the OwnedStore; it is never transmitted.
	Owned bool `json:"-"`
}

// Full reports whether no seat is left.
func (r Record) Full() bool {
	return r.CurrentPlayers >= r.MaxPlayers
}
