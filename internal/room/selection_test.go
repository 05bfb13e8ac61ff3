package room

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ids(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestRank_FiltersGhostFullAndKeepsArena(t *testing.T) {
	rooms := []Record{
		{ID: "ghost", CurrentPlayers: 0, MaxPlayers: 4},
		{ID: "full", CurrentPlayers: 4, MaxPlayers: 4},
		{ID: "arena", CurrentPlayers: 2, MaxPlayers: 4, Name: "Arena"},
	}
	got := Rank(rooms, NewMemoryOwnedStore(), nil)
	require.Len(t, got, 1)
	assert.Equal(t, "arena", got[0].ID)
	assert.Equal(t, ScoreActive, got[0].Score)
}

func TestRank_RejectsMissingID(t *testing.T) {
	got := Rank([]Record{{CurrentPlayers: 1, MaxPlayers: 4}}, nil, nil)
	assert.Empty(t, got)
}

func TestRank_OwnedFirstOnEqualScore(t *testing.T) {
	owned := NewMemoryOwnedStore()
	owned.Add("mine")
	rooms := []Record{
		{ID: "theirs", CurrentPlayers: 1, MaxPlayers: 8},
		{ID: "mine", CurrentPlayers: 1, MaxPlayers: 8},
	}
	got := Rank(rooms, owned, nil)
	if diff := cmp.Diff([]string{"mine", "theirs"}, ids(got)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got[0].Owned)
	assert.False(t, got[1].Owned)
}

func TestRank_OwnedOutranksHigherScore(t *testing.T) {
	owned := NewMemoryOwnedStore()
	owned.Add("crowded-mine")
	rooms := []Record{
		{ID: "quiet", CurrentPlayers: 1, MaxPlayers: 10, Name: "Quiet Lounge"},
		{ID: "crowded-mine", CurrentPlayers: 9, MaxPlayers: 10},
	}
	assert.Equal(t, []string{"crowded-mine", "quiet"}, ids(Rank(rooms, owned, nil)))
}

func TestRank_OwnedTiesBrokenByScore(t *testing.T) {
	owned := NewMemoryOwnedStore()
	owned.Add("a")
	owned.Add("b")
	rooms := []Record{
		{ID: "a", CurrentPlayers: 9, MaxPlayers: 10},
		{ID: "b", CurrentPlayers: 2, MaxPlayers: 10},
	}
	assert.Equal(t, []string{"b", "a"}, ids(Rank(rooms, owned, nil)))
}

func TestRank_StableForEqualScores(t *testing.T) {
	rooms := []Record{
		{ID: "first", CurrentPlayers: 1, MaxPlayers: 4},
		{ID: "second", CurrentPlayers: 2, MaxPlayers: 4},
		{ID: "third", CurrentPlayers: 1, MaxPlayers: 6},
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids(Rank(rooms, nil, nil)))
}

func TestRank_BonusAppliedWithinTier(t *testing.T) {
	rooms := []Record{
		{ID: "x", CurrentPlayers: 1, MaxPlayers: 4},
		{ID: "y", CurrentPlayers: 1, MaxPlayers: 4},
	}
	bonus := func(r Record) int {
		if r.ID == "y" {
			return 5
		}
		return 0
	}
	got := Rank(rooms, nil, bonus)
	assert.Equal(t, []string{"y", "x"}, ids(got))
	assert.Equal(t, ScoreActive+5, got[0].Score)
}

func TestScore_Bands(t *testing.T) {
	cases := []struct {
		name string
		r    Record
		want int
	}{
		{"one player", Record{CurrentPlayers: 1, MaxPlayers: 10}, ScoreActive},
		{"two players", Record{CurrentPlayers: 2, MaxPlayers: 10}, ScoreActive},
		{"three of ten", Record{CurrentPlayers: 3, MaxPlayers: 10}, ScoreModerate},
		{"half", Record{CurrentPlayers: 5, MaxPlayers: 10}, ScoreModerate},
		{"above half", Record{CurrentPlayers: 6, MaxPlayers: 10}, ScoreCrowded},
		{"nearly full", Record{CurrentPlayers: 9, MaxPlayers: 10}, ScoreCrowded},
		{"three of four", Record{CurrentPlayers: 3, MaxPlayers: 4}, ScoreCrowded},
		{"short name", Record{CurrentPlayers: 1, MaxPlayers: 4, Name: "Arena"}, ScoreActive},
		{"long name", Record{CurrentPlayers: 1, MaxPlayers: 4, Name: "Arena 51"}, ScoreActive + ScoreNameBonus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.r))
		})
	}
}

func TestCheck_Reasons(t *testing.T) {
	assert.Equal(t, RejectNoID, Check(Record{CurrentPlayers: 1, MaxPlayers: 2}))
	assert.Equal(t, RejectNoSeat, Check(Record{ID: "r", MaxPlayers: 0}))
	assert.Equal(t, RejectFull, Check(Record{ID: "r", CurrentPlayers: 3, MaxPlayers: 2}))
	assert.Equal(t, RejectEmpty, Check(Record{ID: "r", CurrentPlayers: 0, MaxPlayers: 2}))
	assert.Equal(t, RejectNone, Check(Record{ID: "r", CurrentPlayers: 1, MaxPlayers: 2}))
}

func TestMemoryOwnedStore(t *testing.T) {
	s := NewMemoryOwnedStore()
	s.Add("")
	assert.Equal(t, 0, s.Len())
	s.Add("r1")
	s.Add("r1")
	assert.True(t, s.Contains("r1"))
	assert.False(t, s.Contains("r2"))
	assert.Equal(t, 1, s.Len())
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	content := `
actor:
  id: a-1
  name: Rook
  attributes:
    team: red
room:
  name: Evening Skirmish
  max_players: 6
  data:
    map: docks
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "Rook", p.Actor.Name)
	assert.Equal(t, "red", p.Actor.Attributes["team"])
	assert.Equal(t, 6, p.Room.MaxPlayers)
	assert.Equal(t, "docks", p.Room.Data["map"])
}

func TestLoadProfile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("actor:\n  name: Rook\nroom:\n  max_players: 0\n"), 0o600))
	_, err := LoadProfile(path)
	assert.Error(t, err)

	_, err = LoadProfile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func genRecord(t *rapid.T, label string) Record {
	capacity := rapid.IntRange(0, 16).Draw(t, label+"_max")
	return Record{
		ID:             rapid.SampledFrom([]string{"", "a", "b", "c", "d", "e"}).Draw(t, label+"_id"),
		Name:           rapid.StringMatching(`[a-z]{0,9}`).Draw(t, label+"_name"),
		MaxPlayers:     capacity,
		CurrentPlayers: rapid.IntRange(-1, capacity+1).Draw(t, label+"_cur"),
	}
}

func TestPropertyRankOnlyViableAndOwnedFirst(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "n")
		rooms := make([]Record, n)
		for i := range rooms {
			rooms[i] = genRecord(t, "room")
		}
		owned := NewMemoryOwnedStore()
		for _, id := range rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c"}), 0, 3).Draw(t, "owned") {
			owned.Add(id)
		}

		got := Rank(rooms, owned, nil)
		seenUnowned := false
		for i, c := range got {
			if !Viable(c.Record) {
				t.Fatalf("non-viable candidate %+v", c)
			}
			if c.Owned != owned.Contains(c.ID) {
				t.Fatalf("owned flag mismatch for %q", c.ID)
			}
			if !c.Owned {
				seenUnowned = true
			} else if seenUnowned {
				t.Fatalf("owned candidate %q after unowned at %d", c.ID, i)
			}
			if i > 0 && got[i-1].Owned == c.Owned && got[i-1].Score < c.Score {
				t.Fatalf("score order violated at %d", i)
			}
		}
	})
}
