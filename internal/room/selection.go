package room

import "sort"

// Occupancy band scores and the descriptive name bonus.
const (
	ScoreActive      = 100
	ScoreModerate    = 50
	ScoreCrowded     = 10
	ScoreNameBonus   = 10
	descriptiveNameN = 5
)

// Rejection explains why a room was not considered for joining.
type Rejection string

const (
	RejectNone   Rejection = ""
	RejectNoID   Rejection = "no_id"
	RejectEmpty  Rejection = "empty"
	RejectFull   Rejection = "full"
	RejectNoSeat Rejection = "no_capacity"
)

// BonusFunc contributes an additional score for a room. It never lifts a room
// above the ownership tier.
type BonusFunc func(Record) int

// Candidate is a viable room with its computed score.
type Candidate struct {
	Record
	Score int
}

// Check returns RejectNone when r may be joined. A room with zero players is
// treated as a stale ghost.
func Check(r Record) Rejection {
	switch {
	case r.ID == "":
		return RejectNoID
	case r.MaxPlayers <= 0:
		return RejectNoSeat
	case r.CurrentPlayers >= r.MaxPlayers:
		return RejectFull
	case r.CurrentPlayers <= 0:
		return RejectEmpty
	default:
		return RejectNone
	}
}

// Viable reports whether r passes Check.
func Viable(r Record) bool {
	return Check(r) == RejectNone
}

// Score rates a viable room by occupancy band:
// 1-2 players score ScoreActive, up to half capacity ScoreModerate, and above
// half capacity ScoreCrowded. Names longer than five characters add
// ScoreNameBonus.
//
// Precondition: r is viable.
func Score(r Record) int {
	half := r.MaxPlayers / 2
	var s int
	switch {
	case r.CurrentPlayers >= 1 && r.CurrentPlayers <= 2:
		s = ScoreActive
	case r.CurrentPlayers > 2 && r.CurrentPlayers <= half:
		s = ScoreModerate
	case r.CurrentPlayers > half && r.CurrentPlayers < r.MaxPlayers:
		s = ScoreCrowded
	}
	if len(r.Name) > descriptiveNameN {
		s += ScoreNameBonus
	}
	return s
}

// Rank filters rooms down to viable candidates and orders them for joining:
// rooms present in owned come first, then higher score, then original order.
// Owned flags on the returned records are derived from owned.
//
// Postcondition: every returned candidate satisfies Viable.
func Rank(rooms []Record, owned OwnedStore, bonus BonusFunc) []Candidate {
	out := make([]Candidate, 0, len(rooms))
	for _, r := range rooms {
		if !Viable(r) {
			continue
		}
		r.Owned = owned != nil && owned.Contains(r.ID)
		score := Score(r)
		if bonus != nil {
			score += bonus(r)
		}
		out = append(out, Candidate{Record: r, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Owned != out[j].Owned {
			return out[i].Owned
		}
		return out[i].Score > out[j].Score
	})
	return out
}
