package stats

import "github.com/rewired-gh/archerstats/internal/models"

// Class is the match detector's verdict on a delta.
type Class int

const (
	// NoActivity: nobody won, killed or died.
	NoActivity Class = iota
	// SingleMatch: exactly one archer gained exactly one win.
	SingleMatch
	// Incomplete: activity but no winner yet; the match is still being played.
	Incomplete
	// Ambiguous: more than one win in the delta, so intermediate states were missed.
	Ambiguous
)

func (c Class) String() string {
	switch c {
	case NoActivity:
		return "no_activity"
	case SingleMatch:
		return "single_match"
	case Incomplete:
		return "incomplete"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Classify decides whether d is exactly one completed match.
func Classify(d models.StatsDelta) Class {
	if activity(d).Empty() {
		return NoActivity
	}
	winners := 0
	for _, a := range models.Archers {
		switch w := d.Wins[a]; {
		case w > 1:
			return Ambiguous
		case w == 1:
			winners++
		}
	}
	switch winners {
	case 0:
		return Incomplete
	case 1:
		return SingleMatch
	default:
		return Ambiguous
	}
}

// Check is Classify expressed as an error: nil only for a single match.
func Check(d models.StatsDelta) error {
	switch Classify(d) {
	case SingleMatch:
		return nil
	case NoActivity:
		return ErrNoActivity
	case Incomplete:
		return &IncompleteDeltaError{Participants: activity(d)}
	default:
		return &AmbiguousDeltaError{Wins: d.Wins}
	}
}
