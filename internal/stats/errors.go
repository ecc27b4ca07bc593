package stats

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/archerstats/internal/models"
)

var (
	// ErrNoActivity is returned by Check for a delta in which nobody scored or died.
	ErrNoActivity = errors.New("no activity since last snapshot")

	// ErrNotSingleMatch is returned by Merge when the delta is not exactly one match.
	ErrNotSingleMatch = errors.New("delta is not a single completed match")
)

// StaleSnapshotError reports a counter that went backwards between two reads, which
// means the save data was reset or replaced. The snapshot must be re-based.
type StaleSnapshotError struct {
	Field    string
	Archer   models.Archer
	ByArcher bool
	Previous int
	Current  int
}

func (e *StaleSnapshotError) Error() string {
	field := e.Field
	if e.ByArcher {
		field = fmt.Sprintf("%s[%s]", e.Field, e.Archer)
	}
	return fmt.Sprintf("stale snapshot: %s went from %d to %d", field, e.Previous, e.Current)
}

// AmbiguousDeltaError reports a delta that spans more than one match.
type AmbiguousDeltaError struct {
	Wins models.PerArcher[int]
}

func (e *AmbiguousDeltaError) Error() string {
	var winners models.ArcherSet
	total := 0
	for _, a := range models.Archers {
		if e.Wins[a] > 0 {
			winners = winners.Add(a)
			total += e.Wins[a]
		}
	}
	return fmt.Sprintf("ambiguous delta: %d wins across %s", total, winners)
}

// IncompleteDeltaError reports activity without a winner: a match still in progress.
type IncompleteDeltaError struct {
	Participants models.ArcherSet
}

func (e *IncompleteDeltaError) Error() string {
	return fmt.Sprintf("incomplete delta: activity from %s but no winner yet", e.Participants)
}
