// Package stats turns successive lifetime counter readings into per-match records and
// keeps the live-session aggregate, streaks and rankings derived from them.
package stats

import (
	"time"

	"github.com/rewired-gh/archerstats/internal/models"
)

// Diff computes current minus previous. A negative result in any field is a
// *StaleSnapshotError; values are never clamped.
func Diff(current, previous models.CumulativeStats, at time.Time) (models.StatsDelta, error) {
	d := models.StatsDelta{
		Timestamp: at.Unix(),
		Matches:   current.Matches - previous.Matches,
		Rounds:    current.Rounds - previous.Rounds,
	}
	if d.Matches < 0 {
		return models.StatsDelta{}, &StaleSnapshotError{Field: "matches", Previous: previous.Matches, Current: current.Matches}
	}
	if d.Rounds < 0 {
		return models.StatsDelta{}, &StaleSnapshotError{Field: "rounds", Previous: previous.Rounds, Current: current.Rounds}
	}

	fields := []struct {
		name      string
		cur, prev *models.PerArcher[int]
		out       *models.PerArcher[int]
	}{
		{"wins", &current.Wins, &previous.Wins, &d.Wins},
		{"kills", &current.Kills, &previous.Kills, &d.Kills},
		{"deaths", &current.Deaths, &previous.Deaths, &d.Deaths},
	}
	for _, f := range fields {
		for _, a := range models.Archers {
			v := f.cur[a] - f.prev[a]
			if v < 0 {
				return models.StatsDelta{}, &StaleSnapshotError{
					Field:    f.name,
					Archer:   a,
					ByArcher: true,
					Previous: f.prev[a],
					Current:  f.cur[a],
				}
			}
			f.out[a] = v
		}
	}

	d.Participants = activity(d)
	return d, nil
}

// activity returns the archers with any wins, kills or deaths in d.
func activity(d models.StatsDelta) models.ArcherSet {
	var s models.ArcherSet
	for _, a := range models.Archers {
		if d.Wins[a] != 0 || d.Kills[a] != 0 || d.Deaths[a] != 0 {
			s = s.Add(a)
		}
	}
	return s
}
