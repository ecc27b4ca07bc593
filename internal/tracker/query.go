package tracker

import (
	"strings"

	"github.com/rewired-gh/archerstats/internal/models"
	"github.com/rewired-gh/archerstats/internal/stats"
)

// LiveStats returns a copy of the current session.
func (t *Tracker) LiveStats() models.LiveStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session.Clone()
}

// Rankings ranks one metric. With activeOnly only archers that played this session are
// ranked; otherwise the whole roster is.
func (t *Tracker) Rankings(metric stats.Metric, activeOnly bool) []stats.Group[float64] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	among := models.FullRoster
	if activeOnly {
		among = t.session.Active()
	}
	return stats.RankMetric(t.session, metric, among)
}

// Streaks rescans the session history for each archer's longest win streak.
func (t *Tracker) Streaks() models.PerArcher[int] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return stats.LongestStreaks(t.session.MatchDetails)
}

// SetVenue tags subsequent matches with the selected tower. Empty clears it.
func (t *Tracker) SetVenue(venue string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.venue = strings.TrimSpace(venue)
}

// Venue returns the venue new matches are tagged with.
func (t *Tracker) Venue() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.venue
}
