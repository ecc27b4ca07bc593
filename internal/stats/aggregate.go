package stats

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/archerstats/internal/models"
)

// MatchMeta carries the details of a match that are not in the counters.
type MatchMeta struct {
	ID    string
	Venue string
	At    time.Time
}

// Merge folds a single-match delta into state and returns the new aggregate together with
// the appended record. state is not modified. Merging anything but a SingleMatch delta is
// a caller bug and returns ErrNotSingleMatch.
func Merge(state models.LiveStats, delta models.StatsDelta, meta MatchMeta) (models.LiveStats, models.MatchRecord, error) {
	if c := Classify(delta); c != SingleMatch {
		return state, models.MatchRecord{}, fmt.Errorf("%w: classified as %s", ErrNotSingleMatch, c)
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	at := meta.At
	if at.IsZero() {
		at = time.Unix(delta.Timestamp, 0)
	}

	participants := delta.Participants | activity(delta)
	rec := models.MatchRecord{
		ID:           meta.ID,
		SessionID:    state.SessionID,
		Timestamp:    at.Unix(),
		Rounds:       delta.Rounds,
		Venue:        meta.Venue,
		Participants: participants,
	}
	for _, a := range participants.Members() {
		rec.Wins[a] = delta.Wins[a]
		rec.Kills[a] = delta.Kills[a]
		rec.Deaths[a] = delta.Deaths[a]
	}

	next := state.Clone()
	for _, a := range models.Archers {
		next.Wins[a] += rec.Wins[a]
		next.Kills[a] += rec.Kills[a]
		next.Deaths[a] += rec.Deaths[a]
	}
	for _, a := range participants.Members() {
		next.MatchCount[a]++
	}
	next.MatchDetails = append(next.MatchDetails, rec)
	next.Matches++
	next.Rounds += rec.Rounds
	next.Timestamp = at.Unix()

	deriveRates(&next)
	next.WinningStreaks = LongestStreaks(next.MatchDetails)

	return next, rec, nil
}

// Derive recomputes every derived field of l from its counters and match details.
func Derive(l *models.LiveStats) {
	var counts models.PerArcher[int]
	for _, m := range l.MatchDetails {
		for _, a := range m.Participants.Members() {
			counts[a]++
		}
	}
	l.MatchCount = counts
	deriveRates(l)
	l.WinningStreaks = LongestStreaks(l.MatchDetails)
}

func deriveRates(l *models.LiveStats) {
	for _, a := range models.Archers {
		if l.MatchCount[a] == 0 {
			l.WinRate[a] = 0
			l.KDR[a] = 0
			continue
		}
		l.WinRate[a] = models.WinRate(l.Wins[a], l.MatchCount[a])
		l.KDR[a] = models.KDR(l.Kills[a], l.Deaths[a])
	}
}

// Rebuild reconstructs a whole session aggregate from its match history alone.
func Rebuild(sessionID string, startedAt int64, details []models.MatchRecord) models.LiveStats {
	l := models.LiveStats{
		SessionID:    sessionID,
		StartedAt:    startedAt,
		MatchDetails: make([]models.MatchRecord, 0, len(details)),
	}
	for _, m := range details {
		for _, a := range models.Archers {
			l.Wins[a] += m.Wins[a]
			l.Kills[a] += m.Kills[a]
			l.Deaths[a] += m.Deaths[a]
		}
		l.Matches++
		l.Rounds += m.Rounds
		l.Timestamp = m.Timestamp
		l.MatchDetails = append(l.MatchDetails, m)
	}
	Derive(&l)
	return l
}

// Consistent reports whether every counter and derived field of l matches what its match
// history implies.
func Consistent(l models.LiveStats) error {
	want := Rebuild(l.SessionID, l.StartedAt, l.MatchDetails)
	switch {
	case l.Matches != want.Matches:
		return fmt.Errorf("matches is %d, history has %d", l.Matches, want.Matches)
	case l.Rounds != want.Rounds:
		return fmt.Errorf("rounds is %d, history has %d", l.Rounds, want.Rounds)
	}
	ints := []struct {
		name      string
		got, want models.PerArcher[int]
	}{
		{"wins", l.Wins, want.Wins},
		{"kills", l.Kills, want.Kills},
		{"deaths", l.Deaths, want.Deaths},
		{"matchCount", l.MatchCount, want.MatchCount},
		{"winningStreaks", l.WinningStreaks, want.WinningStreaks},
	}
	for _, f := range ints {
		if f.got != f.want {
			return fmt.Errorf("%s does not match history", f.name)
		}
	}
	if l.WinRate != want.WinRate {
		return fmt.Errorf("winRate does not match history")
	}
	if l.KDR != want.KDR {
		return fmt.Errorf("kdr does not match history")
	}
	return nil
}
