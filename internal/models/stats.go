package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// CumulativeStats are the lifetime counters read from the game's save data.
// Successive reads of one installation never decrease.
type CumulativeStats struct {
	Matches int            `json:"matches"`
	Rounds  int            `json:"rounds"`
	Wins    PerArcher[int] `json:"wins"`
	Kills   PerArcher[int] `json:"kills"`
	Deaths  PerArcher[int] `json:"deaths"`
}

// KDR derives each archer's lifetime kill/death ratio.
func (c CumulativeStats) KDR() PerArcher[float64] {
	var out PerArcher[float64]
	for _, a := range Archers {
		out[a] = KDR(c.Kills[a], c.Deaths[a])
	}
	return out
}

// Validate checks counter constraints.
func (c *CumulativeStats) Validate() error {
	if c.Matches < 0 {
		return errors.New("matches must not be negative")
	}
	if c.Rounds < 0 {
		return errors.New("rounds must not be negative")
	}
	for _, a := range Archers {
		if c.Wins[a] < 0 || c.Kills[a] < 0 || c.Deaths[a] < 0 {
			return fmt.Errorf("counters for %s must not be negative", a)
		}
	}
	return nil
}

// StatsDelta is current minus previous for one evaluation. Archers with no wins, kills
// or deaths in the delta are not participants.
type StatsDelta struct {
	Timestamp    int64          `json:"timestamp"`
	Matches      int            `json:"matches"`
	Rounds       int            `json:"rounds"`
	Wins         PerArcher[int] `json:"wins"`
	Kills        PerArcher[int] `json:"kills"`
	Deaths       PerArcher[int] `json:"deaths"`
	Participants ArcherSet      `json:"participants"`
}

// Zero reports whether no archer had any activity.
func (d StatsDelta) Zero() bool {
	return d.Participants.Empty()
}

// MatchRecord is one completed match. It is never modified after being appended to a
// session's match details.
type MatchRecord struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"sessionId,omitempty"`
	Timestamp    int64          `json:"timestamp"`
	Rounds       int            `json:"rounds"`
	Venue        string         `json:"venue,omitempty"`
	Participants ArcherSet      `json:"participants"`
	Wins         PerArcher[int] `json:"wins"`
	Kills        PerArcher[int] `json:"kills"`
	Deaths       PerArcher[int] `json:"deaths"`
}

// Winner returns the archer credited with the win.
func (m MatchRecord) Winner() (Archer, bool) {
	for _, a := range Archers {
		if m.Wins[a] == 1 {
			return a, true
		}
	}
	return 0, false
}

// PlayedAt returns the record's timestamp as a time.
func (m MatchRecord) PlayedAt() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// LiveStats is the running aggregate for one tracking session. MatchCount, WinRate, KDR
// and WinningStreaks are derived from the counters and MatchDetails. Reading is the
// lifetime reading the session was last advanced to, written in the same file so a
// restart can tell whether the separate snapshot file fell behind.
type LiveStats struct {
	SessionID      string             `json:"sessionId"`
	StartedAt      int64              `json:"startedAt"`
	Timestamp      int64              `json:"timestamp"`
	Matches        int                `json:"matches"`
	Rounds         int                `json:"rounds"`
	Wins           PerArcher[int]     `json:"wins"`
	Kills          PerArcher[int]     `json:"kills"`
	Deaths         PerArcher[int]     `json:"deaths"`
	MatchCount     PerArcher[int]     `json:"matchCount"`
	WinRate        PerArcher[float64] `json:"winRate"`
	KDR            PerArcher[float64] `json:"kdr"`
	WinningStreaks PerArcher[int]     `json:"winningStreaks"`
	MatchDetails   []MatchRecord      `json:"matchDetails"`
	Reading        *CumulativeStats   `json:"reading,omitempty"`
}

// NewLiveStats returns an empty session.
func NewLiveStats(sessionID string, startedAt time.Time) LiveStats {
	return LiveStats{
		SessionID:    sessionID,
		StartedAt:    startedAt.Unix(),
		MatchDetails: []MatchRecord{},
	}
}

// Clone returns a copy that shares no mutable memory with l.
func (l LiveStats) Clone() LiveStats {
	out := l
	out.MatchDetails = slices.Clone(l.MatchDetails)
	if out.MatchDetails == nil {
		out.MatchDetails = []MatchRecord{}
	}
	if l.Reading != nil {
		r := *l.Reading
		out.Reading = &r
	}
	return out
}

// Active returns the archers that played at least one match this session.
func (l LiveStats) Active() ArcherSet {
	var s ArcherSet
	for _, a := range Archers {
		if l.MatchCount[a] > 0 {
			s = s.Add(a)
		}
	}
	return s
}
