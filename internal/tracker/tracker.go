// Package tracker drives the evaluation pipeline: it owns the remembered snapshot and the
// live session, and turns each re-evaluation request into at most one merged match.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/rewired-gh/archerstats/internal/logger"
	"github.com/rewired-gh/archerstats/internal/models"
	"github.com/rewired-gh/archerstats/internal/observability"
	"github.com/rewired-gh/archerstats/internal/stats"
)

// Reader produces the game's current lifetime counters.
type Reader interface {
	Read() (models.CumulativeStats, error)
}

// SnapshotStore persists the diff baseline.
type SnapshotStore interface {
	LoadSnapshot() (*models.CumulativeStats, error)
	SaveSnapshot(models.CumulativeStats) error
}

// LiveStore persists the live session.
type LiveStore interface {
	LoadLiveStats() (*models.LiveStats, error)
	SaveLiveStats(models.LiveStats) error
	ResetLiveStats() error
}

// Publisher is told about every merged match. Publish must not block.
type Publisher interface {
	Publish(models.MatchRecord)
}

// Outcome describes what one evaluation pass did.
type Outcome int

const (
	Failed Outcome = iota
	Unchanged
	Rebaselined
	Deferred
	Discarded
	Merged
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Rebaselined:
		return "rebaselined"
	case Deferred:
		return "deferred"
	case Discarded:
		return "discarded"
	case Merged:
		return "merged"
	default:
		return "failed"
	}
}

// Options configures a Tracker. Now and the ID generators are overridable for tests.
type Options struct {
	// Append continues the persisted session instead of starting a new one.
	Append bool
	// Venue tags every merged match until changed with SetVenue.
	Venue   string
	Metrics *observability.Metrics

	Now          func() time.Time
	NewSessionID func() (string, error)
	NewMatchID   func() string
}

// Tracker is the aggregation service. Passes are serialised; queries may run
// concurrently with them.
type Tracker struct {
	reader    Reader
	snapshots SnapshotStore
	live      LiveStore
	publisher Publisher
	opts      Options

	mu       sync.RWMutex
	snapshot *models.CumulativeStats
	session  models.LiveStats
	venue    string
	// fresh is set when New started a new session rather than continuing one.
	fresh bool
}

// New loads persisted state and prepares the session.
func New(reader Reader, snapshots SnapshotStore, live LiveStore, publisher Publisher, opts Options) (*Tracker, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = func() (string, error) { return gonanoid.New() }
	}
	if opts.NewMatchID == nil {
		opts.NewMatchID = uuid.NewString
	}

	t := &Tracker{
		reader:    reader,
		snapshots: snapshots,
		live:      live,
		publisher: publisher,
		opts:      opts,
		venue:     opts.Venue,
	}

	snap, err := snapshots.LoadSnapshot()
	if err != nil {
		logger.Warn("Failed to load persisted snapshot, will re-baseline: %v", err)
	} else if snap != nil {
		t.snapshot = snap
		logger.Info("Loaded snapshot (%d matches, %d rounds)", snap.Matches, snap.Rounds)
	}

	if opts.Append {
		persisted, err := live.LoadLiveStats()
		if err != nil {
			return nil, fmt.Errorf("failed to load live stats: %w", err)
		}
		if persisted != nil {
			if err := stats.Consistent(*persisted); err != nil {
				logger.Warn("Persisted live stats disagree with their match history (%v), recomputing", err)
				reading := persisted.Reading
				*persisted = stats.Rebuild(persisted.SessionID, persisted.StartedAt, persisted.MatchDetails)
				persisted.Reading = reading
			}
			t.session = *persisted
			t.recoverSnapshot()
			t.recordSession()
			logger.Info("Continuing session %s with %d matches", t.session.SessionID, t.session.Matches)
			return t, nil
		}
	}

	if err := t.startSession(); err != nil {
		return nil, err
	}
	t.fresh = true
	return t, nil
}

// recoverSnapshot adopts the reading stored with the session when the snapshot file is
// missing or behind it. That happens when the process stopped between the live stats
// write and the snapshot write.
func (t *Tracker) recoverSnapshot() {
	reading := t.session.Reading
	if reading == nil || (t.snapshot != nil && reading.Matches <= t.snapshot.Matches) {
		return
	}
	r := *reading
	logger.Warn("Snapshot is behind the live session (%d matches, session saw %d), catching up",
		t.snapshotMatches(), r.Matches)
	t.snapshot = &r
	if err := t.snapshots.SaveSnapshot(r); err != nil {
		logger.Warn("Failed to persist recovered snapshot: %v", err)
	}
}

func (t *Tracker) snapshotMatches() int {
	if t.snapshot == nil {
		return 0
	}
	return t.snapshot.Matches
}

func (t *Tracker) startSession() error {
	id, err := t.opts.NewSessionID()
	if err != nil {
		return fmt.Errorf("failed to create session id: %w", err)
	}
	if err := t.live.ResetLiveStats(); err != nil {
		return fmt.Errorf("failed to reset live stats: %w", err)
	}
	t.session = models.NewLiveStats(id, t.opts.Now())
	t.recordSession()
	logger.Info("Started session %s", id)
	return nil
}

// NewSession discards the live session and starts an empty one.
func (t *Tracker) NewSession() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startSession()
}

// Baseline takes the current reading as the snapshot if there is none yet.
func (t *Tracker) Baseline() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot != nil {
		return nil
	}
	current, err := t.reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read save data: %w", err)
	}
	return t.advance(current)
}

// Start fixes the baseline for a run. A new session counts only matches finished from now
// on, so it always takes the current reading. A continued session keeps the persisted
// snapshot so matches finished while the tracker was down are still merged.
func (t *Tracker) Start() error {
	if !t.fresh {
		return t.Baseline()
	}
	if err := t.Rebaseline(); err != nil {
		// the first successful pass baselines instead
		t.mu.Lock()
		t.snapshot = nil
		t.mu.Unlock()
		return err
	}
	return nil
}

// Rebaseline unconditionally replaces the snapshot with the current reading.
func (t *Tracker) Rebaseline() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, err := t.reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read save data: %w", err)
	}
	return t.advance(current)
}

// advance persists current as the snapshot and only then adopts it in memory.
func (t *Tracker) advance(current models.CumulativeStats) error {
	if err := t.snapshots.SaveSnapshot(current); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	t.snapshot = &current
	return nil
}

// Evaluate runs one full pass: read, diff, classify, merge, persist, publish. Either the
// snapshot and the live session both advance, or neither does.
func (t *Tracker) Evaluate(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Failed, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	outcome, err := t.evaluate()
	t.recordPass(outcome, time.Since(start))
	return outcome, err
}

func (t *Tracker) evaluate() (Outcome, error) {
	now := t.opts.Now()

	current, err := t.reader.Read()
	if err != nil {
		return Failed, fmt.Errorf("failed to read save data: %w", err)
	}

	if t.snapshot == nil {
		logger.Info("No snapshot yet, taking current save data as baseline")
		if err := t.advance(current); err != nil {
			return Failed, err
		}
		return Rebaselined, nil
	}

	delta, err := stats.Diff(current, *t.snapshot, now)
	var stale *stats.StaleSnapshotError
	if errors.As(err, &stale) {
		logger.Warn("Save data went backwards (%v), re-baselining", stale)
		if err := t.advance(current); err != nil {
			return Failed, err
		}
		return Rebaselined, nil
	}
	if err != nil {
		return Failed, err
	}

	switch class := stats.Classify(delta); class {
	case stats.NoActivity:
		if current != *t.snapshot {
			if err := t.advance(current); err != nil {
				return Failed, err
			}
		}
		return Unchanged, nil

	case stats.Incomplete:
		logger.Debug("Match in progress, waiting: %v", stats.Check(delta))
		return Deferred, nil

	case stats.Ambiguous:
		logger.Warn("Discarding delta: %v", stats.Check(delta))
		if err := t.advance(current); err != nil {
			return Failed, err
		}
		return Discarded, nil
	}

	next, rec, err := stats.Merge(t.session, delta, stats.MatchMeta{
		ID:    t.opts.NewMatchID(),
		Venue: t.venue,
		At:    now,
	})
	if err != nil {
		return Failed, err
	}

	next.Reading = &current
	if err := t.live.SaveLiveStats(next); err != nil {
		return Failed, fmt.Errorf("failed to persist live stats: %w", err)
	}
	if err := t.snapshots.SaveSnapshot(current); err != nil {
		if rbErr := t.live.SaveLiveStats(t.session); rbErr != nil {
			logger.Error("Failed to roll back live stats after snapshot failure: %v", rbErr)
		}
		return Failed, fmt.Errorf("failed to persist snapshot: %w", err)
	}

	t.session = next
	t.snapshot = &current
	t.recordSession()

	winner, _ := rec.Winner()
	logger.Info("Match %d of session won by %s (%d rounds, %d archers)",
		t.session.Matches, winner, rec.Rounds, rec.Participants.Len())

	if t.publisher != nil {
		t.publisher.Publish(rec)
	}
	return Merged, nil
}

func (t *Tracker) recordPass(outcome Outcome, d time.Duration) {
	m := t.opts.Metrics
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(outcome.String()).Inc()
	m.PassDuration.Observe(d.Seconds())
	if outcome != Failed {
		m.LastSuccessfulPass.SetToCurrentTime()
	}
	if outcome == Merged {
		m.MatchesMerged.Inc()
	}
}

func (t *Tracker) recordSession() {
	if m := t.opts.Metrics; m != nil {
		m.SessionMatches.Set(float64(t.session.Matches))
		m.SessionRounds.Set(float64(t.session.Rounds))
	}
}
