package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/archerstats/internal/models"
	"github.com/rewired-gh/archerstats/internal/observability"
	"github.com/rewired-gh/archerstats/internal/stats"
)

type fakeReader struct {
	current models.CumulativeStats
	err     error
}

func (r *fakeReader) Read() (models.CumulativeStats, error) { return r.current, r.err }

type memStore struct {
	snapshot    *models.CumulativeStats
	live        *models.LiveStats
	snapshotErr error
	liveErr     error
	liveSaves   int
}

func (s *memStore) LoadSnapshot() (*models.CumulativeStats, error) { return s.snapshot, nil }

func (s *memStore) SaveSnapshot(c models.CumulativeStats) error {
	if s.snapshotErr != nil {
		return s.snapshotErr
	}
	s.snapshot = &c
	return nil
}

func (s *memStore) LoadLiveStats() (*models.LiveStats, error) {
	if s.live == nil {
		return nil, nil
	}
	l := s.live.Clone()
	return &l, nil
}

func (s *memStore) SaveLiveStats(l models.LiveStats) error {
	if s.liveErr != nil {
		return s.liveErr
	}
	s.liveSaves++
	c := l.Clone()
	s.live = &c
	return nil
}

func (s *memStore) ResetLiveStats() error {
	s.live = nil
	return nil
}

type recorder struct {
	records []models.MatchRecord
}

func (r *recorder) Publish(m models.MatchRecord) { r.records = append(r.records, m) }

var fixedNow = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, reader Reader, store *memStore, pub Publisher, opts Options) *Tracker {
	t.Helper()
	opts.Now = func() time.Time { return fixedNow }
	opts.NewSessionID = func() (string, error) { return "session-1", nil }
	tr, err := New(reader, store, store, pub, opts)
	require.NoError(t, err)
	return tr
}

// playMatch advances c by one match won by winner with the given kills.
func playMatch(c models.CumulativeStats, rounds int, winner models.Archer, kills map[models.Archer]int, deaths map[models.Archer]int) models.CumulativeStats {
	c.Matches++
	c.Rounds += rounds
	c.Wins[winner]++
	for a, k := range kills {
		c.Kills[a] += k
	}
	for a, d := range deaths {
		c.Deaths[a] += d
	}
	return c
}

func TestEvaluateBaselinesWithoutSnapshot(t *testing.T) {
	reader := &fakeReader{current: models.CumulativeStats{Matches: 10, Rounds: 80}}
	store := &memStore{}
	tr := newTracker(t, reader, store, nil, Options{})

	outcome, err := tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Rebaselined, outcome)
	require.NotNil(t, store.snapshot)
	assert.Equal(t, 10, store.snapshot.Matches)
	assert.Equal(t, 0, tr.LiveStats().Matches)
}

func TestEvaluateMergesSingleMatch(t *testing.T) {
	base := models.CumulativeStats{Matches: 3, Rounds: 20}
	store := &memStore{snapshot: &base}
	reader := &fakeReader{current: playMatch(base, 7, models.Red,
		map[models.Archer]int{models.Red: 5, models.Blue: 2},
		map[models.Archer]int{models.Red: 1, models.Blue: 4})}
	pub := &recorder{}
	metrics := observability.NewMetrics("test")
	tr := newTracker(t, reader, store, pub, Options{Venue: "Sacred Ground", Metrics: metrics})

	outcome, err := tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Merged, outcome)

	live := tr.LiveStats()
	assert.Equal(t, 1, live.Matches)
	assert.Equal(t, 7, live.Rounds)
	assert.Equal(t, 1, live.Wins[models.Red])
	assert.Equal(t, 1, live.WinningStreaks[models.Red])
	assert.Equal(t, models.SetOf(models.Red, models.Blue), live.Active())
	require.Len(t, live.MatchDetails, 1)
	assert.Equal(t, "session-1", live.MatchDetails[0].SessionID)
	assert.Equal(t, "Sacred Ground", live.MatchDetails[0].Venue)

	// both pieces of state were persisted
	assert.Equal(t, reader.current, *store.snapshot)
	require.NotNil(t, store.live)
	assert.Equal(t, 1, store.live.Matches)
	require.NotNil(t, store.live.Reading)
	assert.Equal(t, reader.current, *store.live.Reading)

	require.Len(t, pub.records, 1)
	winner, ok := pub.records[0].Winner()
	require.True(t, ok)
	assert.Equal(t, models.Red, winner)

	// a second pass over the same reading changes nothing
	outcome, err = tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome)
	assert.Len(t, pub.records, 1)
}

func TestEvaluateDefersIncompleteMatch(t *testing.T) {
	base := models.CumulativeStats{Matches: 3, Rounds: 20}
	store := &memStore{snapshot: &base}
	current := base
	current.Rounds += 2
	current.Kills[models.Green] = 1
	current.Deaths[models.Pink] = 1
	reader := &fakeReader{current: current}
	tr := newTracker(t, reader, store, nil, Options{})

	outcome, err := tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Deferred, outcome)
	assert.Equal(t, base, *store.snapshot, "snapshot must not advance while a match is in progress")

	// the match finishes; the whole match is merged at once
	reader.current = playMatch(current, 3, models.Green,
		map[models.Archer]int{models.Green: 2}, map[models.Archer]int{models.Pink: 2})
	outcome, err = tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Merged, outcome)
	live := tr.LiveStats()
	assert.Equal(t, 3, live.Kills[models.Green])
	assert.Equal(t, 5, live.Rounds)
}

func TestEvaluateDiscardsAmbiguousDelta(t *testing.T) {
	base := models.CumulativeStats{Matches: 3, Rounds: 20}
	store := &memStore{snapshot: &base}
	current := playMatch(base, 5, models.Red, nil, nil)
	current = playMatch(current, 5, models.Blue, nil, nil)
	reader := &fakeReader{current: current}
	pub := &recorder{}
	tr := newTracker(t, reader, store, pub, Options{})

	outcome, err := tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Discarded, outcome)
	assert.Equal(t, current, *store.snapshot)
	assert.Equal(t, 0, tr.LiveStats().Matches)
	assert.Empty(t, pub.records)
}

func TestEvaluateRebaselinesStaleSnapshot(t *testing.T) {
	base := models.CumulativeStats{Matches: 30, Rounds: 200}
	base.Kills[models.Red] = 5
	store := &memStore{snapshot: &base}
	current := base
	current.Kills[models.Red] = 3
	reader := &fakeReader{current: current}
	tr := newTracker(t, reader, store, nil, Options{})

	outcome, err := tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Rebaselined, outcome)
	assert.Equal(t, 3, store.snapshot.Kills[models.Red])
	assert.Equal(t, 0, tr.LiveStats().Matches)
}

func TestEvaluateLeavesStateOnPersistenceFailure(t *testing.T) {
	base := models.CumulativeStats{Matches: 3, Rounds: 20}
	store := &memStore{snapshot: &base}
	reader := &fakeReader{current: playMatch(base, 4, models.Cyan, nil, nil)}
	pub := &recorder{}
	tr := newTracker(t, reader, store, pub, Options{})

	store.liveErr = errors.New("disk full")
	outcome, err := tr.Evaluate(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, outcome)
	assert.Equal(t, 0, tr.LiveStats().Matches)
	assert.Equal(t, base, *store.snapshot)
	assert.Empty(t, pub.records)

	store.liveErr = nil
	store.snapshotErr = errors.New("read-only")
	_, err = tr.Evaluate(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, tr.LiveStats().Matches)
	require.NotNil(t, store.live)
	assert.Equal(t, 0, store.live.Matches, "live stats rolled back when the snapshot cannot be saved")
	assert.Empty(t, pub.records)

	// once storage recovers the same match is merged exactly once
	store.snapshotErr = nil
	outcome, err = tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Merged, outcome)
	assert.Len(t, pub.records, 1)
}

func TestEvaluateReadError(t *testing.T) {
	reader := &fakeReader{err: errors.New("locked")}
	tr := newTracker(t, reader, &memStore{}, nil, Options{})

	outcome, err := tr.Evaluate(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, outcome)
}

func TestEvaluateCancelledContext(t *testing.T) {
	tr := newTracker(t, &fakeReader{}, &memStore{}, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Evaluate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAppendContinuesSession(t *testing.T) {
	base := models.CumulativeStats{Matches: 3, Rounds: 20}
	store := &memStore{snapshot: &base}
	reader := &fakeReader{current: playMatch(base, 4, models.Yellow, nil, nil)}
	first := newTracker(t, reader, store, nil, Options{})
	_, err := first.Evaluate(context.Background())
	require.NoError(t, err)

	second := newTracker(t, reader, store, nil, Options{Append: true})
	assert.Equal(t, 1, second.LiveStats().Matches)

	fresh := newTracker(t, reader, store, nil, Options{})
	assert.Equal(t, 0, fresh.LiveStats().Matches)
	assert.Nil(t, store.live)
}

// crashingStore stops the process between the live stats write and the snapshot write.
type crashingStore struct {
	*memStore
}

func (s *crashingStore) SaveSnapshot(models.CumulativeStats) error {
	panic("process killed")
}

func TestAppendRecoversFromCrashBetweenWrites(t *testing.T) {
	base := models.CumulativeStats{Matches: 3, Rounds: 20}
	store := &memStore{snapshot: &base}
	reader := &fakeReader{current: playMatch(base, 5, models.Red, nil, nil)}
	crashing := &crashingStore{memStore: store}
	tr, err := New(reader, crashing, crashing, nil, Options{
		Now:          func() time.Time { return fixedNow },
		NewSessionID: func() (string, error) { return "session-1", nil },
	})
	require.NoError(t, err)

	require.Panics(t, func() { tr.Evaluate(context.Background()) })
	require.NotNil(t, store.live)
	assert.Equal(t, 1, store.live.Matches)
	assert.Equal(t, base, *store.snapshot, "snapshot write never happened")

	pub := &recorder{}
	restarted := newTracker(t, reader, store, pub, Options{Append: true})
	assert.Equal(t, reader.current, *store.snapshot, "snapshot caught up with the session")

	outcome, err := restarted.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome)
	live := restarted.LiveStats()
	assert.Equal(t, 1, live.Matches)
	assert.Equal(t, 1, live.Wins[models.Red])
	assert.Empty(t, pub.records)
}

func TestAppendKeepsSnapshotAheadOfSession(t *testing.T) {
	behind := models.CumulativeStats{Matches: 2}
	ahead := models.CumulativeStats{Matches: 5}
	live := models.NewLiveStats("old", fixedNow)
	live.Reading = &behind
	store := &memStore{snapshot: &ahead, live: &live}

	tr := newTracker(t, &fakeReader{current: ahead}, store, nil, Options{Append: true})
	assert.Equal(t, ahead, *store.snapshot)

	outcome, err := tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome)
}

func TestStartFreshSessionIgnoresMatchesPlayedWhileStopped(t *testing.T) {
	base := models.CumulativeStats{Matches: 3, Rounds: 20}
	store := &memStore{snapshot: &base}
	reader := &fakeReader{current: playMatch(base, 4, models.Pink, nil, nil)}
	tr := newTracker(t, reader, store, nil, Options{})

	require.NoError(t, tr.Start())
	assert.Equal(t, 4, store.snapshot.Matches)

	outcome, err := tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome)
	assert.Equal(t, 0, tr.LiveStats().Matches)
}

func TestStartAppendedSessionKeepsSnapshot(t *testing.T) {
	base := models.CumulativeStats{Matches: 3, Rounds: 20}
	live := models.NewLiveStats("old", fixedNow)
	store := &memStore{snapshot: &base, live: &live}
	reader := &fakeReader{current: playMatch(base, 4, models.Pink, nil, nil)}
	tr := newTracker(t, reader, store, nil, Options{Append: true})

	require.NoError(t, tr.Start())
	assert.Equal(t, base, *store.snapshot)

	outcome, err := tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Merged, outcome)
	assert.Equal(t, 1, tr.LiveStats().Matches)
	assert.Equal(t, "old", tr.LiveStats().SessionID)
}

func TestStartFreshSessionWithUnreadableSave(t *testing.T) {
	base := models.CumulativeStats{Matches: 3, Rounds: 20}
	store := &memStore{snapshot: &base}
	reader := &fakeReader{err: errors.New("missing")}
	tr := newTracker(t, reader, store, nil, Options{})

	require.Error(t, tr.Start())

	reader.err = nil
	reader.current = playMatch(base, 4, models.Pink, nil, nil)
	outcome, err := tr.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Rebaselined, outcome)
	assert.Equal(t, 0, tr.LiveStats().Matches)
}

func TestNewAppendRepairsDerivedFields(t *testing.T) {
	rec := models.MatchRecord{ID: "m1", Rounds: 5, Participants: models.SetOf(models.Red)}
	rec.Wins[models.Red] = 1
	broken := models.NewLiveStats("old", fixedNow)
	broken.MatchDetails = []models.MatchRecord{rec}
	broken.Matches = 4
	store := &memStore{live: &broken}

	tr := newTracker(t, &fakeReader{}, store, nil, Options{Append: true})
	live := tr.LiveStats()
	assert.Equal(t, 1, live.Matches)
	assert.Equal(t, "old", live.SessionID)
	assert.NoError(t, stats.Consistent(live))
}

func TestBaselineAndRebaseline(t *testing.T) {
	reader := &fakeReader{current: models.CumulativeStats{Matches: 1}}
	store := &memStore{}
	tr := newTracker(t, reader, store, nil, Options{})

	require.NoError(t, tr.Baseline())
	assert.Equal(t, 1, store.snapshot.Matches)

	reader.current.Matches = 9
	require.NoError(t, tr.Baseline())
	assert.Equal(t, 1, store.snapshot.Matches, "existing snapshot kept")

	require.NoError(t, tr.Rebaseline())
	assert.Equal(t, 9, store.snapshot.Matches)
}

func TestQueries(t *testing.T) {
	base := models.CumulativeStats{}
	store := &memStore{snapshot: &base}
	reader := &fakeReader{}
	tr := newTracker(t, reader, store, nil, Options{})

	cur := base
	for _, w := range []models.Archer{models.Red, models.Red, models.Blue, models.Red} {
		cur = playMatch(cur, 3, w, map[models.Archer]int{w: 1}, map[models.Archer]int{models.Orange: 1})
		reader.current = cur
		outcome, err := tr.Evaluate(context.Background())
		require.NoError(t, err)
		require.Equal(t, Merged, outcome)
	}

	streaks := tr.Streaks()
	assert.Equal(t, 2, streaks[models.Red])
	assert.Equal(t, 1, streaks[models.Blue])

	groups := tr.Rankings(stats.MetricWins, true)
	require.NotEmpty(t, groups)
	assert.Equal(t, float64(3), groups[0].Value)
	assert.Equal(t, []models.Archer{models.Red}, groups[0].Archers)
	var ranked int
	for _, g := range groups {
		ranked += len(g.Archers)
	}
	assert.Equal(t, 3, ranked)

	all := tr.Rankings(stats.MetricWins, false)
	ranked = 0
	for _, g := range all {
		ranked += len(g.Archers)
	}
	assert.Equal(t, models.NumArchers, ranked)

	tr.SetVenue("  Twilight Spire ")
	assert.Equal(t, "Twilight Spire", tr.Venue())

	snap := tr.LiveStats()
	snap.MatchDetails[0].Rounds = 99
	assert.Equal(t, 3, tr.LiveStats().MatchDetails[0].Rounds)

	require.NoError(t, tr.NewSession())
	assert.Equal(t, 0, tr.LiveStats().Matches)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "merged", Merged.String())
	assert.Equal(t, "deferred", Deferred.String())
	assert.Equal(t, "failed", Failed.String())
}
