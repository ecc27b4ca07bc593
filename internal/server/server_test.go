package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/archerstats/internal/models"
	"github.com/rewired-gh/archerstats/internal/observability"
	"github.com/rewired-gh/archerstats/internal/stats"
	"github.com/rewired-gh/archerstats/internal/storage"
)

type fakeTracker struct {
	live  models.LiveStats
	venue string
}

func (f *fakeTracker) LiveStats() models.LiveStats { return f.live.Clone() }

func (f *fakeTracker) Rankings(metric stats.Metric, activeOnly bool) []stats.Group[float64] {
	among := models.FullRoster
	if activeOnly {
		among = f.live.Active()
	}
	return stats.RankMetric(f.live, metric, among)
}

func (f *fakeTracker) Streaks() models.PerArcher[int] { return stats.LongestStreaks(f.live.MatchDetails) }
func (f *fakeTracker) SetVenue(v string)              { f.venue = strings.TrimSpace(v) }
func (f *fakeTracker) Venue() string                  { return f.venue }

func match(id string, at int64, winner, loser models.Archer) models.MatchRecord {
	m := models.MatchRecord{ID: id, SessionID: "s", Timestamp: at, Rounds: 5, Participants: models.SetOf(winner, loser)}
	m.Wins[winner] = 1
	m.Kills[winner] = 3
	m.Deaths[loser] = 3
	return m
}

func setupTestApp(t *testing.T, withHistory bool) (*fiber.App, *fakeTracker) {
	t.Helper()
	details := []models.MatchRecord{
		match("m1", 100, models.Red, models.Blue),
		match("m2", 200, models.Red, models.Blue),
		match("m3", 300, models.Blue, models.Red),
	}
	tr := &fakeTracker{live: stats.Rebuild("s", 50, details)}

	var history History
	if withHistory {
		db, err := storage.New(context.Background(), storage.DriverSQLite, ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		for _, m := range details {
			require.NoError(t, db.MatchCompleted(context.Background(), m))
		}
		history = db
	}

	metrics := observability.NewMetrics("test")
	metrics.MatchesMerged.Add(3)
	return New("127.0.0.1:0", tr, history, metrics.Handler()).app, tr
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHandleLive(t *testing.T) {
	app, _ := setupTestApp(t, false)

	var live models.LiveStats
	assert.Equal(t, 200, doJSON(t, app, "GET", "/api/live", "", &live))
	assert.Equal(t, 3, live.Matches)
	assert.Equal(t, 2, live.Wins[models.Red])
	assert.Len(t, live.MatchDetails, 3)
}

func TestHandleRankings(t *testing.T) {
	app, _ := setupTestApp(t, false)

	var body struct {
		Metric   string                 `json:"metric"`
		Rankings []stats.Group[float64] `json:"rankings"`
	}
	assert.Equal(t, 200, doJSON(t, app, "GET", "/api/rankings/wins?active=true", "", &body))
	assert.Equal(t, "wins", body.Metric)
	require.Len(t, body.Rankings, 2)
	assert.Equal(t, stats.Group[float64]{Value: 2, Archers: []models.Archer{models.Red}}, body.Rankings[0])

	assert.Equal(t, 200, doJSON(t, app, "GET", "/api/rankings/wins", "", &body))
	require.Len(t, body.Rankings, 3)
	assert.Len(t, body.Rankings[2].Archers, models.NumArchers-2)

	var errBody map[string]string
	assert.Equal(t, 400, doJSON(t, app, "GET", "/api/rankings/elo", "", &errBody))
	assert.Contains(t, errBody["error"], "unknown metric")
}

func TestHandleAllRankings(t *testing.T) {
	app, _ := setupTestApp(t, false)

	var body map[string][]stats.Group[float64]
	assert.Equal(t, 200, doJSON(t, app, "GET", "/api/rankings?active=true", "", &body))
	assert.Len(t, body, len(stats.Metrics))
	assert.Equal(t, []models.Archer{models.Red}, body["streaks"][0].Archers)
}

func TestHandleStreaks(t *testing.T) {
	app, _ := setupTestApp(t, false)

	var streaks models.PerArcher[int]
	assert.Equal(t, 200, doJSON(t, app, "GET", "/api/streaks", "", &streaks))
	assert.Equal(t, 2, streaks[models.Red])
	assert.Equal(t, 1, streaks[models.Blue])
}

func TestHandleVenue(t *testing.T) {
	app, tr := setupTestApp(t, false)

	var body map[string]string
	assert.Equal(t, 200, doJSON(t, app, "PUT", "/api/venue", `{"venue":"Moonstone"}`, &body))
	assert.Equal(t, "Moonstone", body["venue"])
	assert.Equal(t, "Moonstone", tr.venue)

	assert.Equal(t, 200, doJSON(t, app, "GET", "/api/venue", "", &body))
	assert.Equal(t, "Moonstone", body["venue"])

	assert.Equal(t, 400, doJSON(t, app, "PUT", "/api/venue", `{"venue":`, nil))
}

func TestHandleMatches(t *testing.T) {
	app, _ := setupTestApp(t, true)

	var matches []models.MatchRecord
	assert.Equal(t, 200, doJSON(t, app, "GET", "/api/matches?limit=2", "", &matches))
	require.Len(t, matches, 2)
	assert.Equal(t, "m3", matches[0].ID)

	assert.Equal(t, 400, doJSON(t, app, "GET", "/api/matches?limit=zero", "", nil))

	var totals []storage.ArcherTotal
	assert.Equal(t, 200, doJSON(t, app, "GET", "/api/totals", "", &totals))
	require.Len(t, totals, models.NumArchers)
	assert.Equal(t, 2, totals[models.Red].Wins)
}

func TestHandleMatchesWithoutDatabase(t *testing.T) {
	app, _ := setupTestApp(t, false)
	assert.Equal(t, 404, doJSON(t, app, "GET", "/api/matches", "", nil))
	assert.Equal(t, 404, doJSON(t, app, "GET", "/api/totals", "", nil))
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := setupTestApp(t, false)

	var health map[string]string
	assert.Equal(t, 200, doJSON(t, app, "GET", "/healthz", "", &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "test_pipeline_matches_merged_total 3")
}
