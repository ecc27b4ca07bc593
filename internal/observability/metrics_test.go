package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsUsesOwnRegistry(t *testing.T) {
	a := NewMetrics("")
	b := NewMetrics("")
	a.PassesTotal.WithLabelValues("merged").Inc()

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["archerstats_pipeline_passes_total"])

	families, err = b.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		assert.NotEqual(t, "archerstats_pipeline_passes_total", f.GetName())
	}
}

func TestHandler(t *testing.T) {
	m := NewMetrics("test")
	m.SessionMatches.Set(4)
	m.SinkFailures.WithLabelValues("api").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "test_session_matches 4")
	assert.Contains(t, string(body), `test_notify_failures_total{sink="api"} 1`)
}
