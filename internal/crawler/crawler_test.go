package crawler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkchaser/internal/config"
	"linkchaser/pkg/types"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Trace.FetchDelay = config.DurationFrom(0)
	cfg.Logging.Level = "info"
	return cfg
}

func TestEngineTrace(t *testing.T) {
	g := newGraph(map[types.DocumentID]page{
		"A":          {lead: link("Philosophy")},
		"Philosophy": {},
	})
	var logs bytes.Buffer
	engine, err := NewEngine(testConfig(), WithFetcher(g), WithLogOutput(&logs))
	require.NoError(t, err)

	ids, outcome, err := engine.Trace("A").Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A"}, ids)
	assert.Equal(t, types.OutcomeReached, outcome.Kind)
	assert.Contains(t, logs.String(), "trail_id=")
	assert.Contains(t, logs.String(), "outcome=reached")

	rec := httptest.NewRecorder()
	engine.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `linkchaser_traversals_total{outcome="reached"} 1`)
	assert.Contains(t, rec.Body.String(), "linkchaser_hops_total 1")
}

func TestEngineCustomTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Trace.Target = "logic"
	cfg.Trace.WholeDocument = true

	g := newGraph(map[types.DocumentID]page{
		"A":     {body: link("Logic")},
		"Logic": {},
	})
	engine, err := NewEngine(cfg, WithFetcher(g), WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)

	tr := engine.Trace("A")
	assert.Equal(t, types.DocumentID("Logic"), tr.Target())
	ids, outcome, err := tr.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A"}, ids)
	assert.Equal(t, types.OutcomeReached, outcome.Kind)
}

func TestEngineResolveStartFromTitle(t *testing.T) {
	engine, err := NewEngine(testConfig(), WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)

	id, err := engine.ResolveStart(context.Background(), "ancient_greece")
	require.NoError(t, err)
	assert.Equal(t, types.DocumentID("Ancient greece"), id)
}

func TestEngineRejectsUnknownLogLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.Level = "loud"
	_, err := NewEngine(cfg)
	assert.Error(t, err)
}

func TestEnginePacerFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Trace.FetchDelay = config.DurationFrom(250 * time.Millisecond)
	engine, err := NewEngine(cfg, WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, engine.pacer.Delay())
	assert.Equal(t, cfg, engine.Config())
}
