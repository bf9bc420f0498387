package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkchaser/pkg/types"
)

var errMissing = errors.New("missing page")

type page struct {
	lead     string
	body     string
	redirect types.DocumentID
}

type fetchCall struct {
	id   types.DocumentID
	mode types.Mode
}

// graphFetcher serves an in-memory link graph. Whole-document fetches return
// the lead followed by the body.
type graphFetcher struct {
	mu    sync.Mutex
	pages map[types.DocumentID]page
	calls []fetchCall
}

func newGraph(pages map[types.DocumentID]page) *graphFetcher {
	return &graphFetcher{pages: pages}
}

func (g *graphFetcher) Fetch(_ context.Context, id types.DocumentID, mode types.Mode) (*types.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, fetchCall{id: id, mode: mode})

	p, ok := g.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissing, id)
	}
	resolved := id
	if p.redirect != "" {
		resolved = p.redirect
		p, ok = g.pages[resolved]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errMissing, resolved)
		}
	}
	markup := p.lead
	if mode == types.WholeDocument {
		markup += p.body
	}
	return &types.Document{ID: resolved, Markup: markup, Mode: mode, Latency: time.Millisecond}, nil
}

func (g *graphFetcher) Calls() []fetchCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]fetchCall(nil), g.calls...)
}

func link(title string) string {
	return fmt.Sprintf(`<p>See <a href="/wiki/%s">%s</a>.</p>`, title, title)
}

func cycleGraph() *graphFetcher {
	return newGraph(map[types.DocumentID]page{
		"A": {lead: link("B")},
		"B": {lead: link("C")},
		"C": {lead: link("A")},
	})
}

func TestTraversalDetectsLoop(t *testing.T) {
	tr := NewTraversal(cycleGraph(), "A", Options{})

	ids, outcome, err := tr.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A", "B", "C"}, ids)
	assert.Equal(t, types.OutcomeLoopDetected, outcome.Kind)
	assert.Equal(t, types.DocumentID("A"), outcome.ID)
	assert.ErrorIs(t, outcome.Err(), types.ErrLoopDetected)
	assert.Equal(t, 0, tr.History().Len())
	assert.Equal(t, StateTerminal, tr.State())
	assert.False(t, tr.Next(context.Background()))
}

func TestTraversalRunsAreIndependent(t *testing.T) {
	g := cycleGraph()
	first, _, err := NewTraversal(g, "A", Options{}).Collect(context.Background())
	require.NoError(t, err)
	second, outcome, err := NewTraversal(g, "A", Options{}).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, types.OutcomeLoopDetected, outcome.Kind)
}

func TestTraversalReachesTarget(t *testing.T) {
	g := newGraph(map[types.DocumentID]page{
		"A":          {lead: link("B")},
		"B":          {lead: link("Philosophy")},
		"Philosophy": {lead: link("A")},
	})
	tr := NewTraversal(g, "A", Options{})

	ids, outcome, err := tr.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A", "B"}, ids)
	assert.Equal(t, types.OutcomeReached, outcome.Kind)
	assert.Equal(t, DefaultTarget, outcome.ID)
	assert.NoError(t, outcome.Err())
	assert.Equal(t, 2, tr.Hops())
}

func TestTraversalStartingOnTarget(t *testing.T) {
	g := newGraph(map[types.DocumentID]page{
		"Logic": {lead: link("Reason")},
	})
	tr := NewTraversal(g, "logic", Options{Target: "logic"})

	ids, outcome, err := tr.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, types.OutcomeReached, outcome.Kind)
	assert.Equal(t, types.DocumentID("Logic"), tr.Target())
	assert.Len(t, g.Calls(), 1)
}

func TestTraversalFallsBackToWholeDocument(t *testing.T) {
	g := newGraph(map[types.DocumentID]page{
		"A":          {lead: "<p>No links here.</p>", body: link("B")},
		"B":          {lead: link("Philosophy")},
		"Philosophy": {},
	})
	tr := NewTraversal(g, "A", Options{})

	ids, outcome, err := tr.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A", "B"}, ids)
	assert.Equal(t, types.OutcomeReached, outcome.Kind)
	assert.Equal(t, []fetchCall{
		{id: "A", mode: types.LeadOnly},
		{id: "A", mode: types.WholeDocument},
		{id: "B", mode: types.WholeDocument},
		{id: "Philosophy", mode: types.WholeDocument},
	}, g.Calls())
}

func TestTraversalDeadEnd(t *testing.T) {
	stubLead := `<p>Nothing (see <a href="/wiki/Other">other</a>).</p>`
	stubBody := `<p><a href="https://example.com/x">external</a></p>`
	g := newGraph(map[types.DocumentID]page{
		"A":    {lead: link("Stub")},
		"Stub": {lead: stubLead, body: stubBody},
	})
	tr := NewTraversal(g, "A", Options{})

	ids, outcome, err := tr.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A", "Stub"}, ids)
	assert.Equal(t, types.OutcomeDeadEnd, outcome.Kind)
	assert.Equal(t, types.DocumentID("Stub"), outcome.ID)
	assert.ErrorIs(t, outcome.Err(), types.ErrLinkNotFound)
	assert.Equal(t, 0, tr.History().Len())
}

func TestTraversalWholeDocumentMode(t *testing.T) {
	g := newGraph(map[types.DocumentID]page{
		"A": {lead: "<p>Lead.</p>", body: link("B")},
		"B": {},
	})
	tr := NewTraversal(g, "A", Options{WholeDocument: true})

	ids, outcome, err := tr.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A", "B"}, ids)
	assert.Equal(t, types.OutcomeDeadEnd, outcome.Kind)
	for _, call := range g.Calls() {
		assert.Equal(t, types.WholeDocument, call.mode)
	}
}

func TestTraversalSkipsParenthesizedLinks(t *testing.T) {
	g := newGraph(map[types.DocumentID]page{
		"A":              {lead: `<p>Alpha (from <a href="/wiki/Greek_language">Greek</a>) is a <a href="/wiki/Philosophy">topic</a>.</p>`},
		"Greek language": {lead: link("A")},
		"Philosophy":     {},
	})

	ids, outcome, err := NewTraversal(g, "A", Options{}).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A"}, ids)
	assert.Equal(t, types.OutcomeReached, outcome.Kind)
}

func TestTraversalUsesResolvedRedirects(t *testing.T) {
	g := newGraph(map[types.DocumentID]page{
		"A":      {lead: link("Alias")},
		"Alias":  {redirect: "Target"},
		"Target": {lead: link("A")},
	})

	ids, outcome, err := NewTraversal(g, "A", Options{}).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A", "Target"}, ids)
	assert.Equal(t, types.OutcomeLoopDetected, outcome.Kind)
	assert.Equal(t, types.DocumentID("A"), outcome.ID)
}

func TestTraversalFetchFailure(t *testing.T) {
	g := newGraph(map[types.DocumentID]page{
		"A": {lead: link("Gone")},
	})
	tr := NewTraversal(g, "A", Options{})

	ids, outcome, err := tr.Collect(context.Background())
	assert.Equal(t, []types.DocumentID{"A"}, ids)
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissing)
	assert.Equal(t, types.OutcomeFailed, outcome.Kind)
	assert.Equal(t, types.DocumentID("Gone"), outcome.ID)
	assert.Equal(t, []types.DocumentID{"A"}, tr.History().Entries())
}

func TestTraversalStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewTraversal(cycleGraph(), "A", Options{Pacer: NewPacer(time.Hour, RateLimiterSettings{})})
	ids, outcome, err := tr.Collect(ctx)
	assert.Empty(t, ids)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.OutcomeFailed, outcome.Kind)
}

func TestTraversalRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	_, _, err := NewTraversal(cycleGraph(), "A", Options{Metrics: metrics}).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.hops))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.fetches.WithLabelValues("lead_only")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.outcomes.WithLabelValues("loop_detected")))
}

type keepParentheses struct{ firstLinkProcessor }

func (keepParentheses) Sanitize(markup string) string { return markup }

func TestTraversalCustomProcessor(t *testing.T) {
	g := newGraph(map[types.DocumentID]page{
		"A":          {lead: `<p>Alpha (<a href="/wiki/Philosophy">aside</a>) <a href="/wiki/B">b</a>.</p>`},
		"B":          {lead: link("A")},
		"Philosophy": {},
	})

	ids, outcome, err := NewTraversal(g, "A", Options{Processor: keepParentheses{}}).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A"}, ids)
	assert.Equal(t, types.OutcomeReached, outcome.Kind)

	ids, outcome, err = NewTraversal(g, "A", Options{}).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.DocumentID{"A", "B"}, ids)
	assert.Equal(t, types.OutcomeLoopDetected, outcome.Kind)
}
