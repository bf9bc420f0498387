package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"linkchaser/internal/processor"
	"linkchaser/pkg/types"
)

// Fetcher resolves a document id to its canonical id and pre-processed markup.
type Fetcher interface {
	Fetch(ctx context.Context, id types.DocumentID, mode types.Mode) (*types.Document, error)
}

// Waiter paces fetches.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Processor strips parenthesized text from markup and picks the next
// document.
type Processor interface {
	Sanitize(markup string) string
	FirstLink(markup string) (types.DocumentID, bool)
}

type firstLinkProcessor struct{}

func (firstLinkProcessor) Sanitize(markup string) string {
	return processor.StripParentheses(markup)
}

func (firstLinkProcessor) FirstLink(markup string) (types.DocumentID, bool) {
	return processor.FirstLink(markup)
}

// DefaultTarget is the document most chains end on.
const DefaultTarget types.DocumentID = "Philosophy"

// State is the step a traversal is executing.
type State int

const (
	StateFetching State = iota
	StateSanitizing
	StateSelecting
	StateRecording
	StateRecursing
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateSanitizing:
		return "sanitizing"
	case StateSelecting:
		return "selecting"
	case StateRecording:
		return "recording"
	case StateRecursing:
		return "recursing"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Options tunes a traversal. The zero value chases DefaultTarget in lead-only
// mode without pacing, logging or metrics.
type Options struct {
	Target        types.DocumentID
	WholeDocument bool
	Pacer         Waiter
	Processor     Processor
	Logger        *slog.Logger
	Metrics       *Metrics
	TrailID       string
}

// frame is one pending fetch. escalated marks the whole-document re-fetch of
// a document that was already emitted in lead-only mode.
type frame struct {
	id        types.DocumentID
	mode      types.Mode
	escalated bool
}

// Traversal follows first links from a start document until the target is
// reached, a document repeats or a document has no qualifying link. It is a
// single-use, forward-only iterator:
//
//	t := crawler.NewTraversal(f, start, opts)
//	for t.Next(ctx) {
//		fmt.Println(t.ID())
//	}
//	outcome := t.Outcome()
//
// The sequence holds every document passed through; the document that ends
// the traversal (target, repeated document) is reported by Outcome.
type Traversal struct {
	fetcher   Fetcher
	processor Processor
	target    types.DocumentID
	pacer     Waiter
	logger    *slog.Logger
	metrics   *Metrics

	stack   []frame
	history *History
	state   State
	current types.DocumentID
	hops    int
	outcome types.Outcome
	err     error
}

// NewTraversal prepares a traversal starting at start. Nothing is fetched
// until Next is called.
func NewTraversal(f Fetcher, start types.DocumentID, opts Options) *Traversal {
	target := types.NewDocumentID(opts.Target.String())
	if target.IsZero() {
		target = DefaultTarget
	}
	mode := types.LeadOnly
	if opts.WholeDocument {
		mode = types.WholeDocument
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.TrailID != "" {
		logger = logger.With("trail_id", opts.TrailID)
	}
	proc := opts.Processor
	if proc == nil {
		proc = firstLinkProcessor{}
	}
	return &Traversal{
		fetcher:   f,
		processor: proc,
		target:    target,
		pacer:     opts.Pacer,
		logger:    logger.With("target", target.String()),
		metrics:   opts.Metrics,
		stack:     []frame{{id: types.NewDocumentID(start.String()), mode: mode}},
		history:   NewHistory(),
		state:     StateFetching,
	}
}

// Next advances to the next document of the chain. It returns false once the
// traversal reached a terminal outcome or failed.
func (t *Traversal) Next(ctx context.Context) bool {
	for len(t.stack) > 0 && !t.outcome.Terminal() {
		fr := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]

		id, emit := t.step(ctx, fr)
		if emit {
			t.current = id
			t.hops++
			t.metrics.observeHop()
			return true
		}
	}
	return false
}

// step processes one frame and reports the document to emit, if any.
func (t *Traversal) step(ctx context.Context, fr frame) (types.DocumentID, bool) {
	t.state = StateFetching
	logger := t.logger.With("page", fr.id.String(), "mode", fr.mode.String())

	if t.pacer != nil {
		if err := t.pacer.Wait(ctx); err != nil {
			t.fail(fr.id, fmt.Errorf("wait before fetching %q: %w", fr.id, err))
			return "", false
		}
	}
	doc, err := t.fetcher.Fetch(ctx, fr.id, fr.mode)
	if err != nil {
		t.fail(fr.id, fmt.Errorf("fetch %q: %w", fr.id, err))
		return "", false
	}
	t.metrics.observeFetch(fr.mode, doc.Latency)

	id := doc.ID
	if id.IsZero() {
		id = fr.id
	}
	if id != fr.id {
		logger.Debug("redirect resolved", "resolved", id.String())
		logger = logger.With("page", id.String())
	}

	if t.history.Contains(id) {
		t.finish(types.OutcomeLoopDetected, id)
		return "", false
	}
	if id == t.target {
		t.finish(types.OutcomeReached, id)
		return "", false
	}
	emit := !fr.escalated

	t.state = StateSanitizing
	sanitized := t.processor.Sanitize(doc.Markup)

	t.state = StateSelecting
	next, found := t.processor.FirstLink(sanitized)
	if found {
		t.state = StateRecording
		t.history.Append(id)

		t.state = StateRecursing
		t.stack = append(t.stack, frame{id: next, mode: fr.mode})
		logger.Debug("link selected", "next", next.String())
		return id, emit
	}

	if fr.mode == types.WholeDocument {
		t.finish(types.OutcomeDeadEnd, id)
		return id, emit
	}

	logger.Debug("no link in lead section, escalating to whole document")
	t.stack = append(t.stack, frame{id: id, mode: types.WholeDocument, escalated: true})
	return id, emit
}

func (t *Traversal) finish(kind types.OutcomeKind, id types.DocumentID) {
	t.state = StateTerminal
	t.outcome = types.Outcome{Kind: kind, ID: id}
	t.stack = nil
	t.history.Reset()
	t.metrics.observeOutcome(kind)
	t.logger.Info("traversal finished", "outcome", kind.String(), "page", id.String(), "hops", t.hops)
}

// fail ends the traversal on an error from the pacer or fetcher. History is
// kept so the caller can inspect how far the chain got.
func (t *Traversal) fail(id types.DocumentID, err error) {
	t.state = StateTerminal
	t.err = err
	t.outcome = types.Outcome{Kind: types.OutcomeFailed, ID: id, Cause: err}
	t.stack = nil
	t.metrics.observeOutcome(types.OutcomeFailed)
	t.logger.Warn("traversal failed", "page", id.String(), "error", err)
}

// ID returns the document produced by the last successful Next.
func (t *Traversal) ID() types.DocumentID {
	return t.current
}

// Outcome reports how the traversal ended; Kind is OutcomePending while it runs.
func (t *Traversal) Outcome() types.Outcome {
	return t.outcome
}

// Err returns the fetch or pacing error that stopped the traversal.
func (t *Traversal) Err() error {
	return t.err
}

// Hops returns the number of documents emitted so far.
func (t *Traversal) Hops() int {
	return t.hops
}

// State returns the step the traversal is in.
func (t *Traversal) State() State {
	return t.state
}

// Target returns the normalized target id.
func (t *Traversal) Target() types.DocumentID {
	return t.target
}

// History exposes the session history.
func (t *Traversal) History() *History {
	return t.history
}

// Collect drains the traversal.
func (t *Traversal) Collect(ctx context.Context) ([]types.DocumentID, types.Outcome, error) {
	var ids []types.DocumentID
	for t.Next(ctx) {
		ids = append(ids, t.ID())
	}
	return ids, t.Outcome(), t.Err()
}
