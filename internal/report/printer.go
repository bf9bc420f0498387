// Package report renders traversals as the console listing of article URLs.
package report

import (
	"fmt"
	"io"
	"strings"

	"linkchaser/pkg/types"
)

// DefaultBaseURL prefixes every printed document.
const DefaultBaseURL = "http://en.wikipedia.org/wiki/"

// Printer writes one article URL per visited document followed by a summary
// of the outcome. The first write error is kept and returned by Err.
type Printer struct {
	w    io.Writer
	base string
	err  error
}

// NewPrinter returns a printer writing to w. An empty base uses DefaultBaseURL.
func NewPrinter(w io.Writer, base string) *Printer {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Printer{w: w, base: base}
}

// URL renders the article URL of id.
func (p *Printer) URL(id types.DocumentID) string {
	return p.base + id.PathSegment()
}

// Start announces a random starting page.
func (p *Printer) Start(randomURL string) {
	p.printf("Start from %s\n", randomURL)
}

// Page prints the URL of a visited document.
func (p *Printer) Page(id types.DocumentID) {
	p.printf("%s\n", p.URL(id))
}

// Outcome prints the closing lines for a finished traversal. hops is the
// number of documents printed through Page.
func (p *Printer) Outcome(outcome types.Outcome, hops int) {
	switch outcome.Kind {
	case types.OutcomeReached:
		p.Page(outcome.ID)
		p.printf("---\nNumber of Links visited: %d\n", hops)
	case types.OutcomeLoopDetected:
		p.Page(outcome.ID)
		p.printf("---\nLoop detected, quitting...\n")
	case types.OutcomeDeadEnd:
		p.printf("No valid link found in page %q\n---\ncould not find appropriate link in last link\n", outcome.ID.String())
	case types.OutcomeFailed:
		p.printf("---\n%v\n", outcome.Err())
	}
}

// Err returns the first write error.
func (p *Printer) Err() error {
	return p.err
}

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
