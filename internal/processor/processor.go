package processor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"linkchaser/internal/config"
)

// HTMLProcessor removes non-content markup (references, thumbnails, tables,
// italics, coordinates, red links) before parentheses are stripped.
type HTMLProcessor struct {
	selector string
	trim     bool
}

// NewHTMLProcessor constructs a processor from configuration.
func NewHTMLProcessor(cfg config.PreprocessConfig) *HTMLProcessor {
	selectors := cfg.DropSelectors
	if len(selectors) == 0 {
		selectors = config.DefaultDropSelectors
	}
	return &HTMLProcessor{
		selector: strings.Join(selectors, ","),
		trim:     cfg.TrimWhitespace,
	}
}

// Prepare drops the configured selectors and returns the serialized markup.
// Parser output is wrapped in a single container element; that wrapper is
// kept even when it matches a selector such as "div".
func (p *HTMLProcessor) Prepare(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	body := doc.Find("body")
	scope := body
	if children := body.Children(); children.Length() == 1 {
		scope = children
	}
	scope.Find(p.selector).Remove()

	out, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("serialise html: %w", err)
	}
	if p.trim {
		out = strings.TrimSpace(out)
	}
	return out, nil
}
