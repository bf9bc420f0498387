package types

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// DocumentID is the normalized title identifying one document in the link graph.
type DocumentID string

// NewDocumentID normalizes a raw title: the fragment is dropped, underscores
// become spaces, whitespace is collapsed and the first rune is upper-cased.
func NewDocumentID(raw string) DocumentID {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.ReplaceAll(raw, "_", " ")
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(raw)
	if r == utf8.RuneError {
		return DocumentID(raw)
	}
	return DocumentID(string(unicode.ToUpper(r)) + raw[size:])
}

func (id DocumentID) String() string {
	return string(id)
}

// PathSegment renders the id the way it appears in article URLs.
func (id DocumentID) PathSegment() string {
	return strings.ReplaceAll(string(id), " ", "_")
}

// IsZero reports whether the id is empty.
func (id DocumentID) IsZero() bool {
	return id == ""
}

// Mode selects how much of a document the fetch collaborator returns.
type Mode int

const (
	// LeadOnly limits the markup to the lead section (before the first heading).
	LeadOnly Mode = iota
	// WholeDocument returns the complete body.
	WholeDocument
)

func (m Mode) String() string {
	switch m {
	case LeadOnly:
		return "lead_only"
	case WholeDocument:
		return "whole_document"
	default:
		return "unknown"
	}
}

// Document is the fetched, pre-processed body of a DocumentID.
type Document struct {
	// ID is the canonical id after redirects were followed.
	ID        DocumentID
	Markup    string
	Mode      Mode
	FetchedAt time.Time
	Latency   time.Duration
}
