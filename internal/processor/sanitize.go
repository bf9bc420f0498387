package processor

import "strings"

// StripParentheses removes every parenthesised span from serialized markup,
// nested parentheses included. Bytes between '<' and '>' belong to a tag and
// are copied verbatim, so parentheses inside attribute values (link targets,
// titles) survive. Tags that open inside a parenthesised span are dropped
// together with the span.
//
// Both depth counters are clamped at zero: a stray ')' or '>' is copied and
// does not disable stripping for the rest of the document.
func StripParentheses(markup string) string {
	var b strings.Builder
	b.Grow(len(markup))

	nesting, depth := 0, 0
	for i := 0; i < len(markup); i++ {
		c := markup[i]
		if depth < 1 {
			switch c {
			case '<':
				nesting++
			case '>':
				if nesting > 0 {
					nesting--
				}
			}
		}

		if nesting >= 1 {
			b.WriteByte(c)
			continue
		}

		switch c {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			} else {
				b.WriteByte(c)
			}
		default:
			if depth < 1 {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}
