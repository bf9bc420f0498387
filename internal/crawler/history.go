package crawler

import "linkchaser/pkg/types"

// History is the ordered list of documents a traversal has left through a
// selected link. Membership decides whether a fetched document closes a loop.
// It is owned by a single Traversal and is not safe for concurrent use.
type History struct {
	order []types.DocumentID
	index map[types.DocumentID]struct{}
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{index: make(map[types.DocumentID]struct{})}
}

// Append records id. Appending an id twice keeps a single entry.
func (h *History) Append(id types.DocumentID) {
	if _, ok := h.index[id]; ok {
		return
	}
	h.index[id] = struct{}{}
	h.order = append(h.order, id)
}

// Contains reports whether id was recorded.
func (h *History) Contains(id types.DocumentID) bool {
	_, ok := h.index[id]
	return ok
}

// Len returns the number of recorded ids.
func (h *History) Len() int {
	return len(h.order)
}

// Entries returns a copy of the recorded ids in visiting order.
func (h *History) Entries() []types.DocumentID {
	out := make([]types.DocumentID, len(h.order))
	copy(out, h.order)
	return out
}

// Reset forgets every recorded id.
func (h *History) Reset() {
	h.order = h.order[:0]
	clear(h.index)
}
