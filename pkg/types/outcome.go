package types

import (
	"errors"
	"fmt"
)

var (
	// ErrLoopDetected reports that a document reappeared within one traversal.
	ErrLoopDetected = errors.New("loop detected")
	// ErrLinkNotFound reports a document without any qualifying link in whole-document mode.
	ErrLinkNotFound = errors.New("no valid link found")
)

// OutcomeKind enumerates the terminal states of a traversal.
type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota
	OutcomeReached
	OutcomeLoopDetected
	OutcomeDeadEnd
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePending:
		return "pending"
	case OutcomeReached:
		return "reached"
	case OutcomeLoopDetected:
		return "loop_detected"
	case OutcomeDeadEnd:
		return "dead_end"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome describes how a traversal ended. ID is the target for Reached,
// the repeated document for LoopDetected and the last document for DeadEnd
// and Failed.
type Outcome struct {
	Kind  OutcomeKind
	ID    DocumentID
	Cause error
}

// Terminal reports whether the traversal has stopped.
func (o Outcome) Terminal() bool {
	return o.Kind != OutcomePending
}

// Err renders unsuccessful outcomes as errors; Reached and Pending yield nil.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeLoopDetected:
		return fmt.Errorf("%w at page %q", ErrLoopDetected, o.ID)
	case OutcomeDeadEnd:
		return fmt.Errorf("%w in page %q", ErrLinkNotFound, o.ID)
	case OutcomeFailed:
		if o.Cause != nil {
			return o.Cause
		}
		return fmt.Errorf("traversal failed at page %q", o.ID)
	default:
		return nil
	}
}
