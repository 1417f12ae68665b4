// Package orcherr gives the error taxonomy of spec.md §7 a concrete,
// inspectable shape so the tick loop and Orchestrator callers can branch on
// kind with errors.As instead of string matching.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind is one of the language-neutral error kinds spec.md §7 names.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindStorage         Kind = "STORAGE"
	KindPipelineFailure Kind = "PIPELINE_FAILURE"
	KindQueue           Kind = "QUEUE"
	KindTimeout         Kind = "TIMEOUT"
	KindCancelled       Kind = "CANCELLED"
)

// Error wraps an underlying cause with a Kind so the tick loop can decide
// whether to advance next_run (most kinds) or defer (KindQueue, and the
// dependency-gate case which never produces an Error at all).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op, wrapping err with kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
