// Package errs defines the stable error-kind taxonomy callers react to by
// variant rather than by string-matching a message (spec.md §7, and the
// "Re-architecture of source patterns" note in §9 calling out the source's
// broad catch-all repository errors as the pattern to replace).
package errs

import "fmt"

// Kind is a stable, switchable error category.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUpstreamData    Kind = "upstream_data"
	KindLLM             Kind = "llm"
	KindBroker          Kind = "broker"
	KindRepository      Kind = "repository"
	KindSessionNotFound Kind = "session_not_found"
)

// Error is the single concrete error type used across the core; every
// error raised by a component carries one of the Kind values above.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string // e.g. per-field validation complaints
	Err     error             // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func UpstreamData(msg string, err error) *Error { return new_(KindUpstreamData, msg, err) }
func LLM(msg string, err error) *Error          { return new_(KindLLM, msg, err) }
func Broker(msg string, err error) *Error       { return new_(KindBroker, msg, err) }
func Repository(msg string, err error) *Error   { return new_(KindRepository, msg, err) }

func SessionNotFound(sessionID string) *Error {
	return &Error{Kind: KindSessionNotFound, Message: fmt.Sprintf("session %q not found", sessionID)}
}

// Is reports whether err (or something it wraps) is an *Error of the given
// Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
