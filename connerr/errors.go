// Package connerr defines the error taxonomy for the connection-protocol
// core. Every error that escapes a public entry point is a *connerr.Error
// carrying one of the Kind values below, constructed with New or Wrap.
package connerr

import "fmt"

// Kind enumerates the error kinds from spec.md §7. The core never invents
// a new kind ad hoc; callers that need to branch on failure mode switch on
// Kind, not on error strings.
type Kind string

const (
	InvalidHandle           Kind = "InvalidHandle"
	InvalidConnectionHandle Kind = "InvalidConnectionHandle"
	InvalidJSON             Kind = "InvalidJson"
	InvalidState            Kind = "InvalidState"
	NotReady                Kind = "NotReady"
	CreateConnection        Kind = "CreateConnection"
	DeleteConnection        Kind = "DeleteConnection"
	ActionNotSupported      Kind = "ActionNotSupported"
	IOError                 Kind = "IOError"
	AgencyFailure           Kind = "AgencyFailure"
	CryptoFailure           Kind = "CryptoFailure"
	DidDocInvalid           Kind = "DidDocInvalid"
	ThreadIDMismatch        Kind = "ThreadIdMismatch"
)

// Error is the single error type used throughout the module. It wraps an
// optional underlying cause and tags it with a Kind so callers can recover
// the failure mode with errors.As without a type switch per kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, connerr.New(kind, "")) match any *Error of that Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a fresh *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a fresh *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error with a Kind, preserving it as the cause.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: kind, Err: err}
}

// Of reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func Of(err error) (kind Kind, ok bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// as is a tiny local errors.As to avoid importing errors just for this.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Sentinel builds an empty *Error of a Kind suitable for errors.Is matching:
// errors.Is(err, connerr.Sentinel(connerr.InvalidHandle)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
