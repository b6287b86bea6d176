// Package errs contains the error taxonomy shared by every layer for stable error mapping.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is a machine-readable failure reason.
type Kind int

// Kinds, in wire-code order.
const (
	KindFailure Kind = 1000 + iota
	KindNotFound
	KindExtSvcFailure
	KindAlreadyExists
	KindMissingParam
	KindInvalidParam
	KindUnauthenticated
)

var kindInfo = map[Kind]struct{ name, description string }{
	KindFailure:         {"FAILURE", "An error occurred"},
	KindNotFound:        {"NOT_FOUND", "The item was not found"},
	KindExtSvcFailure:   {"EXT_SVC_FAILURE", "External service failure"},
	KindAlreadyExists:   {"ALREADY_EXISTS", "The item already exists"},
	KindMissingParam:    {"MISSING_PARAM", "Required parameter missing"},
	KindInvalidParam:    {"INVALID_PARAM", "Invalid value for parameter"},
	KindUnauthenticated: {"UNAUTHENTICATED", "Invalid or missing token"},
}

// Name returns the symbolic name, e.g. NOT_FOUND.
func (k Kind) Name() string {
	if ki, ok := kindInfo[k]; ok {
		return ki.name
	}
	return kindInfo[KindFailure].name
}

// Description returns the human description of the kind.
func (k Kind) Description() string {
	if ki, ok := kindInfo[k]; ok {
		return ki.description
	}
	return kindInfo[KindFailure].description
}

// Error makes every Kind usable as a sentinel.
func (k Kind) Error() string { return k.Name() }

// Common sentinels across store/service layers.
var (
	// ErrFailure is a generic internal failure.
	ErrFailure error = KindFailure

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound error = KindNotFound

	// ErrExtSvcFailure indicates an external dependency broke its contract or was unreachable.
	ErrExtSvcFailure error = KindExtSvcFailure

	// ErrAlreadyExists indicates a uniqueness violation (username taken, game already in group).
	ErrAlreadyExists error = KindAlreadyExists

	// ErrMissingParam indicates a required parameter was empty.
	ErrMissingParam error = KindMissingParam

	// ErrInvalidParam indicates a parameter had an unacceptable value.
	ErrInvalidParam error = KindInvalidParam

	// ErrUnauthenticated indicates a missing or unresolvable bearer token.
	ErrUnauthenticated error = KindUnauthenticated
)

// Error is a typed failure carrying a kind, a free-form info payload and an optional cause.
type Error struct {
	Kind  Kind
	Info  any
	cause error
}

// New builds an error of the given kind with an info payload.
func New(kind Kind, info any) *Error {
	return &Error{Kind: kind, Info: info}
}

// Wrap builds an error of the given kind around cause. Info defaults to the cause message.
func Wrap(kind Kind, cause error, info any) *Error {
	if info == nil && cause != nil {
		info = cause.Error()
	}
	return &Error{Kind: kind, Info: info, cause: cause}
}

func (e *Error) Error() string {
	switch v := e.Info.(type) {
	case nil:
		return e.Kind.Name()
	case string:
		return e.Kind.Name() + ": " + v
	default:
		return fmt.Sprintf("%s: %v", e.Kind.Name(), v)
	}
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

// MarshalJSON renders the {code, name, description, info} envelope body.
func (e *Error) MarshalJSON() ([]byte, error) {
	info := e.Info
	if err, ok := info.(error); ok {
		info = err.Error()
	}
	return json.Marshal(struct {
		Code        int    `json:"code"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Info        any    `json:"info,omitempty"`
	}{int(e.Kind), e.Kind.Name(), e.Kind.Description(), info})
}

// KindOf classifies err. Untyped errors are FAILURE.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return KindFailure
}

// From converts any error into *Error, keeping typed errors as they are.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindOf(err), err, nil)
}

// Failure formats a FAILURE.
func Failure(format string, args ...any) error {
	return New(KindFailure, fmt.Sprintf(format, args...))
}

// NotFound formats a NOT_FOUND.
func NotFound(format string, args ...any) error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// ExtSvcFailure formats an EXT_SVC_FAILURE.
func ExtSvcFailure(format string, args ...any) error {
	return New(KindExtSvcFailure, fmt.Sprintf(format, args...))
}

// AlreadyExists formats an ALREADY_EXISTS.
func AlreadyExists(format string, args ...any) error {
	return New(KindAlreadyExists, fmt.Sprintf(format, args...))
}

// InvalidParam formats an INVALID_PARAM.
func InvalidParam(format string, args ...any) error {
	return New(KindInvalidParam, fmt.Sprintf(format, args...))
}

// Unauthenticated formats an UNAUTHENTICATED.
func Unauthenticated(format string, args ...any) error {
	return New(KindUnauthenticated, fmt.Sprintf(format, args...))
}

// MissingParam reports the named parameter as missing.
func MissingParam(name string) error {
	return New(KindMissingParam, fmt.Sprintf("parameter '%s' is missing", name))
}

// Require returns MISSING_PARAM for the first empty value. Pairs are (name, value).
func Require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return MissingParam(pairs[i])
		}
	}
	return nil
}
