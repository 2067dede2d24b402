// Package chaterr classifies failures coming back from the auth, storage and
// document collaborators so callers can turn them into status text or
// transport codes without string matching.
package chaterr

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an Error.
type Kind int

const (
	// Unknown is returned by KindOf for errors that were never classified.
	Unknown Kind = iota
	// Auth covers bad credentials and identity lookups that fail.
	Auth
	// Write covers document and object writes.
	Write
	// Read covers queries and subscriptions.
	Read
	// DataShape covers stored payloads that do not decode.
	DataShape
)

func (k Kind) String() string {
	switch k {
	case Auth:
		return "auth"
	case Write:
		return "write"
	case Read:
		return "read"
	case DataShape:
		return "data shape"
	default:
		return "unknown"
	}
}

// ErrNotFound is wrapped by Read errors when the requested document or object
// does not exist.
var ErrNotFound = errors.New("not found")

// Error is a classified failure. Op names the operation that failed, e.g.
// "messages/alice/bob add".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match for a bare *Error carrying only a Kind, so
// errors.Is(err, &chaterr.Error{Kind: chaterr.Write}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func newErr(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Err: err}
}

// NewAuth wraps err as an Auth failure. A nil err yields nil.
func NewAuth(op string, err error) error { return newErr(Auth, op, err) }

// NewWrite wraps err as a Write failure. A nil err yields nil.
func NewWrite(op string, err error) error { return newErr(Write, op, err) }

// NewRead wraps err as a Read failure. A nil err yields nil.
func NewRead(op string, err error) error { return newErr(Read, op, err) }

// NewDataShape wraps err as a DataShape failure. A nil err yields nil.
func NewDataShape(op string, err error) error { return newErr(DataShape, op, err) }

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
