package broker

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittobroker/pkg/pool"
)

// Kind classifies broker failures so transports can map them to their own
// status codes.
type Kind int

const (
	// KindInternal is an unexpected failure.
	KindInternal Kind = iota

	// KindValidation means a validator rejected the request.
	KindValidation

	// KindCapacity means the session limit or the principal's pool is full.
	// The client may retry later.
	KindCapacity

	// KindUnavailable means the server is not accepting connections.
	KindUnavailable

	// KindNotFound means the referenced session does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindCapacity:
		return "Capacity"
	case KindUnavailable:
		return "Unavailable"
	case KindNotFound:
		return "NotFound"
	default:
		return "Internal"
	}
}

var (
	ErrConnectionNotAvailable = errors.New("maximum number of sessions reached")
	ErrServerStopping         = errors.New("server is shutting down")
	ErrServerNotStarted       = errors.New("server is not started")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionClosed          = errors.New("session closed")
	ErrInvalidRequest         = errors.New("invalid connection request")
	ErrSessionOwner           = errors.New("session belongs to another principal")
)

// Error is returned by Server operations.
type Error struct {
	Kind Kind
	Op   string

	// Validator names the rejecting validator for KindValidation.
	Validator string

	Err error
}

func (e *Error) Error() string {
	if e.Validator != "" {
		return fmt.Sprintf("%s: %s rejected by %s: %v", e.Op, e.Kind, e.Validator, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err. Errors not produced by the broker are internal,
// except the pool's sentinels.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	switch {
	case errors.Is(err, pool.ErrPoolExhausted), errors.Is(err, ErrConnectionNotAvailable):
		return KindCapacity
	case errors.Is(err, ErrServerStopping), errors.Is(err, ErrServerNotStarted), errors.Is(err, pool.ErrPoolClosed):
		return KindUnavailable
	case errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	}
	return KindInternal
}

// IsKind reports whether err is of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
