package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

var (
	ErrTimeout             = errors.New("provider timed out")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidInput        = errors.New("invalid provider input")
	ErrUnknown             = errors.New("provider failed")
)

// Error is the typed failure every provider returns.
type Error struct {
	Stage models.StageID
	Kind  models.ErrorKind
	Op    string
	Err   error
}

// NewError builds a provider error. A nil err is replaced by the sentinel
// for kind.
func NewError(stage models.StageID, kind models.ErrorKind, op string, err error) *Error {
	if err == nil {
		err = sentinel(kind)
	}
	return &Error{Stage: stage, Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("provider %s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %s: %v", e.Stage, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(kind models.ErrorKind) error {
	switch kind {
	case models.ErrorTimeout:
		return ErrTimeout
	case models.ErrorUpstreamUnavailable:
		return ErrUpstreamUnavailable
	case models.ErrorInvalidInput:
		return ErrInvalidInput
	default:
		return ErrUnknown
	}
}

// KindOf classifies any error crossing the provider boundary.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return ""
	}
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, ErrTimeout):
		return models.ErrorTimeout
	case errors.Is(err, ErrUpstreamUnavailable):
		return models.ErrorUpstreamUnavailable
	case errors.Is(err, ErrInvalidInput):
		return models.ErrorInvalidInput
	default:
		return models.ErrorUnknown
	}
}
