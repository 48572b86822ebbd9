package tickets

import (
	"errors"
	"fmt"

	"github.com/godilite/aiticket/internal/api"
)

var (
	ErrNetwork        = errors.New("could not reach the ticket service")
	ErrServerRejected = errors.New("ticket service rejected the request")
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
)

type ErrorKind int

const (
	Network ErrorKind = iota + 1
	ServerRejected
)

// RepositoryError describes a failed backend round trip. errors.Is matches
// ErrNetwork or ErrServerRejected according to Kind.
type RepositoryError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Detail     string
	Err        error
}

func (e *RepositoryError) Error() string {
	switch e.Kind {
	case ServerRejected:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %v (%d): %s", e.Op, ErrServerRejected, e.StatusCode, e.Detail)
		}
		return fmt.Sprintf("%s: %v (%d)", e.Op, ErrServerRejected, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, ErrNetwork, e.Err)
	}
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func (e *RepositoryError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == Network
	case ErrServerRejected:
		return e.Kind == ServerRejected
	}
	return false
}

func wrapError(op string, err error) *RepositoryError {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return &RepositoryError{
			Op:         op,
			Kind:       ServerRejected,
			StatusCode: apiErr.StatusCode,
			Detail:     apiErr.Detail,
			Err:        err,
		}
	}
	return &RepositoryError{Op: op, Kind: Network, Err: err}
}
