package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("registration rejected")
	// ErrNotAuthenticated is returned by authenticated calls made without a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionInvalidated is returned when the backend rejected the token
	// and the session was reset.
	ErrSessionInvalidated = errors.New("session expired, please sign in again")
)

type AuthErrorKind int

const (
	InvalidCredentials AuthErrorKind = iota + 1
	Validation
)

func (k AuthErrorKind) String() string {
	switch k {
	case InvalidCredentials:
		return "invalid_credentials"
	case Validation:
		return "validation"
	default:
		return "unknown"
	}
}

// AuthError reports a failed login or registration. errors.Is matches it
// against ErrInvalidCredentials or ErrValidation according to Kind.
type AuthError struct {
	Kind AuthErrorKind
	// Detail is the server-supplied reason, when there is one.
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case Validation:
		if e.Detail != "" {
			return fmt.Sprintf("registration failed: %s", e.Detail)
		}
		return "registration failed"
	default:
		return "invalid email or password"
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrInvalidCredentials:
		return e.Kind == InvalidCredentials
	case ErrValidation:
		return e.Kind == Validation
	}
	return false
}
