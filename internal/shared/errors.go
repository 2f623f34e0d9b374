package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates missing or invalid caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation not permitted in the current lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrPersistence indicates a storage failure; the in-flight operation was rolled back.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited indicates too many failed login attempts.
	ErrRateLimited = errors.New("too many failed attempts")
	// ErrForbidden indicates the current role may not perform the action.
	ErrForbidden = errors.New("forbidden")
)

// UserSafeMessage returns an error message that can be shown to the caller.
// Storage faults collapse into a generic message.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsDomain(err) {
		return err.Error()
	}
	return "Something went wrong, please try again"
}

// IsDomain reports whether err belongs to the caller-facing taxonomy.
func IsDomain(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrForbidden)
}

// Persistence tags a storage fault with ErrPersistence. Errors that already
// carry a domain meaning are returned unchanged.
func Persistence(op string, err error) error {
	if err == nil || IsDomain(err) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
