package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the session, credential and CSRF components
var (
	// Session errors
	ErrSessionFault    = errors.New("session fault")
	ErrSessionNotFound = errors.New("session not found")

	// Authentication errors
	ErrAuthReject    = errors.New("credentials rejected")
	ErrAuthMalformed = errors.New("credentials missing")

	// CSRF errors
	ErrCSRFInvalid     = errors.New("csrf token invalid")
	ErrTokenGeneration = errors.New("csrf token generation failed")
	ErrUnknownForm     = errors.New("unknown csrf form")

	// General errors
	ErrNotFound = errors.New("not found")
)

// New returns an error with the given text
func New(text string) error {
	return errors.New(text)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
