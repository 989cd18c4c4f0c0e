package services

import (
	"errors"
	"fmt"

	repo "github.com/gigledger/escrow/internal/repository"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")

	ErrInvalidStateTransition = fmt.Errorf("%w: invalid state transition", ErrConflict)
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrBelowMinimum           = fmt.Errorf("%w: amount below minimum withdrawal", ErrValidation)
	ErrInvalidSignature       = errors.New("invalid payment signature")

	// ErrReleaseFailed means the payment was captured and the milestone funded,
	// but crediting the freelancer did not complete. Release can be retried.
	ErrReleaseFailed = errors.New("auto-release failed")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidStateTransition, fmt.Sprintf(format, args...))
}

// lookup turns a repository miss into ErrNotFound and leaves every other
// error alone, so storage faults stay system failures.
func lookup(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
