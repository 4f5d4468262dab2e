package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrAlreadySubmitted = errors.New("already submitted today")
	ErrFormat           = errors.New("invalid workload format")
	// ErrInsufficientData means there is no chronic history to divide by.
	// It is a state, not a zero ratio.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrCollaboratorUnavailable wraps storage and messaging I/O failures.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
}
