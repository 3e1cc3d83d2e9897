package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while reading ballots or preparing
// a tally.
var (
	// ErrBlankVote indicates that a ranking explicitly encodes an intentional
	// blank vote. Blank ballots are excluded from the tally but are not
	// counted as invalid.
	ErrBlankVote = errors.New("blank vote")

	// ErrInvalidVote indicates that a ranking could not be accepted: an
	// out-of-range or duplicated candidate, too few selections, or too many
	// selections without truncation permission.
	ErrInvalidVote = errors.New("invalid vote")

	// ErrInvalidQuestion indicates that a question cannot be tallied, for
	// example because it has no answers or no seats.
	ErrInvalidQuestion = errors.New("invalid question")
)

// VoteError describes why a single ballot was rejected. It always wraps
// either ErrBlankVote or ErrInvalidVote so callers can branch with
// errors.Is without parsing the message.
type VoteError struct {
	// Reason is a short, stable description of the rejection.
	Reason string

	// Err is the sentinel that classifies the rejection.
	Err error
}

// Error implements the error interface for VoteError.
func (e *VoteError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

// Unwrap returns the classifying sentinel.
func (e *VoteError) Unwrap() error { return e.Err }

// NewInvalidVoteError returns a VoteError wrapping ErrInvalidVote.
func NewInvalidVoteError(format string, args ...any) *VoteError {
	return &VoteError{Reason: fmt.Sprintf(format, args...), Err: ErrInvalidVote}
}

// NewBlankVoteError returns a VoteError wrapping ErrBlankVote.
func NewBlankVoteError() *VoteError { return &VoteError{Err: ErrBlankVote} }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets errors.Is(err, ErrInvalidQuestion) match question failures.
func (e *ValidationError) Unwrap() error { return ErrInvalidQuestion }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
