// Package units provides the tally pipeline units that implement the
// ports.Unit interface: ballot decoding, the STV Hare-Clark round engine,
// and result projection.
package units

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Common errors returned by tally units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrNoQuestion is returned when the state carries no question.
	ErrNoQuestion = errors.New("question not found in state")

	// ErrNoBallots is returned when the state carries neither encoded nor
	// decoded ballots.
	ErrNoBallots = errors.New("ballots not found in state")

	// ErrNoTally is returned when the projector runs before the round engine.
	ErrNoTally = errors.New("tally not found in state")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
