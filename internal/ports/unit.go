// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-tally/internal/domain"
)

// Unit represents one step of the tally pipeline. Each Unit reads what it
// needs from the State and returns a new State carrying its output.
// Units hold configuration only; all per-tally data lives in the State, so
// a Unit is safe to reuse across tallies and goroutines.
type Unit interface {
	// Name returns a unique identifier for this unit.
	// The name is used for logging, tracing and metric labels.
	Name() string

	// Execute performs the unit's transformation on the provided State.
	// The original State must not be modified.
	//
	// Example:
	//
	//	newState, err := unit.Execute(ctx, state)
	//	if err != nil {
	//	    return state, fmt.Errorf("unit %s failed: %w", unit.Name(), err)
	//	}
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks if the unit is properly configured and ready for
	// execution.
	Validate() error
}

// UnitFactory builds a Unit from an identifier and a loosely typed
// configuration map, usually decoded from YAML.
type UnitFactory func(id string, config map[string]any) (Unit, error)

// UnitRegistry creates units by type name.
type UnitRegistry interface {
	// CreateUnit builds a unit of the given type.
	CreateUnit(unitType string, id string, config map[string]any) (Unit, error)

	// RegisterUnitFactory adds or replaces the factory for a unit type.
	RegisterUnitFactory(unitType string, factory UnitFactory) error

	// GetSupportedTypes lists the registered unit types.
	GetSupportedTypes() []string
}
