package application

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-tally/infrastructure/units"
	"github.com/ahrav/go-tally/internal/ports"
)

// Unit types known to the default registry.
const (
	UnitTypeBallotParser    = "ballot_parser"
	UnitTypeSTVHareClark    = "stv_hare_clark"
	UnitTypeResultProjector = "result_projector"
)

// Verify interface compliance at compile time.
var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// DefaultUnitRegistry implements the UnitRegistry interface, creating tally
// units from their type name and a configuration map.
type DefaultUnitRegistry struct {
	// factories maps unit type strings to their factory functions.
	factories map[string]ports.UnitFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
}

// NewDefaultUnitRegistry creates a registry with the ballot parser, the
// Hare-Clark round engine and the result projector registered.
func NewDefaultUnitRegistry() *DefaultUnitRegistry {
	return &DefaultUnitRegistry{
		factories: map[string]ports.UnitFactory{
			UnitTypeBallotParser:    units.NewBallotParserFromConfig,
			UnitTypeSTVHareClark:    units.NewSTVHareClarkFromConfig,
			UnitTypeResultProjector: units.NewResultProjectorFromConfig,
		},
	}
}

// CreateUnit creates a new unit instance of the given type.
func (r *DefaultUnitRegistry) CreateUnit(
	unitType string,
	id string,
	config map[string]any,
) (ports.Unit, error) {
	r.mu.RLock()
	factory, exists := r.factories[unitType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported unit type: %s", unitType)
	}
	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}
	if config == nil {
		config = make(map[string]any)
	}

	unit, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}
	return unit, nil
}

// RegisterUnitFactory registers a factory for a unit type, replacing any
// existing one.
func (r *DefaultUnitRegistry) RegisterUnitFactory(
	unitType string,
	factory ports.UnitFactory,
) error {
	if unitType == "" {
		return fmt.Errorf("unit type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[unitType] = factory
	return nil
}

// GetSupportedTypes returns the registered unit types in sorted order.
func (r *DefaultUnitRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for unitType := range r.factories {
		types = append(types, unitType)
	}
	slices.Sort(types)
	return types
}
