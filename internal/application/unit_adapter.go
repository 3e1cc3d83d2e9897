package application

import (
	"context"

	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

var _ ports.Executable = (*UnitAdapter)(nil)

// UnitAdapter lets a ports.Unit run as a pipeline step.
type UnitAdapter struct {
	unit ports.Unit
	// id names the step within its pipeline.
	id string
}

// NewUnitAdapter wraps unit under the given step ID.
func NewUnitAdapter(unit ports.Unit, id string) *UnitAdapter {
	return &UnitAdapter{unit: unit, id: id}
}

// Execute delegates to the wrapped unit.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return ua.unit.Execute(ctx, state)
}

// ID returns the step ID.
func (ua *UnitAdapter) ID() string { return ua.id }
