package ports

import (
	"context"

	"github.com/ahrav/go-tally/internal/domain"
)

// Executable defines the contract for components that run as a step of a
// tally pipeline.
type Executable interface {
	// Execute processes the given state and returns the updated state.
	// The input state is immutable and MUST NOT be modified; use
	// domain.With or state.WithMultiple to derive a new one.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID returns the unique string identifier for this executable.
	ID() string
}

// Pipeline runs executables in strict order, feeding each one's output
// state to the next.
type Pipeline interface {
	Executable

	// Add appends an executable to the end of the pipeline.
	// Add returns an error if the executable is nil or its ID is taken.
	Add(exec Executable) error

	// Executables returns the ordered list of executables.
	// The returned slice should not be modified by callers.
	Executables() []Executable
}
