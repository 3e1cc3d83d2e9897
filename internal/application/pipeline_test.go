package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-tally/internal/domain"
)

var keyTrace = domain.NewKey[[]string]("trace")

// traceStep appends its ID to a trace list in the state.
type traceStep struct {
	id  string
	err error
}

func (s traceStep) ID() string { return s.id }

func (s traceStep) Execute(_ context.Context, state domain.State) (domain.State, error) {
	if s.err != nil {
		return state, s.err
	}
	trace, _ := domain.Get(state, keyTrace)
	return domain.With(state, keyTrace, append(append([]string(nil), trace...), s.id)), nil
}

func TestPipeline_ExecutesInOrder(t *testing.T) {
	p := NewPipeline("p")
	for _, id := range []string{"parse", "count", "project"} {
		require.NoError(t, p.Add(traceStep{id: id}))
	}

	input := domain.NewState()
	out, err := p.Execute(context.Background(), input)
	require.NoError(t, err)

	trace, ok := domain.Get(out, keyTrace)
	require.True(t, ok)
	assert.Equal(t, []string{"parse", "count", "project"}, trace)

	_, ok = domain.Get(input, keyTrace)
	assert.False(t, ok, "input state is never modified")
	assert.Equal(t, "p", p.ID())
	assert.Len(t, p.Executables(), 3)
}

func TestPipeline_StopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPipeline("p")
	require.NoError(t, p.Add(traceStep{id: "a"}))
	require.NoError(t, p.Add(traceStep{id: "b", err: boom}))
	require.NoError(t, p.Add(traceStep{id: "c"}))

	out, err := p.Execute(context.Background(), domain.NewState())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "execution failed at b")

	trace, _ := domain.Get(out, keyTrace)
	assert.Equal(t, []string{"a"}, trace, "the last successful state is returned")
}

func TestPipeline_Cancellation(t *testing.T) {
	p := NewPipeline("p")
	require.NoError(t, p.Add(traceStep{id: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Execute(ctx, domain.NewState())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Add(t *testing.T) {
	p := NewPipeline("p")
	assert.Error(t, p.Add(nil))
	require.NoError(t, p.Add(traceStep{id: "a"}))
	assert.ErrorContains(t, p.Add(traceStep{id: "a"}), "already exists")

	list := p.Executables()
	list[0] = traceStep{id: "z"}
	assert.Equal(t, "a", p.Executables()[0].ID(), "Executables returns a copy")
}

func TestPipeline_ConcurrentExecute(t *testing.T) {
	p := NewPipeline("p")
	require.NoError(t, p.Add(traceStep{id: "a"}))
	require.NoError(t, p.Add(traceStep{id: "b"}))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Execute(context.Background(), domain.NewState())
			assert.NoError(t, err)
			trace, _ := domain.Get(out, keyTrace)
			assert.Equal(t, []string{"a", "b"}, trace)
		}()
	}
	wg.Wait()
}

func TestUnitAdapter(t *testing.T) {
	registry := NewDefaultUnitRegistry()
	unit, err := registry.CreateUnit(UnitTypeSTVHareClark, "stv", nil)
	require.NoError(t, err)

	adapter := NewUnitAdapter(unit, "count")
	assert.Equal(t, "count", adapter.ID())

	state := domain.With(domain.NewState(), domain.KeyQuestion, domain.Question{
		ID: "q", Answers: []domain.Answer{{Text: "A"}}, NumWinners: 1, Max: 1,
	})
	state = domain.With(state, domain.KeyBallots, []domain.Ballot{{0}})
	out, err := adapter.Execute(context.Background(), state)
	require.NoError(t, err)

	tally, ok := domain.Get(out, domain.KeyTally)
	require.True(t, ok)
	assert.Equal(t, []int{0}, tally.Winners)
}
