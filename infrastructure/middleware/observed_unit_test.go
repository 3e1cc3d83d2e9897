package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ahrav/go-tally/infrastructure/units"
	"github.com/ahrav/go-tally/internal/domain"
)

type failingUnit struct{ err error }

func (f failingUnit) Name() string    { return "failing" }
func (f failingUnit) Validate() error { return nil }
func (f failingUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	return state, f.err
}

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	return sr, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
}

func electionState() domain.State {
	q := domain.Question{
		ID:         "q1",
		Answers:    []domain.Answer{{Text: "A"}, {Text: "B"}, {Text: "C"}},
		NumWinners: 1,
		Min:        1,
		Max:        3,
	}
	state := domain.With(domain.NewState(), domain.KeyQuestion, q)
	state = domain.With(state, domain.KeyEncodedBallots, []string{"1", "1", "21", "3", "5", "9"})
	return state.WithExecutionContext(domain.ExecutionContext{
		TallyID:    "t-1",
		ElectionID: "e-1",
		Method:     units.STVHareClarkID,
	})
}

func TestObservedUnit_TracesAndMeasuresPipeline(t *testing.T) {
	sr, tp := newRecorder()
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	parser, err := units.NewBallotParserUnit("parser", units.DefaultBallotParserConfig())
	require.NoError(t, err)
	engine, err := units.NewSTVHareClarkUnit("stv", units.DefaultSTVHareClarkConfig())
	require.NoError(t, err)

	observedParser := NewObservedUnit(parser, pm, WithTracerProvider(tp))
	observedEngine := NewObservedUnit(engine, pm, WithTracerProvider(tp))
	assert.Equal(t, "parser", observedParser.Name())
	assert.NoError(t, observedParser.Validate())
	assert.Same(t, engine, observedEngine.Unwrap())

	ctx := context.Background()
	state, err := observedParser.Execute(ctx, electionState())
	require.NoError(t, err)
	state, err = observedEngine.Execute(ctx, state)
	require.NoError(t, err)

	tally, ok := domain.Get(state, domain.KeyTally)
	require.True(t, ok)
	assert.Equal(t, []int{0}, tally.Winners)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, "Unit.Execute", s.Name())
		assert.Equal(t, codes.Ok, s.Status().Code)
	}

	var engineEvents []string
	for _, e := range spans[1].Events() {
		engineEvents = append(engineEvents, e.Name)
	}
	assert.Equal(t, []string{"candidate.eliminated", "candidate.eliminated", "candidate.filled"}, engineEvents)
	assert.NotContains(t, engineEvents, "ballots.read", "totals are reported once, by the unit that produced them")

	labels := []string{"e-1", "q1"}
	assert.Equal(t, 4.0, testutil.ToFloat64(pm.ballots.WithLabelValues(append(labels, "valid")...)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.ballots.WithLabelValues(append(labels, "blank")...)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.ballots.WithLabelValues(append(labels, "null")...)))
	assert.Equal(t, float64(tally.RoundCount), testutil.ToFloat64(pm.rounds.WithLabelValues(labels...)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operationCounter.WithLabelValues("unit_execution", "success", "stv")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.decisions.WithLabelValues(append(labels, "eliminated")...)))

	// One latency series per unit; transfer values stay out of it.
	assert.Equal(t, 2, testutil.CollectAndCount(pm.executionLatency))
	assert.Equal(t, 2, testutil.CollectAndCount(pm.transferValues), "eliminated and filled")
	count, err := testutil.GatherAndCount(reg, MetricTransferValues)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestObservedUnit_RecordsErrors(t *testing.T) {
	sr, tp := newRecorder()
	pm := NewPrometheusMetrics(prometheus.NewRegistry())
	boom := errors.New("boom")

	_, err := NewObservedUnit(failingUnit{err: boom}, pm, WithTracerProvider(tp)).
		Execute(context.Background(), domain.NewState())
	assert.ErrorIs(t, err, boom)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operationCounter.WithLabelValues("unit_execution", "error", "failing")))
}

func TestObservedUnit_NilMetrics(t *testing.T) {
	engine, err := units.NewSTVHareClarkUnit("stv", units.DefaultSTVHareClarkConfig())
	require.NoError(t, err)

	state := domain.With(domain.NewState(), domain.KeyQuestion, domain.Question{
		ID: "q", Answers: []domain.Answer{{Text: "A"}}, NumWinners: 1, Min: 1, Max: 1,
	})
	state = domain.With(state, domain.KeyBallots, []domain.Ballot{{0}})

	assert.NotPanics(t, func() {
		_, err = NewObservedUnit(engine, nil).Execute(context.Background(), state)
	})
	assert.NoError(t, err)
}

func TestNewObservedUnit_RequiresUnit(t *testing.T) {
	assert.Panics(t, func() { NewObservedUnit(nil, nil) })
}
