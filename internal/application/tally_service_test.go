package application

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ahrav/go-tally/infrastructure/middleware"
	"github.com/ahrav/go-tally/infrastructure/units"
	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

func newService(t *testing.T, config TallyConfig, opts ...ServiceOption) *TallyService {
	t.Helper()
	s, err := NewTallyService(NewDefaultUnitRegistry(), config, opts...)
	require.NoError(t, err)
	return s
}

// TestTallyService_Election runs the sample election end to end through the
// loader, the three units and the projector.
func TestTallyService_Election(t *testing.T) {
	config, err := newLoader(t).LoadFromReader(strings.NewReader(sampleElection))
	require.NoError(t, err)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reg := prometheus.NewRegistry()

	var logs bytes.Buffer
	s := newService(t, config.Tally,
		WithMetrics(middleware.NewPrometheusMetrics(reg)),
		WithTracerProvider(tp),
		WithLogger(zerolog.New(&logs).Level(zerolog.DebugLevel)),
	)

	result, err := s.TallyElection(context.Background(), config)
	require.NoError(t, err)

	assert.Equal(t, "board-2026", result.ElectionID)
	require.Len(t, result.Questions, 2)

	chair := result.Questions[0]
	assert.Equal(t, "chair", chair.QuestionID)
	assert.Equal(t, units.STVHareClarkID, chair.Method)
	assert.NotEmpty(t, chair.ID)
	assert.Equal(t, 2.5, chair.Quota)
	assert.Equal(t, []int{0}, chair.Winners)
	assert.Equal(t, 3, chair.RoundCount)
	assert.Equal(t, domain.Totals{ValidVotes: 4, BlankVotes: 1, NullVotes: 1}, chair.Totals)
	assert.Nil(t, chair.Decisions, "include_decisions: false")
	require.NotNil(t, chair.Answers[0].WinnerPosition)
	assert.Equal(t, 0, *chair.Answers[0].WinnerPosition)
	assert.Equal(t, []float64{2, 2, 3, 3}, chair.Answers[0].Rounds)

	treasurer := result.Questions[1]
	assert.Equal(t, []int{1}, treasurer.Winners)
	assert.Equal(t, domain.Totals{ValidVotes: 3, BlankVotes: 0, NullVotes: 1}, treasurer.Totals)
	assert.NotEqual(t, chair.ID, treasurer.ID, "every run gets its own tally ID")

	// Three unit spans per question.
	assert.Len(t, sr.Ended(), 6)

	count, err := testutil.GatherAndCount(reg, middleware.MetricRounds)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Contains(t, logs.String(), `"message":"tally finished"`)
	assert.Contains(t, logs.String(), `"message":"round decision"`)
}

func TestTallyService_JSONContract(t *testing.T) {
	s := newService(t, TallyConfig{})
	q := domain.Question{
		ID:         "q",
		Answers:    []domain.Answer{{Text: "A"}, {Text: "B"}},
		NumWinners: 1,
		Min:        1,
		Max:        2,
	}

	result, err := s.TallyQuestion(context.Background(), "e", q, []string{"1", "1", "2"}, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "quota")
	assert.Contains(t, decoded, "decisions", "decisions are included by default")

	answers := decoded["answers"].([]any)
	winner := answers[0].(map[string]any)
	loser := answers[1].(map[string]any)
	assert.Equal(t, 0.0, winner["winner_position"])
	assert.Nil(t, loser["winner_position"])
	assert.Contains(t, loser, "decisive_round")
	assert.Equal(t, 2.0, decoded["totals"].(map[string]any)["valid_votes"])
}

func TestTallyService_NoBallots(t *testing.T) {
	s := newService(t, TallyConfig{})
	q := domain.Question{
		ID:         "q",
		Answers:    []domain.Answer{{Text: "A"}, {Text: "B"}, {Text: "C"}},
		NumWinners: 1,
		Max:        3,
	}

	result, err := s.TallyQuestion(context.Background(), "e", q, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, result.Winners)
	assert.Equal(t, 0, result.Totals.ValidVotes)
}

func TestTallyService_Errors(t *testing.T) {
	_, err := NewTallyService(nil, TallyConfig{})
	assert.Error(t, err)

	_, err = NewTallyService(NewDefaultUnitRegistry(), TallyConfig{LabelNormalization: "nfd"})
	assert.Error(t, err, "invalid unit parameters fail at construction")

	s := newService(t, TallyConfig{})
	bad := domain.Question{ID: "q", Answers: []domain.Answer{{Text: "A"}}, NumWinners: 0, Max: 1}
	_, err = s.TallyQuestion(context.Background(), "e", bad, []string{"1"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidQuestion)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	config, err := newLoader(t).LoadFromReader(strings.NewReader(sampleElection))
	require.NoError(t, err)
	_, err = s.TallyElection(ctx, config)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTallyService_CustomRegistry(t *testing.T) {
	registry := NewDefaultUnitRegistry()
	calls := 0
	require.NoError(t, registry.RegisterUnitFactory(UnitTypeResultProjector,
		func(id string, config map[string]any) (ports.Unit, error) {
			calls++
			return units.NewResultProjectorFromConfig(id, config)
		}))

	s, err := NewTallyService(registry, TallyConfig{})
	require.NoError(t, err)
	_, err = s.TallyQuestion(context.Background(), "e", domain.Question{
		ID: "q", Answers: []domain.Answer{{Text: "A"}}, NumWinners: 1, Max: 1,
	}, []string{"1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "one pipeline at construction, one per question")
}
