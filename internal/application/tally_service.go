package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-tally/infrastructure/middleware"
	"github.com/ahrav/go-tally/infrastructure/units"
	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

// ErrNoResult is returned when a pipeline finishes without producing a
// result.
var ErrNoResult = errors.New("pipeline produced no result")

// pipelineSteps lists the unit types run for every question, in order.
var pipelineSteps = []string{
	UnitTypeBallotParser,
	UnitTypeSTVHareClark,
	UnitTypeResultProjector,
}

// TallyService counts questions by running the ballot parser, the round
// engine and the result projector as one pipeline per question. A service
// is safe for concurrent use; every call builds its own pipeline and state.
type TallyService struct {
	registry       ports.UnitRegistry
	config         TallyConfig
	metrics        ports.MetricsCollector
	tracerProvider trace.TracerProvider
	logger         zerolog.Logger
}

// ServiceOption configures a TallyService.
type ServiceOption func(*TallyService)

// WithMetrics reports unit latency, ballot totals and count outcomes to m.
func WithMetrics(m ports.MetricsCollector) ServiceOption {
	return func(s *TallyService) { s.metrics = m }
}

// WithTracerProvider starts unit spans from tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *TallyService) { s.tracerProvider = tp }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *TallyService) { s.logger = l }
}

// NewTallyService creates a service that builds its units from registry.
// The configuration is checked by building one pipeline up front.
func NewTallyService(registry ports.UnitRegistry, config TallyConfig, opts ...ServiceOption) (*TallyService, error) {
	if registry == nil {
		return nil, fmt.Errorf("unit registry is required")
	}
	s := &TallyService{
		registry: registry,
		config:   config,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.buildPipeline("validate"); err != nil {
		return nil, err
	}
	return s, nil
}

// unitParams maps the tally configuration onto each unit's parameters.
// Unset fields are left out so the unit defaults apply.
func (s *TallyService) unitParams(unitType string) map[string]any {
	params := make(map[string]any)
	switch unitType {
	case UnitTypeBallotParser:
		if s.config.ParseConcurrency > 0 {
			params["parse_concurrency"] = s.config.ParseConcurrency
		}
		if s.config.ChunkSize > 0 {
			params["chunk_size"] = s.config.ChunkSize
		}
	case UnitTypeSTVHareClark:
		if s.config.LabelNormalization != "" {
			params["label_normalization"] = s.config.LabelNormalization
		}
	case UnitTypeResultProjector:
		if s.config.IncludeDecisions != nil {
			params["include_decisions"] = *s.config.IncludeDecisions
		}
	}
	return params
}

func (s *TallyService) buildPipeline(id string) (*Pipeline, error) {
	var observe []middleware.ObservedOption
	if s.tracerProvider != nil {
		observe = append(observe, middleware.WithTracerProvider(s.tracerProvider))
	}

	pipeline := NewPipeline(id)
	for _, unitType := range pipelineSteps {
		unit, err := s.registry.CreateUnit(unitType, unitType, s.unitParams(unitType))
		if err != nil {
			return nil, err
		}
		if err := unit.Validate(); err != nil {
			return nil, fmt.Errorf("unit %s: %w", unitType, err)
		}
		observed := middleware.NewObservedUnit(unit, s.metrics, observe...)
		if err := pipeline.Add(NewUnitAdapter(observed, unitType)); err != nil {
			return nil, err
		}
	}
	return pipeline, nil
}

// TallyQuestion counts one question. Ballots may be given encoded, as
// decoded choices, or both; nil for both counts zero ballots.
func (s *TallyService) TallyQuestion(
	ctx context.Context,
	electionID string,
	question domain.Question,
	encoded []string,
	choices [][]int,
) (*domain.TallyResult, error) {
	tallyID := uuid.NewString()
	logger := s.logger.With().
		Str("tally_id", tallyID).
		Str("election", electionID).
		Str("question", question.ID).
		Logger()
	ctx = logger.WithContext(ctx)

	pipeline, err := s.buildPipeline(tallyID)
	if err != nil {
		return nil, err
	}

	if encoded == nil && choices == nil {
		encoded = []string{}
	}
	state := domain.With(domain.NewState(), domain.KeyQuestion, question)
	if encoded != nil {
		state = domain.With(state, domain.KeyEncodedBallots, encoded)
	}
	if choices != nil {
		state = domain.With(state, domain.KeyChoices, choices)
	}
	state = state.WithExecutionContext(domain.ExecutionContext{
		TallyID:    tallyID,
		ElectionID: electionID,
		Method:     units.STVHareClarkID,
	})

	logger.Info().
		Int("answers", len(question.Answers)).
		Int("seats", question.NumWinners).
		Int("submitted", len(encoded)+len(choices)).
		Msg("tally started")

	out, err := pipeline.Execute(ctx, state)
	if err != nil {
		logger.Error().Err(err).Strs("state_keys", out.Keys()).Msg("tally failed")
		return nil, fmt.Errorf("question %s: %w", question.ID, err)
	}

	result, ok := domain.Get(out, domain.KeyResult)
	if !ok || result == nil {
		return nil, fmt.Errorf("question %s: %w", question.ID, ErrNoResult)
	}

	logger.Info().
		Ints("winners", result.Winners).
		Int("rounds", result.RoundCount).
		Float64("quota", result.Quota).
		Int("valid", result.Totals.ValidVotes).
		Int("blank", result.Totals.BlankVotes).
		Int("null", result.Totals.NullVotes).
		Msg("tally finished")
	return result, nil
}

// TallyElection counts every question of the election in file order. The
// questions are independent; the first failure stops the run.
func (s *TallyService) TallyElection(ctx context.Context, election *ElectionConfig) (*domain.ElectionResult, error) {
	result := &domain.ElectionResult{
		ElectionID: election.Election.ID,
		Title:      election.Election.Title,
		Questions:  make([]*domain.TallyResult, 0, len(election.Questions)),
	}
	for _, qc := range election.Questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var encoded []string
		if qc.Ballots != nil {
			encoded = qc.EncodedBallots()
		}
		qr, err := s.TallyQuestion(ctx, election.Election.ID, qc.Question(), encoded, qc.Choices)
		if err != nil {
			return nil, err
		}
		result.Questions = append(result.Questions, qr)
	}
	return result, nil
}
