package units

import (
	"context"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

var _ ports.Unit = (*ResultProjectorUnit)(nil)

// ResultProjectorUnit maps the round engine's final state onto one result
// record per answer: winner position, decisive round and transfer-value
// history. It performs no counting of its own.
type ResultProjectorUnit struct {
	name   string
	config ResultProjectorConfig
}

// ResultProjectorConfig controls what the projection carries.
type ResultProjectorConfig struct {
	// IncludeDecisions attaches the chronological decision log.
	IncludeDecisions bool `yaml:"include_decisions" json:"include_decisions"`
}

// NewResultProjectorUnit creates a ResultProjectorUnit.
func NewResultProjectorUnit(name string, config ResultProjectorConfig) (*ResultProjectorUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &ResultProjectorUnit{name: name, config: config}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *ResultProjectorUnit) Name() string { return u.name }

// Execute reads domain.KeyQuestion, domain.KeyTally and, when present,
// domain.KeyBallotTotals and the execution context, and writes
// domain.KeyResult.
func (u *ResultProjectorUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	question, ok := domain.Get(state, domain.KeyQuestion)
	if !ok {
		return state, ErrNoQuestion
	}
	tally, ok := domain.Get(state, domain.KeyTally)
	if !ok || tally == nil {
		return state, ErrNoTally
	}

	totals, ok := domain.Get(state, domain.KeyBallotTotals)
	if !ok {
		totals = domain.Totals{}
	}
	// valid_votes is by definition the number of ballots the engine counted.
	totals.ValidVotes = tally.ValidVotes

	result, err := u.Project(question, tally, totals)
	if err != nil {
		return state, err
	}
	if ec, ok := state.GetExecutionContext(); ok {
		result.ID = ec.TallyID
		result.Method = ec.Method
	}
	return domain.With(state, domain.KeyResult, result), nil
}

// Project builds the per-answer result. Winner positions are the order in
// which winners were declared, not an alphabetical ranking.
func (u *ResultProjectorUnit) Project(question domain.Question, tally *domain.Tally, totals domain.Totals) (*domain.TallyResult, error) {
	if len(tally.Candidates) != len(question.Answers) {
		return nil, fmt.Errorf("tally has %d candidates, question %s has %d answers",
			len(tally.Candidates), question.ID, len(question.Answers))
	}

	answers := make([]domain.AnswerResult, len(question.Answers))
	for i, a := range question.Answers {
		c := tally.Candidates[i]
		answers[i] = domain.AnswerResult{
			Index:         i,
			Text:          a.Text,
			DecisiveRound: c.DecisiveRound,
			Rounds:        slices.Clone(c.Rounds),
		}
	}
	for pos, w := range tally.Winners {
		p := pos
		answers[w].WinnerPosition = &p
	}

	result := &domain.TallyResult{
		QuestionID: question.ID,
		Method:     STVHareClarkID,
		Quota:      tally.Quota,
		Winners:    slices.Clone(tally.Winners),
		RoundCount: tally.RoundCount,
		Answers:    answers,
		Totals:     totals,
	}
	if u.config.IncludeDecisions {
		result.Decisions = slices.Clone(tally.Decisions)
	}
	return result, nil
}

// Validate verifies the unit is properly configured.
func (u *ResultProjectorUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters decodes YAML parameters into the unit configuration.
func (u *ResultProjectorUnit) UnmarshalParameters(params yaml.Node) error {
	config := u.config
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	u.config = config
	return nil
}

// DefaultResultProjectorConfig returns a configuration that includes the
// decision log.
func DefaultResultProjectorConfig() ResultProjectorConfig {
	return ResultProjectorConfig{IncludeDecisions: true}
}

// NewResultProjectorFromConfig creates a ResultProjectorUnit from a
// configuration map.
func NewResultProjectorFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultResultProjectorConfig()
	if err := overlayConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewResultProjectorUnit(id, cfg)
}
