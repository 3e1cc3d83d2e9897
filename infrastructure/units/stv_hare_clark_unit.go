package units

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

// Identity of the counting method.
const (
	STVHareClarkID          = "stv-hare-clark"
	STVHareClarkDescription = "STV Hare Clark Count voting"
)

var (
	_ ports.Unit     = (*STVHareClarkUnit)(nil)
	_ domain.Tallier = (*STVHareClarkUnit)(nil)
)

// LabelNormalization selects how answer labels are prepared before they are
// compared for tie-breaking.
type LabelNormalization string

const (
	// LabelsNFC compares labels in Unicode NFC form, so a label typed with
	// combining accents sorts like its precomposed twin.
	LabelsNFC LabelNormalization = "nfc"

	// LabelsRaw compares labels byte for byte.
	LabelsRaw LabelNormalization = "none"
)

// STVHareClarkUnit counts ballots with the Single Transferable Vote,
// Hare-Clark method.
//
// Algorithm: the quota is (valid ballots + 1) / (seats + 1) and never
// changes. Each candidate starts with the number of ballots ranking it
// first. Every round sorts the remaining candidates by transfer value
// (descending) then label (ascending) and walks that order: when the
// remaining candidates exactly fill the vacant seats they are all seated;
// otherwise anyone strictly above quota is elected, its surplus is handed
// on, and it is struck from every ballot. A round with no election
// eliminates the last candidate in the order and hands on its whole value.
// Counting stops once all seats are filled or no candidate remains.
//
// Termination: every round either seats or eliminates at least one
// candidate, so the count takes at most one round per candidate.
//
// Concurrency: the unit is stateless; each Tally call owns its round state.
type STVHareClarkUnit struct {
	name   string
	config STVHareClarkConfig
}

// STVHareClarkConfig controls the round engine.
type STVHareClarkConfig struct {
	// LabelNormalization is the label form used for tie-breaking.
	LabelNormalization LabelNormalization `yaml:"label_normalization" json:"label_normalization" validate:"required,oneof=nfc none"`
}

// NewSTVHareClarkUnit creates an STVHareClarkUnit with validated configuration.
func NewSTVHareClarkUnit(name string, config STVHareClarkConfig) (*STVHareClarkUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &STVHareClarkUnit{name: name, config: config}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *STVHareClarkUnit) Name() string { return u.name }

// ID returns the counting method identifier.
func (u *STVHareClarkUnit) ID() string { return STVHareClarkID }

// Description returns the human-readable method name.
func (u *STVHareClarkUnit) Description() string { return STVHareClarkDescription }

// Execute reads domain.KeyQuestion and domain.KeyBallots and writes the
// final count to domain.KeyTally.
func (u *STVHareClarkUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	question, ok := domain.Get(state, domain.KeyQuestion)
	if !ok {
		return state, ErrNoQuestion
	}
	ballots, ok := domain.Get(state, domain.KeyBallots)
	if !ok {
		return state, ErrNoBallots
	}

	tally, err := u.Tally(ctx, question, ballots)
	if err != nil {
		return state, err
	}
	return domain.With(state, domain.KeyTally, tally), nil
}

// Tally runs the round loop to completion. It fails only on precondition
// violations: an invalid question or a malformed ballot.
func (u *STVHareClarkUnit) Tally(ctx context.Context, question domain.Question, ballots []domain.Ballot) (*domain.Tally, error) {
	if err := question.Validate(); err != nil {
		return nil, err
	}

	rs, err := newRoundState(question, ballots, u.labels(question))
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", question.ID, err)
	}

	logger := zerolog.Ctx(ctx)
	logger.Debug().
		Str("question", question.ID).
		Float64("quota", rs.quota).
		Int("seats", question.NumWinners).
		Int("ballots", rs.validVotes).
		Msg("count started")

	for rs.active() {
		seen := len(rs.decisions)
		rs.playRound()
		for _, d := range rs.decisions[seen:] {
			logger.Debug().
				Str("question", question.ID).
				Int("round", d.Round).
				Int("candidate", d.Candidate).
				Str("label", question.Answers[d.Candidate].Text).
				Str("kind", string(d.Kind)).
				Float64("transfer_value", d.TransferValue).
				Msg("round decision")
		}
		logger.Trace().Stringer("state", rs).Msg("round finished")
	}

	return rs.result(), nil
}

func (u *STVHareClarkUnit) labels(q domain.Question) []string {
	labels := q.Labels()
	if u.config.LabelNormalization == LabelsNFC {
		for i, l := range labels {
			labels[i] = norm.NFC.String(l)
		}
	}
	return labels
}

// Validate verifies the unit is properly configured.
func (u *STVHareClarkUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters decodes YAML parameters into the unit configuration.
// The current configuration is kept on error.
func (u *STVHareClarkUnit) UnmarshalParameters(params yaml.Node) error {
	config := u.config
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	u.config = config
	return nil
}

// DefaultSTVHareClarkConfig returns the default configuration: NFC labels.
func DefaultSTVHareClarkConfig() STVHareClarkConfig {
	return STVHareClarkConfig{LabelNormalization: LabelsNFC}
}

// NewSTVHareClarkFromConfig creates an STVHareClarkUnit from a configuration
// map. This is the boundary adapter for YAML/JSON configuration.
func NewSTVHareClarkFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultSTVHareClarkConfig()
	if err := overlayConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewSTVHareClarkUnit(id, cfg)
}
