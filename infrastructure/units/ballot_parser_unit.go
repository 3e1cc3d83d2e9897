package units

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

var _ ports.Unit = (*BallotParserUnit)(nil)

// BallotParserUnit decodes the encoded rankings of a question into ballots
// and fills a fresh BallotStore per execution.
//
// Decoding is the only embarrassingly parallel step of a tally, so rankings
// are split into chunks and decoded by up to ParseConcurrency goroutines.
// Results are then recorded in submission order, which keeps the ballot
// list, and therefore the whole count, deterministic.
type BallotParserUnit struct {
	name   string
	config BallotParserConfig
}

// BallotParserConfig controls how rankings are decoded.
type BallotParserConfig struct {
	// ParseConcurrency caps the number of goroutines decoding chunks.
	ParseConcurrency int `yaml:"parse_concurrency" json:"parse_concurrency" validate:"min=1,max=256"`

	// ChunkSize is the number of rankings each goroutine decodes at a time.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size" validate:"min=1,max=1000000"`
}

// ParsedBallot pairs a decoded ballot with its decoding error.
type ParsedBallot struct {
	Ballot domain.Ballot
	Err    error
}

// NewBallotParserUnit creates a BallotParserUnit with validated configuration.
func NewBallotParserUnit(name string, config BallotParserConfig) (*BallotParserUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &BallotParserUnit{name: name, config: config}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *BallotParserUnit) Name() string { return u.name }

// Execute reads domain.KeyQuestion together with domain.KeyEncodedBallots
// and/or domain.KeyChoices, and writes domain.KeyBallots and
// domain.KeyBallotTotals. Rejected ballots are logged at debug level and
// counted; they never fail the execution.
func (u *BallotParserUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	question, ok := domain.Get(state, domain.KeyQuestion)
	if !ok {
		return state, ErrNoQuestion
	}
	if err := question.Validate(); err != nil {
		return state, err
	}

	encoded, hasEncoded := domain.Get(state, domain.KeyEncodedBallots)
	choices, hasChoices := domain.Get(state, domain.KeyChoices)
	if !hasEncoded && !hasChoices {
		return state, ErrNoBallots
	}

	parsed, err := u.ParseBallots(ctx, question, encoded)
	if err != nil {
		return state, fmt.Errorf("ballot decoding failed: %w", err)
	}

	logger := zerolog.Ctx(ctx)
	store := NewBallotStore()
	for i, p := range parsed {
		if err := store.Record(p.Ballot, p.Err); err != nil {
			logRejected(logger, question.ID, i, err)
		}
	}
	for i, c := range choices {
		if err := store.AddChoices(c, question); err != nil {
			logRejected(logger, question.ID, len(parsed)+i, err)
		}
	}

	totals := store.Totals()
	logger.Debug().
		Str("question", question.ID).
		Int("valid", totals.ValidVotes).
		Int("blank", totals.BlankVotes).
		Int("null", totals.NullVotes).
		Msg("ballots decoded")

	return state.WithMultiple(map[string]any{
		domain.KeyBallots.Name():      store.Ballots(),
		domain.KeyBallotTotals.Name(): totals,
	}), nil
}

func logRejected(logger *zerolog.Logger, questionID string, position int, err error) {
	reason := "invalid"
	if errors.Is(err, domain.ErrBlankVote) {
		reason = "blank"
	}
	logger.Debug().
		Str("question", questionID).
		Int("position", position).
		Str("outcome", reason).
		Err(err).
		Msg("ballot rejected")
}

// ParseBallots decodes every ranking and returns one ParsedBallot per input,
// in input order. Decoding errors are per ballot; the returned error is only
// set when ctx is cancelled.
func (u *BallotParserUnit) ParseBallots(ctx context.Context, q domain.Question, encoded []string) ([]ParsedBallot, error) {
	results := make([]ParsedBallot, len(encoded))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.config.ParseConcurrency)
	for start := 0; start < len(encoded); start += u.config.ChunkSize {
		end := min(start+u.config.ChunkSize, len(encoded))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				ballot, err := ParseRanking(encoded[i], q)
				results[i] = ParsedBallot{Ballot: ballot, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Validate verifies the unit is properly configured.
func (u *BallotParserUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters decodes YAML parameters into the unit configuration.
// The current configuration is kept on error.
func (u *BallotParserUnit) UnmarshalParameters(params yaml.Node) error {
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

// DefaultBallotParserConfig returns a configuration that decodes with four
// goroutines in chunks of 512 rankings.
func DefaultBallotParserConfig() BallotParserConfig {
	return BallotParserConfig{
		ParseConcurrency: 4,
		ChunkSize:        512,
	}
}

// NewBallotParserFromConfig creates a BallotParserUnit from a configuration
// map. This is the boundary adapter for YAML/JSON configuration.
func NewBallotParserFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultBallotParserConfig()
	if err := overlayConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewBallotParserUnit(id, cfg)
}

// overlayConfig decodes a loosely typed map onto a config struct that
// already holds defaults.
func overlayConfig(config map[string]any, out any) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
