package application

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-tally/internal/domain"
)

// ElectionConfig is the root of an election file: the questions to count
// and the ballots cast on each of them.
type ElectionConfig struct {
	// Version is the schema version of the file, in X.Y.Z form.
	Version string `yaml:"version" validate:"required,semver"`
	// Election identifies the election the questions belong to.
	Election ElectionMetadata `yaml:"election" validate:"required"`
	// Questions are counted independently, in file order.
	Questions []QuestionConfig `yaml:"questions" validate:"required,min=1,dive"`
	// Tally tunes the counting pipeline. Every field is optional.
	Tally TallyConfig `yaml:"tally"`
}

// ElectionMetadata names an election.
type ElectionMetadata struct {
	ID    string `yaml:"id" validate:"required,min=1,max=100"`
	Title string `yaml:"title" validate:"max=255"`
}

// QuestionConfig describes one question and its ballots.
type QuestionConfig struct {
	ID    string `yaml:"id" validate:"required,min=1,max=100"`
	Title string `yaml:"title" validate:"max=1000"`
	// NumWinners is the number of seats to fill.
	NumWinners int `yaml:"num_winners" validate:"required,min=1"`
	// Min is the smallest number of preferences a ballot must express.
	Min int `yaml:"min" validate:"min=0"`
	// Max caps the preferences a ballot may express. Zero means one per
	// answer.
	Max int `yaml:"max" validate:"min=0"`
	// TruncateMaxOverload keeps the first Max preferences of a ballot that
	// ranks too many instead of rejecting it.
	TruncateMaxOverload bool  `yaml:"truncate_max_overload"`
	Withdrawals         []int `yaml:"withdrawals" validate:"dive,min=0"`

	Answers []AnswerConfig `yaml:"answers" validate:"required,min=1,dive"`

	// Ballots are encoded rankings. Each must be written exactly as cast;
	// leading zeros are significant to the field layout.
	Ballots []EncodedBallot `yaml:"ballots"`
	// Choices are rankings already decoded into answer indices. A -1 entry
	// marks the ballot as invalid.
	Choices [][]int `yaml:"choices"`
}

// AnswerConfig is one candidate answer. Text doubles as the tie-break label.
type AnswerConfig struct {
	Text string `yaml:"text" validate:"required"`
}

// TallyConfig carries optional pipeline settings. Zero values fall back to
// each unit's defaults.
type TallyConfig struct {
	ParseConcurrency   int    `yaml:"parse_concurrency" validate:"omitempty,min=1,max=256"`
	ChunkSize          int    `yaml:"chunk_size" validate:"omitempty,min=1,max=1000000"`
	LabelNormalization string `yaml:"label_normalization" validate:"omitempty,oneof=nfc none"`
	IncludeDecisions   *bool  `yaml:"include_decisions"`
}

// EncodedBallot is an encoded ranking read verbatim from YAML. Decoding the
// scalar as a number would drop leading zeros or reinterpret them as octal,
// so the raw text is kept.
type EncodedBallot string

// UnmarshalYAML keeps the scalar's source text.
func (b *EncodedBallot) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: ballot must be a scalar, got %s", node.Line, kindName(node.Kind))
	}
	*b = EncodedBallot(node.Value)
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}

// EffectiveMax returns Max, or the answer count when Max is unset.
func (qc QuestionConfig) EffectiveMax() int {
	if qc.Max == 0 {
		return len(qc.Answers)
	}
	return qc.Max
}

// Question converts the configuration into the domain question.
func (qc QuestionConfig) Question() domain.Question {
	answers := make([]domain.Answer, len(qc.Answers))
	for i, a := range qc.Answers {
		answers[i] = domain.Answer{Text: a.Text}
	}
	return domain.Question{
		ID:                  qc.ID,
		Title:               qc.Title,
		Answers:             answers,
		NumWinners:          qc.NumWinners,
		Min:                 qc.Min,
		Max:                 qc.EffectiveMax(),
		TruncateMaxOverload: qc.TruncateMaxOverload,
		Withdrawals:         append([]int(nil), qc.Withdrawals...),
	}
}

// EncodedBallots returns the encoded rankings as plain strings.
func (qc QuestionConfig) EncodedBallots() []string {
	out := make([]string, len(qc.Ballots))
	for i, b := range qc.Ballots {
		out[i] = string(b)
	}
	return out
}
