package domain

import "context"

// DecisionKind tells whether a round decision seated or removed a candidate.
type DecisionKind string

const (
	// DecisionElected marks a candidate declared winner by exceeding quota.
	DecisionElected DecisionKind = "elected"

	// DecisionFilled marks a candidate seated because the remaining
	// candidates exactly matched the remaining vacant seats.
	DecisionFilled DecisionKind = "filled"

	// DecisionEliminated marks the weakest candidate removed in a round where
	// nobody exceeded quota.
	DecisionEliminated DecisionKind = "eliminated"
)

// Decision records one candidate's fate in a given round.
type Decision struct {
	Round         int          `json:"round"`
	Candidate     int          `json:"candidate"`
	Kind          DecisionKind `json:"kind"`
	TransferValue float64      `json:"transfer_value"`
}

// CandidateTally is the per-candidate history produced by the round engine.
type CandidateTally struct {
	// Index is the candidate's position in Question.Answers.
	Index int `json:"index"`

	// Rounds holds one transfer value per round, round 0 first.
	Rounds []float64 `json:"rounds"`

	// DecisiveRound is the round in which the candidate was seated or
	// eliminated. It is nil when the count ended before a decision.
	DecisiveRound *int `json:"decisive_round"`
}

// Tally is the final state of a completed count.
type Tally struct {
	// Quota is (valid ballots + 1) / (seats + 1).
	Quota float64 `json:"quota"`

	// Winners lists candidate indices in the order they were declared.
	Winners []int `json:"winners"`

	// RoundCount is the number of rounds played, excluding round 0.
	RoundCount int `json:"round_count"`

	// Candidates is indexed by candidate index.
	Candidates []CandidateTally `json:"candidates"`

	// Decisions is the chronological log of winners and eliminations.
	Decisions []Decision `json:"decisions"`

	// ValidVotes is the number of ballots the count started with.
	ValidVotes int `json:"valid_votes"`
}

// AnswerResult is the projection of a candidate's outcome onto its answer
// record.
type AnswerResult struct {
	Index          int       `json:"index"`
	Text           string    `json:"text"`
	WinnerPosition *int      `json:"winner_position"`
	DecisiveRound  *int      `json:"decisive_round"`
	Rounds         []float64 `json:"rounds"`
}

// TallyResult is the outcome of tallying one question.
type TallyResult struct {
	ID         string         `json:"id"`
	QuestionID string         `json:"question_id"`
	Method     string         `json:"method"`
	Quota      float64        `json:"quota"`
	Winners    []int          `json:"winners"`
	RoundCount int            `json:"round_count"`
	Answers    []AnswerResult `json:"answers"`
	Decisions  []Decision     `json:"decisions,omitempty"`
	Totals     Totals         `json:"totals"`
}

// ElectionResult groups the results of every question of one election.
type ElectionResult struct {
	ElectionID string         `json:"election_id"`
	Title      string         `json:"title,omitempty"`
	Questions  []*TallyResult `json:"questions"`
}

// Tallier defines the contract of a counting method. Implementations are
// pure: they must not retain the ballots or the question after returning.
type Tallier interface {
	// ID returns the stable identifier of the counting method.
	ID() string

	// Description returns a human-readable name of the method.
	Description() string

	// Tally counts the ballots for the question and returns the final state.
	Tally(ctx context.Context, question Question, ballots []Ballot) (*Tally, error)
}
