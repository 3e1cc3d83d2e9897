package domain

import (
	"fmt"
	"slices"
)

// Answer is one candidate of a question. Its position in Question.Answers is
// the stable candidate index used by ballots.
type Answer struct {
	// Text is the human-readable label. It is only used to break ties in the
	// per-round ordering, never for counting.
	Text string `json:"text"`
}

// Question describes a single STV contest: its candidates, the number of
// seats to fill, and the selection bounds each ballot must respect.
type Question struct {
	// ID identifies the question within its election.
	ID string `json:"id"`

	// Title is a free-form description of the contest.
	Title string `json:"title,omitempty"`

	// Answers lists the candidates in index order.
	Answers []Answer `json:"answers"`

	// NumWinners is the number of seats to fill.
	NumWinners int `json:"num_winners"`

	// Min is the minimum number of ranked candidates a ballot must carry.
	Min int `json:"min"`

	// Max is the maximum number of ranked candidates a ballot may carry.
	Max int `json:"max"`

	// TruncateMaxOverload makes the parser cut overlong rankings down to Max
	// instead of rejecting them.
	TruncateMaxOverload bool `json:"truncate_max_overload,omitempty"`

	// Withdrawals lists candidate indices that withdrew after ballots were
	// cast. They are skipped when rankings are decoded.
	Withdrawals []int `json:"withdrawals,omitempty"`
}

// IsWithdrawn reports whether the candidate index is in the withdrawal set.
func (q Question) IsWithdrawn(index int) bool {
	return slices.Contains(q.Withdrawals, index)
}

// Labels returns the candidate labels in index order.
func (q Question) Labels() []string {
	labels := make([]string, len(q.Answers))
	for i, a := range q.Answers {
		labels[i] = a.Text
	}
	return labels
}

// Validate checks the preconditions the tally relies on. A question with
// no answers or no seats cannot be counted and is rejected here rather than
// inside the round loop.
func (q Question) Validate() error {
	verr := NewValidationError(fmt.Sprintf("question %q", q.ID))

	if len(q.Answers) == 0 {
		verr.AddError("at least one answer is required")
	}
	if q.NumWinners <= 0 {
		verr.AddError("num_winners must be positive")
	}
	if len(q.Answers) > 0 && q.NumWinners > len(q.Answers) {
		verr.AddError(fmt.Sprintf("num_winners (%d) exceeds answer count (%d)", q.NumWinners, len(q.Answers)))
	}
	if q.Min < 0 {
		verr.AddError("min cannot be negative")
	}
	if q.Max < 1 {
		verr.AddError("max must be at least 1")
	}
	if q.Min > q.Max {
		verr.AddError(fmt.Sprintf("min (%d) exceeds max (%d)", q.Min, q.Max))
	}
	for _, w := range q.Withdrawals {
		if w < 0 || w >= len(q.Answers) {
			verr.AddError(fmt.Sprintf("withdrawal %d is out of range", w))
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// Ballot is a voter's ranked preferences, first preference first. Entries
// are distinct candidate indices.
type Ballot []int

// Without returns a new ballot with every occurrence of candidate removed.
// The receiver is left untouched.
func (b Ballot) Without(candidate int) Ballot {
	out := make(Ballot, 0, len(b))
	for _, c := range b {
		if c != candidate {
			out = append(out, c)
		}
	}
	return out
}

// HasDuplicates reports whether any candidate appears more than once.
func (b Ballot) HasDuplicates() bool {
	seen := make(map[int]struct{}, len(b))
	for _, c := range b {
		if _, ok := seen[c]; ok {
			return true
		}
		seen[c] = struct{}{}
	}
	return false
}

// Totals counts ballots by outcome.
type Totals struct {
	// ValidVotes is the number of ballots that reached the round engine.
	ValidVotes int `json:"valid_votes"`

	// BlankVotes counts intentional blank ballots.
	BlankVotes int `json:"blank_votes"`

	// NullVotes counts ballots rejected as invalid.
	NullVotes int `json:"null_votes"`
}
