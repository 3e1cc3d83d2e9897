package units

import (
	"errors"
	"slices"

	"github.com/ahrav/go-tally/internal/domain"
)

// BallotStore accumulates the ballots of one tally. Blank and invalid
// submissions are counted and dropped; they never fail the tally.
// A BallotStore is owned by a single tally invocation and is not safe for
// concurrent use.
type BallotStore struct {
	ballots []domain.Ballot
	totals  domain.Totals
}

// NewBallotStore returns an empty store.
func NewBallotStore() *BallotStore {
	return &BallotStore{ballots: make([]domain.Ballot, 0)}
}

// Add decodes an encoded ranking and records the outcome. The returned
// error describes why the ballot was dropped, if it was.
func (s *BallotStore) Add(encoded string, q domain.Question) error {
	ballot, err := ParseRanking(encoded, q)
	return s.Record(ballot, err)
}

// Record stores the result of an earlier ParseRanking call. Parsing and
// recording are split so that rankings can be decoded concurrently and then
// recorded in submission order.
func (s *BallotStore) Record(ballot domain.Ballot, parseErr error) error {
	switch {
	case errors.Is(parseErr, domain.ErrBlankVote):
		s.totals.BlankVotes++
		return parseErr
	case parseErr != nil:
		s.totals.NullVotes++
		return parseErr
	case len(ballot) == 0:
		// Every ranked candidate withdrew.
		s.totals.BlankVotes++
		return domain.NewBlankVoteError()
	}

	s.ballots = append(s.ballots, slices.Clone(ballot))
	s.totals.ValidVotes++
	return nil
}

// AddChoices records an already decoded selection list for q. A -1 entry
// is the collection layer's invalid-vote marker.
func (s *BallotStore) AddChoices(choices []int, q domain.Question) error {
	if slices.Contains(choices, -1) {
		s.totals.NullVotes++
		return domain.NewInvalidVoteError("invalid-vote marker")
	}
	for _, c := range choices {
		if c < 0 || c >= len(q.Answers) {
			s.totals.NullVotes++
			return domain.NewInvalidVoteError("option %d out of range [0, %d)", c, len(q.Answers))
		}
	}
	if domain.Ballot(choices).HasDuplicates() {
		s.totals.NullVotes++
		return domain.NewInvalidVoteError("duplicated option")
	}
	return s.Record(domain.Ballot(choices), nil)
}

// Ballots returns a copy of the accepted ballots in submission order.
func (s *BallotStore) Ballots() []domain.Ballot {
	out := make([]domain.Ballot, len(s.ballots))
	for i, b := range s.ballots {
		out[i] = slices.Clone(b)
	}
	return out
}

// Totals returns the running counts.
func (s *BallotStore) Totals() domain.Totals { return s.totals }
