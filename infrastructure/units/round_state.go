package units

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/ahrav/go-tally/internal/domain"
)

// roundState is the working set of one Hare-Clark count. It is created per
// tally, mutated only through its methods, and discarded once result has
// been called.
type roundState struct {
	labels []string
	quota  float64

	// values and history are indexed by candidate index.
	values   []float64
	history  [][]float64
	decisive []*int

	// remaining holds undecided candidates in the order of the latest
	// sorted view.
	remaining []int
	ballots   []domain.Ballot
	winners   []int
	vacant    int
	round     int

	decisions  []domain.Decision
	validVotes int
}

func newRoundState(q domain.Question, ballots []domain.Ballot, labels []string) (*roundState, error) {
	n := len(q.Answers)
	rs := &roundState{
		labels:     labels,
		quota:      float64(len(ballots)+1) / float64(q.NumWinners+1),
		values:     make([]float64, n),
		history:    make([][]float64, n),
		decisive:   make([]*int, n),
		remaining:  make([]int, n),
		ballots:    make([]domain.Ballot, 0, len(ballots)),
		winners:    make([]int, 0, q.NumWinners),
		vacant:     q.NumWinners,
		validVotes: len(ballots),
	}
	for i := range rs.remaining {
		rs.remaining[i] = i
	}

	for i, b := range ballots {
		if len(b) == 0 {
			return nil, domain.NewInvalidVoteError("ballot %d is empty", i)
		}
		for _, c := range b {
			if c < 0 || c >= n {
				return nil, domain.NewInvalidVoteError("ballot %d: option %d out of range [0, %d)", i, c, n)
			}
		}
		if b.HasDuplicates() {
			return nil, domain.NewInvalidVoteError("ballot %d: duplicated option", i)
		}
		rs.ballots = append(rs.ballots, slices.Clone(b))
		rs.values[b[0]]++
	}

	for i := range rs.history {
		rs.history[i] = []float64{rs.values[i]}
	}
	return rs, nil
}

// active reports whether another round has to be played.
func (rs *roundState) active() bool {
	return rs.vacant > 0 && len(rs.remaining) > 0
}

// sortedView returns the remaining candidates ordered by transfer value,
// highest first, with ties broken by ascending label. The sort is stable, so
// candidates equal on both keys keep their previous relative order.
func (rs *roundState) sortedView() []int {
	view := slices.Clone(rs.remaining)
	slices.SortStableFunc(view, func(a, b int) int {
		if c := cmp.Compare(rs.values[b], rs.values[a]); c != 0 {
			return c
		}
		return strings.Compare(rs.labels[a], rs.labels[b])
	})
	return view
}

// playRound runs one round: the seats-equal-candidates shortcut and the
// quota pass, then an elimination when nobody exceeded quota.
func (rs *roundState) playRound() {
	rs.remaining = rs.sortedView()
	rs.round++
	for i, h := range rs.history {
		rs.history[i] = append(h, h[len(h)-1])
	}

	surpassed := false
	for _, c := range slices.Clone(rs.remaining) {
		if rs.vacant == 0 {
			return
		}
		if len(rs.remaining) == rs.vacant {
			rs.fillSeats()
			return
		}
		// Values read here include surplus received earlier in this pass.
		if rs.values[c] > rs.quota {
			surpassed = true
			rs.decide(c, domain.DecisionElected)
			rs.transfer(c, rs.values[c]-rs.quota)
			rs.strike(c)
		}
	}

	if !surpassed && len(rs.remaining) > 0 {
		last := rs.remaining[len(rs.remaining)-1]
		rs.decide(last, domain.DecisionEliminated)
		rs.transfer(last, rs.values[last])
		rs.strike(last)
	}

	for _, c := range rs.remaining {
		rs.stamp(c)
	}
}

// fillSeats seats every remaining candidate in the current order.
func (rs *roundState) fillSeats() {
	for _, c := range slices.Clone(rs.remaining) {
		rs.decide(c, domain.DecisionFilled)
	}
}

// decide finalizes a candidate in the current round and drops it from the
// remaining set.
func (rs *roundState) decide(c int, kind domain.DecisionKind) {
	rs.stamp(c)
	round := rs.round
	rs.decisive[c] = &round

	rs.remaining = slices.DeleteFunc(slices.Clone(rs.remaining), func(r int) bool { return r == c })
	if kind != domain.DecisionEliminated {
		rs.winners = append(rs.winners, c)
		rs.vacant--
	}

	rs.decisions = append(rs.decisions, domain.Decision{
		Round:         rs.round,
		Candidate:     c,
		Kind:          kind,
		TransferValue: rs.values[c],
	})
}

// stamp records the candidate's current transfer value as this round's
// history entry.
func (rs *roundState) stamp(c int) {
	h := rs.history[c]
	h[len(h)-1] = rs.values[c]
}

// transfer hands value from a decided candidate to the remaining ones.
//
// The ballots to share are those whose first preference is from and that
// carry a further preference. Each remaining candidate receives
// value × (ballots to share) × (times it is the second preference on them).
// This is not the textbook Hare-Clark fraction (value / ballots to share);
// it grows with the square of the shared ballot count. Election officials
// must be told before relying on it.
func (rs *roundState) transfer(from int, value float64) {
	shared := 0
	seconds := make(map[int]int)
	for _, b := range rs.ballots {
		if len(b) > 1 && b[0] == from {
			shared++
			seconds[b[1]]++
		}
	}
	if shared == 0 {
		return
	}

	for _, c := range rs.remaining {
		rs.values[c] += value * float64(seconds[c]) * float64(shared)
	}
}

// strike removes c from every ballot and drops ballots left empty.
func (rs *roundState) strike(c int) {
	kept := make([]domain.Ballot, 0, len(rs.ballots))
	for _, b := range rs.ballots {
		if nb := b.Without(c); len(nb) > 0 {
			kept = append(kept, nb)
		}
	}
	rs.ballots = kept
}

// result snapshots the final state.
func (rs *roundState) result() *domain.Tally {
	candidates := make([]domain.CandidateTally, len(rs.values))
	for i := range candidates {
		candidates[i] = domain.CandidateTally{
			Index:         i,
			Rounds:        slices.Clone(rs.history[i]),
			DecisiveRound: rs.decisive[i],
		}
	}
	return &domain.Tally{
		Quota:      rs.quota,
		Winners:    slices.Clone(rs.winners),
		RoundCount: rs.round,
		Candidates: candidates,
		Decisions:  slices.Clone(rs.decisions),
		ValidVotes: rs.validVotes,
	}
}

func (rs *roundState) String() string {
	return fmt.Sprintf("round=%d vacant=%d remaining=%v winners=%v ballots=%d",
		rs.round, rs.vacant, rs.remaining, rs.winners, len(rs.ballots))
}
