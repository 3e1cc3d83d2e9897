package units

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ahrav/go-tally/internal/domain"
)

// FieldWidth returns the number of decimal digits each candidate field
// occupies in an encoded ranking. It is the digit count of answerCount+2,
// which leaves room for the 1-based candidate values and the blank marker.
func FieldWidth(answerCount int) int {
	return len(strconv.Itoa(answerCount + 2))
}

// ParseRanking decodes a voter's encoded ranking into a ballot.
//
// The encoding is a decimal integer made of fixed-width fields (see
// FieldWidth), first preference first, each field holding 1+candidate index.
// The integer is left-padded with zeros to a whole number of fields.
// Withdrawn candidates are skipped. A field equal to answerCount+2 marks an
// intentional blank vote and fails the whole ballot with ErrBlankVote no
// matter where it appears. Anything else outside the candidate range, a
// repeated candidate, or a ranking shorter than q.Min fails with
// ErrInvalidVote. Rankings longer than q.Max are cut to q.Max when
// q.TruncateMaxOverload is set and rejected otherwise.
//
// ParseRanking is pure: the same input always yields the same ballot.
func ParseRanking(encoded string, q domain.Question) (domain.Ballot, error) {
	digits := strings.TrimSpace(encoded)
	if digits == "" {
		return nil, domain.NewInvalidVoteError("empty ranking")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, domain.NewInvalidVoteError("non-digit character %q", r)
		}
	}

	// The ranking is an integer, so leading zeros carry no information.
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}

	answerCount := len(q.Answers)
	width := FieldWidth(answerCount)
	if rem := len(digits) % width; rem != 0 {
		digits = strings.Repeat("0", width-rem) + digits
	}

	ballot := make(domain.Ballot, 0, len(digits)/width)
	for i := 0; i < len(digits); i += width {
		field, err := strconv.Atoi(digits[i : i+width])
		if err != nil {
			return nil, domain.NewInvalidVoteError("field %q: %v", digits[i:i+width], err)
		}
		option := field - 1

		switch {
		case q.IsWithdrawn(option):
			continue
		case option == answerCount+1:
			return nil, domain.NewBlankVoteError()
		case option < 0 || option >= answerCount:
			return nil, domain.NewInvalidVoteError("option %d out of range [0, %d)", option, answerCount)
		}
		ballot = append(ballot, option)
	}

	if len(ballot) < q.Min {
		return nil, domain.NewInvalidVoteError("%d selections, minimum is %d", len(ballot), q.Min)
	}
	if ballot.HasDuplicates() {
		return nil, domain.NewInvalidVoteError("duplicated option")
	}
	if len(ballot) > q.Max {
		if !q.TruncateMaxOverload {
			return nil, domain.NewInvalidVoteError("%d selections, maximum is %d", len(ballot), q.Max)
		}
		ballot = ballot[:q.Max:q.Max]
	}

	return ballot, nil
}

// EncodeRanking is the inverse of ParseRanking for rankings without
// withdrawals: it renders candidate indices as fixed-width fields.
func EncodeRanking(ranking []int, answerCount int) string {
	width := FieldWidth(answerCount)
	var sb strings.Builder
	for _, c := range ranking {
		fmt.Fprintf(&sb, "%0*d", width, c+1)
	}
	return sb.String()
}

// EncodeBlank returns the encoding of an intentional blank vote.
func EncodeBlank(answerCount int) string {
	return EncodeRanking([]int{answerCount + 1}, answerCount)
}
