// Package quorum computes how many approve votes admit an applicant to a group.
package quorum

const (
	DefaultLargeGroupThreshold = 40
	DefaultSmallGroupDivisor   = 2
	DefaultLargeGroupDivisor   = 3
)

// Rule splits groups at LargeGroupThreshold members. Smaller groups need
// ceil(m/SmallGroupDivisor) approvals, larger ones ceil(m/LargeGroupDivisor).
type Rule struct {
	LargeGroupThreshold int `mapstructure:"largeGroupThreshold"`
	SmallGroupDivisor   int `mapstructure:"smallGroupDivisor"`
	LargeGroupDivisor   int `mapstructure:"largeGroupDivisor"`
}

// DefaultRule is the majority-of-small, third-of-large rule.
func DefaultRule() Rule {
	return Rule{
		LargeGroupThreshold: DefaultLargeGroupThreshold,
		SmallGroupDivisor:   DefaultSmallGroupDivisor,
		LargeGroupDivisor:   DefaultLargeGroupDivisor,
	}
}

// Valid reports whether every constant is usable.
func (r Rule) Valid() bool {
	return r.LargeGroupThreshold > 0 && r.SmallGroupDivisor > 0 && r.LargeGroupDivisor > 0
}

// VotesNeeded returns the approvals required for a group of memberCount.
// Counts below one are treated as one; the result is never below one.
func (r Rule) VotesNeeded(memberCount int) int {
	if !r.Valid() {
		r = DefaultRule()
	}
	if memberCount < 1 {
		memberCount = 1
	}
	divisor := r.SmallGroupDivisor
	if memberCount >= r.LargeGroupThreshold {
		divisor = r.LargeGroupDivisor
	}
	needed := ceilDiv(memberCount, divisor)
	if needed < 1 {
		return 1
	}
	return needed
}

// VotesNeeded applies DefaultRule.
func VotesNeeded(memberCount int) int {
	return DefaultRule().VotesNeeded(memberCount)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
