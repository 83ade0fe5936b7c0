package quorum

import "testing"

func TestVotesNeeded(t *testing.T) {
	cases := []struct {
		members int
		want    int
	}{
		{members: -3, want: 1},
		{members: 0, want: 1},
		{members: 1, want: 1},
		{members: 2, want: 1},
		{members: 3, want: 2},
		{members: 5, want: 3},
		{members: 10, want: 5},
		{members: 39, want: 20},
		{members: 40, want: 14},
		{members: 41, want: 14},
		{members: 50, want: 17},
		{members: 100, want: 34},
	}

	for _, tc := range cases {
		if got := VotesNeeded(tc.members); got != tc.want {
			t.Fatalf("VotesNeeded(%d): expected %d, got %d", tc.members, tc.want, got)
		}
	}
}

func TestVotesNeededMonotonicWithinBands(t *testing.T) {
	prev := 0
	for m := 1; m < DefaultLargeGroupThreshold; m++ {
		got := VotesNeeded(m)
		if got < prev {
			t.Fatalf("expected non-decreasing result below threshold, %d dropped to %d at m=%d", prev, got, m)
		}
		prev = got
	}
	prev = 0
	for m := DefaultLargeGroupThreshold; m < 500; m++ {
		got := VotesNeeded(m)
		if got < prev {
			t.Fatalf("expected non-decreasing result above threshold, %d dropped to %d at m=%d", prev, got, m)
		}
		prev = got
	}
}

func TestInvalidRuleFallsBackToDefault(t *testing.T) {
	rule := Rule{LargeGroupThreshold: 10, SmallGroupDivisor: 0, LargeGroupDivisor: 3}
	if got := rule.VotesNeeded(39); got != 20 {
		t.Fatalf("expected default rule result 20, got %d", got)
	}
}

func TestCustomRule(t *testing.T) {
	rule := Rule{LargeGroupThreshold: 10, SmallGroupDivisor: 2, LargeGroupDivisor: 4}
	if got := rule.VotesNeeded(9); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := rule.VotesNeeded(10); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}
