// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCeilFrac(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		count, pct, want uint32
	}{
		{0, 33, 0},
		{1, 33, 1},
		{2, 33, 1},
		{3, 33, 1},
		{4, 33, 2},
		{9, 33, 3},
		{10, 33, 4},
		{30, 33, 10},
		{100, 33, 33},
		{1, 50, 1},
		{2, 50, 1},
		{3, 50, 2},
		{10, 50, 5},
		{7, 100, 7},
		{100, 1, 1},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(tt.want, CeilFrac(tt.count, tt.pct), "ceil(%d*%d/100)", tt.count, tt.pct)
	}

	// The intermediate runs in uint64 so large inputs cannot wrap.
	assert.Equal(uint32(4294967295), CeilFrac(4294967295, 100))
}

func TestQuorumReached(t *testing.T) {
	assert := assert.New(t)

	// A zero quorum means unconfigured and blocks execution outright.
	assert.False(QuorumReached(0, 0))
	assert.False(QuorumReached(100, 0))

	assert.False(QuorumReached(1, 2))
	assert.True(QuorumReached(2, 2))
	assert.True(QuorumReached(3, 2))
}

func TestResolveJoinVote(t *testing.T) {
	assert := assert.New(t)

	rules := DefaultConfig().Membership

	tests := []struct {
		name            string
		tally           VoteTally
		members         uint32
		creatorApproved bool
		want            Decision
	}{
		{"no votes", VoteTally{}, 9, false, DecisionNone},
		{"creator override", VoteTally{For: 1}, 9, true, DecisionApproved},
		{"single member pool", VoteTally{For: 1}, 1, false, DecisionApproved},
		{"three member pool single approval", VoteTally{For: 1}, 3, false, DecisionApproved},
		{"three member pool rejection", VoteTally{Against: 2}, 3, false, DecisionRejected},
		{"below percent", VoteTally{For: 2}, 9, false, DecisionNone},
		{"at percent", VoteTally{For: 3}, 9, false, DecisionApproved},
		{"ten members below percent", VoteTally{For: 3}, 10, false, DecisionNone},
		{"ten members fourth vote", VoteTally{For: 4}, 10, false, DecisionApproved},
		{"thirty members needs ten", VoteTally{For: 9}, 30, false, DecisionNone},
		{"thirty members tenth vote", VoteTally{For: 10}, 30, false, DecisionApproved},
		{"absolute shortcut on large pool", VoteTally{For: 10}, 100, false, DecisionApproved},
		{"large pool below both", VoteTally{For: 9}, 100, false, DecisionNone},
		{"rejection below half", VoteTally{Against: 4}, 9, false, DecisionNone},
		{"rejection at half", VoteTally{Against: 5}, 9, false, DecisionRejected},
		{"two member pool one rejection", VoteTally{Against: 1}, 2, false, DecisionRejected},
		{"approval wins over rejection", VoteTally{For: 3, Against: 5}, 9, false, DecisionApproved},
	}
	for _, tt := range tests {
		got := ResolveJoinVote(tt.tally, tt.members, rules, tt.creatorApproved)
		assert.Equal(tt.want, got, tt.name)
	}
}

func TestResolveJoinVoteRuleVariants(t *testing.T) {
	assert := assert.New(t)

	// Creator approval is an ordinary vote when the override is off.
	rules := DefaultConfig().Membership
	rules.CreatorVoteOverride = false
	got := ResolveJoinVote(VoteTally{For: 1}, 9, rules, true)
	assert.Equal(DecisionNone, got)

	// A zero absolute threshold disables the shortcut entirely.
	rules = DefaultConfig().Membership
	rules.ApproveAbsolute = 0
	got = ResolveJoinVote(VoteTally{For: 10}, 100, rules, false)
	assert.Equal(DecisionNone, got)
	got = ResolveJoinVote(VoteTally{For: 33}, 100, rules, false)
	assert.Equal(DecisionApproved, got)
}
