// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

// CeilFrac computes ceil(count * pct / 100) without floating point.
func CeilFrac(count, pct uint32) uint32 {
	if count == 0 || pct == 0 {
		return 0
	}
	// uint64 intermediate so count*pct cannot overflow.
	return uint32((uint64(count)*uint64(pct) + 99) / 100)
}

// QuorumReached reports whether approvals satisfies a configured quorum.
// A zero quorum means the role's quorum was never configured, which makes
// nothing executable until an admin sets one.
func QuorumReached(approvals, quorum uint32) bool {
	return quorum > 0 && approvals >= quorum
}

// VoteTally is the running vote count on a join request.
type VoteTally struct {
	For     uint32
	Against uint32
}

// Decision is the outcome of evaluating a join-request tally.
type Decision uint8

const (
	DecisionNone Decision = iota
	DecisionApproved
	DecisionRejected
)

func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionRejected:
		return "rejected"
	default:
		return "none"
	}
}

// ResolveJoinVote evaluates a join-request tally against the pool's current
// member count. Approval is checked before rejection, so a vote that
// crosses both thresholds at once resolves to approved. The absolute
// approval threshold is an alternative fast path for large pools and is
// ignored when configured to zero.
func ResolveJoinVote(tally VoteTally, members uint32, rules MembershipRules, creatorApproved bool) Decision {
	if creatorApproved && rules.CreatorVoteOverride {
		return DecisionApproved
	}
	if tally.For > 0 && tally.For >= CeilFrac(members, rules.ApprovePercent) {
		return DecisionApproved
	}
	if rules.ApproveAbsolute > 0 && tally.For >= rules.ApproveAbsolute {
		return DecisionApproved
	}
	if tally.Against > 0 && tally.Against >= CeilFrac(members, rules.RejectPercent) {
		return DecisionRejected
	}
	return DecisionNone
}
