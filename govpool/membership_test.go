// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

// memberAddr derives a distinct test account from an index.
func memberAddr(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x4000 + i)))
}

// buildPool creates a pool and admits extra members through the creator's
// vote override until the roster holds total members.
func buildPool(t *testing.T, e *Engine, creator common.Address, maxMembers uint32, total int) *Pool {
	t.Helper()
	assert := assert.New(t)

	pool, err := e.CreatePool("pool", "region", AmountFromUint64(25), 3600, 250, maxMembers, "peer-creator", creator)
	assert.NoError(err)

	for i := 1; i < total; i++ {
		account := memberAddr(i)
		peer := fmt.Sprintf("peer-%d", i)
		_, err := e.JoinPool(pool.ID, peer, account)
		assert.NoError(err)
		_, err = e.VoteJoinRequest(pool.ID, peer, "peer-creator", true, creator)
		assert.NoError(err)
	}

	got, err := e.GetPool(pool.ID)
	assert.NoError(err)
	assert.Len(got.Members, total)
	return got
}

func TestCreatePoolValidation(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	_, err = e.CreatePool("", "", AmountFromUint64(1), 60, 50, 4, "peer-a", testUser1)
	assert.ErrorIs(err, ErrInvalidPoolParams)
	_, err = e.CreatePool("pool", "", AmountFromUint64(1), 60, 50, 0, "peer-a", testUser1)
	assert.ErrorIs(err, ErrInvalidPoolParams)
	_, err = e.CreatePool("pool", "", AmountFromUint64(1), 60, 50, 4, "", testUser1)
	assert.ErrorIs(err, ErrInvalidPeerID)
}

func TestCreatePool(t *testing.T) {
	assert := assert.New(t)

	e, ledger, sink, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	p1, err := e.CreatePool("alpha", "eu-west", AmountFromUint64(100), 3600, 250, 4, "peer-a", testUser1)
	assert.NoError(err)
	assert.Equal(uint32(1), p1.ID)
	assert.Equal(testUser1, p1.Creator)
	assert.Len(p1.Members, 1)
	assert.Equal("peer-a", p1.Members[0].PeerID)
	assert.Equal(testStart.Unix(), p1.Members[0].JoinDate)

	// The creator stakes like everyone else.
	assert.Equal(big.NewInt(100), ledger.Locked(testUser1, testToken))

	p2, err := e.CreatePool("beta", "", AmountFromUint64(1), 60, 50, 2, "peer-b", testUser2)
	assert.NoError(err)
	assert.Equal(uint32(2), p2.ID)

	assert.Len(sink.OfKind(KindPoolCreated), 2)
}

func TestRestrictedPoolCreation(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	cfg.RestrictPoolCreation = true
	cfg.ExecutionDelay = 0
	e, _, _, err := newTestEngine(cfg, testGenesis())
	assert.NoError(err)

	_, err = e.CreatePool("pool", "", AmountFromUint64(1), 60, 50, 4, "peer-a", testUser1)
	assert.ErrorIs(err, ErrUnauthorized)

	// Granting pool_creator through governance unblocks the account.
	assert.NoError(e.SetRoleQuorum(RolePoolCreator, 2, testAdmin1))
	p, err := e.CreateProposal(ProposalAddRole, testUser1, RolePoolCreator, Amount{}, common.Address{}, testAdmin1)
	assert.NoError(err)
	_, err = e.ApproveProposal(p.ID, testAdmin2)
	assert.NoError(err)

	_, err = e.CreatePool("pool", "", AmountFromUint64(1), 60, 50, 4, "peer-a", testUser1)
	assert.NoError(err)
}

func TestJoinPoolValidation(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool, err := e.CreatePool("pool", "", AmountFromUint64(10), 60, 50, 2, "peer-creator", testUser1)
	assert.NoError(err)

	_, err = e.JoinPool(99, "peer-x", testUser2)
	assert.ErrorIs(err, ErrPoolNotFound)
	_, err = e.JoinPool(pool.ID, "", testUser2)
	assert.ErrorIs(err, ErrInvalidPeerID)
	_, err = e.JoinPool(pool.ID, "peer-x", testUser1)
	assert.ErrorIs(err, ErrAlreadyMember)

	// A taken peer id is rejected even for a different account.
	_, err = e.JoinPool(pool.ID, "peer-creator", testUser2)
	assert.ErrorIs(err, ErrPeerIDClaimed)

	_, err = e.JoinPool(pool.ID, "peer-x", testUser2)
	assert.NoError(err)
	_, err = e.JoinPool(pool.ID, "peer-y", testUser2)
	assert.ErrorIs(err, ErrAlreadyRequested)

	// Flagged accounts cannot submit requests.
	assert.NoError(e.SetAccountFlag(testUser3, true, testAdmin1))
	_, err = e.JoinPool(pool.ID, "peer-z", testUser3)
	assert.ErrorIs(err, ErrUserFlagged)
}

func TestJoinPoolCapacity(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 2, 2)

	_, err = e.JoinPool(pool.ID, "peer-late", testUser2)
	assert.ErrorIs(err, ErrCapacityReached)
}

func TestJoinVoteApprovalByPercent(t *testing.T) {
	assert := assert.New(t)

	e, ledger, sink, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	// Nine members need ceil(9*33/100) = 3 approvals from ordinary
	// members.
	pool := buildPool(t, e, testUser1, 16, 9)
	sink.Reset()

	joiner := memberAddr(100)
	_, err = e.JoinPool(pool.ID, "peer-new", joiner)
	assert.NoError(err)
	assert.Equal(big.NewInt(25), ledger.Locked(joiner, testToken))

	for i := 1; i <= 2; i++ {
		req, err := e.VoteJoinRequest(pool.ID, "peer-new", fmt.Sprintf("peer-%d", i), true, memberAddr(i))
		assert.NoError(err)
		assert.Equal(RequestStatusPending, req.Status)
		assert.Equal(uint32(i), req.Approvals)
	}

	req, err := e.VoteJoinRequest(pool.ID, "peer-new", "peer-3", true, memberAddr(3))
	assert.NoError(err)
	assert.Equal(RequestStatusApproved, req.Status)

	got, err := e.GetPool(pool.ID)
	assert.NoError(err)
	assert.Len(got.Members, 10)
	assert.True(got.IsMember(joiner))
	assert.Equal(uint32(0), got.PendingRequests)

	// The stake stays locked for the lifetime of the membership.
	assert.Equal(big.NewInt(25), ledger.Locked(joiner, testToken))

	assert.Len(sink.OfKind(KindJoinVoteCast), 3)
	assert.Len(sink.OfKind(KindJoinRequestResolved), 1)
	assert.Len(sink.OfKind(KindMemberAdded), 1)

	// The settled request is gone.
	_, err = e.GetJoinRequest(pool.ID, "peer-new")
	assert.ErrorIs(err, ErrNoActiveRequest)
}

func TestJoinVoteCreatorOverride(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 16, 9)

	// One creator approval admits outright under the default rules.
	joiner := memberAddr(100)
	_, err = e.JoinPool(pool.ID, "peer-new", joiner)
	assert.NoError(err)
	req, err := e.VoteJoinRequest(pool.ID, "peer-new", "peer-creator", true, testUser1)
	assert.NoError(err)
	assert.Equal(RequestStatusApproved, req.Status)
}

func TestJoinVoteCreatorOverrideDisabled(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	cfg.Membership.CreatorVoteOverride = false
	e, _, _, err := newTestEngine(cfg, testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 16, 9)

	// Without the override the creator's approval is one vote of three.
	joiner := memberAddr(100)
	_, err = e.JoinPool(pool.ID, "peer-new", joiner)
	assert.NoError(err)
	req, err := e.VoteJoinRequest(pool.ID, "peer-new", "peer-creator", true, testUser1)
	assert.NoError(err)
	assert.Equal(RequestStatusPending, req.Status)
	assert.Equal(uint32(1), req.Approvals)
}

func TestJoinVoteRejection(t *testing.T) {
	assert := assert.New(t)

	e, ledger, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	// Nine members need ceil(9*50/100) = 5 rejections.
	pool := buildPool(t, e, testUser1, 16, 9)

	joiner := memberAddr(100)
	_, err = e.JoinPool(pool.ID, "peer-new", joiner)
	assert.NoError(err)

	for i := 1; i <= 4; i++ {
		req, err := e.VoteJoinRequest(pool.ID, "peer-new", fmt.Sprintf("peer-%d", i), false, memberAddr(i))
		assert.NoError(err)
		assert.Equal(RequestStatusPending, req.Status)
	}
	req, err := e.VoteJoinRequest(pool.ID, "peer-new", "peer-5", false, memberAddr(5))
	assert.NoError(err)
	assert.Equal(RequestStatusRejected, req.Status)

	// An unflagged requester gets the stake back under the default mode.
	assert.Zero(ledger.Locked(joiner, testToken).Sign())
	assert.Zero(ledger.TotalForfeited(testToken).Sign())

	got, err := e.GetPool(pool.ID)
	assert.NoError(err)
	assert.Equal(uint32(0), got.PendingRequests)
	assert.Len(got.Members, 9)

	// The peer id frees up for a fresh attempt.
	_, err = e.JoinPool(pool.ID, "peer-new", joiner)
	assert.NoError(err)
}

func TestRejectionForfeitsByMode(t *testing.T) {
	assert := assert.New(t)

	reject := func(e *Engine, flag bool) common.Address {
		t.Helper()
		pool := buildPool(t, e, testUser1, 4, 2)
		joiner := memberAddr(200)
		_, err := e.JoinPool(pool.ID, "peer-late", joiner)
		assert.NoError(err)
		if flag {
			assert.NoError(e.SetAccountFlag(joiner, true, testAdmin1))
		}
		// Two members, one rejection crosses fifty percent.
		req, err := e.VoteJoinRequest(pool.ID, "peer-late", "peer-creator", false, testUser1)
		assert.NoError(err)
		assert.Equal(RequestStatusRejected, req.Status)
		return joiner
	}

	// Default mode forfeits only flagged accounts.
	e, ledger, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)
	joiner := reject(e, true)
	assert.Equal(big.NewInt(25), ledger.TotalForfeited(testToken))
	assert.Zero(ledger.Locked(joiner, testToken).Sign())

	// Always forfeits regardless of flag.
	cfg := testConfig()
	cfg.Membership.ForfeitMode = ForfeitAlways
	e, ledger, _, err = newTestEngine(cfg, testGenesis())
	assert.NoError(err)
	reject(e, false)
	assert.Equal(big.NewInt(25), ledger.TotalForfeited(testToken))

	// Never refunds even flagged accounts.
	cfg = testConfig()
	cfg.Membership.ForfeitMode = ForfeitNever
	e, ledger, _, err = newTestEngine(cfg, testGenesis())
	assert.NoError(err)
	joiner = reject(e, true)
	assert.Zero(ledger.TotalForfeited(testToken).Sign())
	assert.Zero(ledger.Locked(joiner, testToken).Sign())
}

func TestVoteValidation(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 8, 3)

	joiner := memberAddr(100)
	_, err = e.JoinPool(pool.ID, "peer-new", joiner)
	assert.NoError(err)

	// Voting requires a member peer owned by the caller.
	_, err = e.VoteJoinRequest(pool.ID, "peer-new", "peer-nobody", true, testUser2)
	assert.ErrorIs(err, ErrNotMember)
	_, err = e.VoteJoinRequest(pool.ID, "peer-new", "peer-1", true, testUser2)
	assert.ErrorIs(err, ErrNotMember)

	// A member's peer id is not a votable request.
	_, err = e.VoteJoinRequest(pool.ID, "peer-1", "peer-creator", true, testUser1)
	assert.ErrorIs(err, ErrNoActiveRequest)
	_, err = e.VoteJoinRequest(pool.ID, "peer-ghost", "peer-creator", true, testUser1)
	assert.ErrorIs(err, ErrNoActiveRequest)

	// One vote per member.
	_, err = e.VoteJoinRequest(pool.ID, "peer-new", "peer-1", true, memberAddr(1))
	assert.NoError(err)
	_, err = e.VoteJoinRequest(pool.ID, "peer-new", "peer-1", false, memberAddr(1))
	assert.ErrorIs(err, ErrAlreadyVoted)

	// The requester cannot vote: the requester is not on the roster.
	_, err = e.VoteJoinRequest(pool.ID, "peer-new", "peer-new", true, joiner)
	assert.ErrorIs(err, ErrNotMember)
}

func TestApprovalOnFullPoolFailsWholeVote(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool, err := e.CreatePool("pool", "", AmountFromUint64(5), 60, 50, 2, "peer-creator", testUser1)
	assert.NoError(err)

	// Both requests fit while the roster has room.
	_, err = e.JoinPool(pool.ID, "peer-a", testUser2)
	assert.NoError(err)
	_, err = e.JoinPool(pool.ID, "peer-b", testUser3)
	assert.NoError(err)

	// The first approval fills the pool.
	req, err := e.VoteJoinRequest(pool.ID, "peer-a", "peer-creator", true, testUser1)
	assert.NoError(err)
	assert.Equal(RequestStatusApproved, req.Status)

	// The second approval would overflow the roster, so the entire vote
	// aborts and the request keeps its pending tally.
	_, err = e.VoteJoinRequest(pool.ID, "peer-b", "peer-creator", true, testUser1)
	assert.ErrorIs(err, ErrCapacityReached)

	got, err := e.GetJoinRequest(pool.ID, "peer-b")
	assert.NoError(err)
	assert.Equal(RequestStatusPending, got.Status)
	assert.Zero(got.Approvals)
	assert.Empty(got.Voted)

	// Freeing a slot lets the same vote land.
	_, err = e.RemoveMember(pool.ID, "peer-a", testUser1)
	assert.NoError(err)
	req, err = e.VoteJoinRequest(pool.ID, "peer-b", "peer-creator", true, testUser1)
	assert.NoError(err)
	assert.Equal(RequestStatusApproved, req.Status)
}

func TestCancelJoinRequest(t *testing.T) {
	assert := assert.New(t)

	e, ledger, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 8, 2)

	joiner := memberAddr(100)
	_, err = e.JoinPool(pool.ID, "peer-new", joiner)
	assert.NoError(err)

	// Only the requester may withdraw.
	err = e.CancelJoinRequest(pool.ID, "peer-new", testUser1)
	assert.ErrorIs(err, ErrNotRequester)

	err = e.CancelJoinRequest(pool.ID, "peer-new", joiner)
	assert.NoError(err)
	assert.Zero(ledger.Locked(joiner, testToken).Sign())
	assert.Zero(ledger.TotalForfeited(testToken).Sign())

	// Cancelling twice finds nothing.
	err = e.CancelJoinRequest(pool.ID, "peer-new", joiner)
	assert.ErrorIs(err, ErrNoActiveRequest)

	// The same account and peer can come back.
	_, err = e.JoinPool(pool.ID, "peer-new", joiner)
	assert.NoError(err)
}

func TestPeerIDUniqueAcrossPools(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	p1, err := e.CreatePool("alpha", "", AmountFromUint64(1), 60, 50, 4, "peer-a", testUser1)
	assert.NoError(err)
	p2, err := e.CreatePool("beta", "", AmountFromUint64(1), 60, 50, 4, "peer-b", testUser2)
	assert.NoError(err)

	// A peer id bound in one pool cannot appear in another, whether as a
	// creator, a request, or a cross-account reuse.
	_, err = e.CreatePool("gamma", "", AmountFromUint64(1), 60, 50, 4, "peer-a", testUser3)
	assert.ErrorIs(err, ErrPeerIDClaimed)
	_, err = e.JoinPool(p2.ID, "peer-a", testUser3)
	assert.ErrorIs(err, ErrPeerIDClaimed)

	// The same account with a fresh peer id may hold seats in two pools.
	_, err = e.JoinPool(p1.ID, "peer-c1", testUser3)
	assert.NoError(err)
	_, err = e.JoinPool(p2.ID, "peer-c2", testUser3)
	assert.NoError(err)
}

func TestRemoveMember(t *testing.T) {
	assert := assert.New(t)

	e, ledger, sink, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 8, 3)
	sink.Reset()

	// Strangers may not remove anyone.
	_, err = e.RemoveMember(pool.ID, "peer-1", testUser4)
	assert.ErrorIs(err, ErrUnauthorized)
	_, err = e.RemoveMember(pool.ID, "peer-ghost", testUser1)
	assert.ErrorIs(err, ErrMemberNotFound)

	// Members remove themselves; the stake comes back.
	m, err := e.RemoveMember(pool.ID, "peer-1", memberAddr(1))
	assert.NoError(err)
	assert.Equal(memberAddr(1), m.Account)
	assert.Zero(ledger.Locked(memberAddr(1), testToken).Sign())

	// The creator removes others.
	_, err = e.RemoveMember(pool.ID, "peer-2", testUser1)
	assert.NoError(err)

	got, err := e.GetPool(pool.ID)
	assert.NoError(err)
	assert.Len(got.Members, 1)

	assert.Len(sink.OfKind(KindMemberRemoved), 2)

	// Freed peer ids are reusable.
	_, err = e.JoinPool(pool.ID, "peer-1", memberAddr(1))
	assert.NoError(err)
}

func TestRemoveMemberByAdminForfeitsFlagged(t *testing.T) {
	assert := assert.New(t)

	e, ledger, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 8, 2)

	// Flagging a sitting member makes the removal forfeit the stake under
	// the default mode.
	assert.NoError(e.SetAccountFlag(memberAddr(1), true, testAdmin1))
	_, err = e.RemoveMember(pool.ID, "peer-1", testAdmin1)
	assert.NoError(err)
	assert.Equal(big.NewInt(25), ledger.TotalForfeited(testToken))
	assert.Zero(ledger.Locked(memberAddr(1), testToken).Sign())
}

func TestRemoveMembersBatch(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 8, 5)

	_, err = e.RemoveMembersBatch(pool.ID, 0, testUser1)
	assert.ErrorIs(err, ErrInvalidParameter)
	_, err = e.RemoveMembersBatch(pool.ID, 1, memberAddr(1))
	assert.ErrorIs(err, ErrUnauthorized)

	// The batch pops from the roster tail, newest first.
	removed, err := e.RemoveMembersBatch(pool.ID, 2, testUser1)
	assert.NoError(err)
	assert.Len(removed, 2)
	assert.Equal(memberAddr(4), removed[0].Account)
	assert.Equal(memberAddr(3), removed[1].Account)

	// A count beyond the roster clears it, creator included.
	removed, err = e.RemoveMembersBatch(pool.ID, 10, testAdmin1)
	assert.NoError(err)
	assert.Len(removed, 3)

	got, err := e.GetPool(pool.ID)
	assert.NoError(err)
	assert.Empty(got.Members)
}

func TestDeletePool(t *testing.T) {
	assert := assert.New(t)

	e, _, sink, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 8, 2)

	err = e.DeletePool(pool.ID, testUser2)
	assert.ErrorIs(err, ErrUnauthorized)
	err = e.DeletePool(pool.ID, testUser1)
	assert.ErrorIs(err, ErrPoolNotEmpty)

	// A pending request also blocks deletion.
	_, err = e.RemoveMembersBatch(pool.ID, 10, testUser1)
	assert.NoError(err)
	joiner := memberAddr(100)
	_, err = e.JoinPool(pool.ID, "peer-new", joiner)
	assert.NoError(err)
	err = e.DeletePool(pool.ID, testUser1)
	assert.ErrorIs(err, ErrPoolNotEmpty)

	assert.NoError(e.CancelJoinRequest(pool.ID, "peer-new", joiner))
	assert.NoError(e.DeletePool(pool.ID, testUser1))

	_, err = e.GetPool(pool.ID)
	assert.ErrorIs(err, ErrPoolNotFound)
	assert.Len(sink.OfKind(KindPoolDeleted), 1)

	err = e.DeletePool(pool.ID, testUser1)
	assert.ErrorIs(err, ErrPoolNotFound)
}

func TestListPools(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	e, _, _, err := newTestEngine(cfg, testGenesis())
	assert.NoError(err)

	for i := 0; i < 5; i++ {
		_, err := e.CreatePool(fmt.Sprintf("pool-%d", i), "", AmountFromUint64(1), 60, 50, 4, fmt.Sprintf("peer-%d", i), memberAddr(i))
		assert.NoError(err)
	}

	pools, total, err := e.ListPools(0, 0)
	assert.NoError(err)
	assert.Equal(uint64(5), total)
	assert.Len(pools, 5)
	for i, p := range pools {
		assert.Equal(uint32(i+1), p.ID)
	}

	pools, total, err = e.ListPools(3, 2)
	assert.NoError(err)
	assert.Equal(uint64(5), total)
	assert.Len(pools, 2)
	assert.Equal(uint32(4), pools[0].ID)
	assert.Equal(uint32(5), pools[1].ID)

	_, _, err = e.ListPools(0, cfg.MaxPageLimit+1)
	assert.ErrorIs(err, ErrLimitTooHigh)
}

func TestListJoinRequests(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	pool := buildPool(t, e, testUser1, 8, 2)

	_, err = e.ListJoinRequests(99)
	assert.ErrorIs(err, ErrPoolNotFound)

	reqs, err := e.ListJoinRequests(pool.ID)
	assert.NoError(err)
	assert.Empty(reqs)

	for i := 10; i < 13; i++ {
		_, err := e.JoinPool(pool.ID, fmt.Sprintf("peer-req-%d", i), memberAddr(i))
		assert.NoError(err)
	}

	reqs, err = e.ListJoinRequests(pool.ID)
	assert.NoError(err)
	assert.Len(reqs, 3)
	for _, req := range reqs {
		assert.Equal(RequestStatusPending, req.Status)
		assert.Equal(pool.ID, req.PoolID)
	}

	got, err := e.GetPool(pool.ID)
	assert.NoError(err)
	assert.Equal(uint32(3), got.PendingRequests)
}
