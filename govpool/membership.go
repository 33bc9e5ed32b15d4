// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"fmt"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ethereum/go-ethereum/common"
)

// CreatePool creates a new pool owned by actor and registers actor as its
// first member under creatorPeerID. The creator stakes requiredTokens like
// every later member.
func (e *Engine) CreatePool(name, region string, requiredTokens Amount, maxChallengeResponsePeriod, minPingTime, maxMembers uint32, creatorPeerID string, actor common.Address) (*Pool, error) {
	if name == "" || maxMembers == 0 {
		return nil, e.fail(opCreatePool, fmt.Errorf("%w: name and maxMembers are required", ErrInvalidPoolParams))
	}
	if creatorPeerID == "" {
		return nil, e.fail(opCreatePool, fmt.Errorf("%w: empty", ErrInvalidPeerID))
	}

	var created *Pool
	err := e.update(opCreatePool, []string{poolCounterLockKey, peersLockKey}, func(s State, now int64) ([]Event, error) {
		if e.cfg.RestrictPoolCreation {
			ok, err := s.HasRole(RolePoolCreator, actor)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: pool_creator role required (%s)", ErrUnauthorized, actor.Hex())
			}
		}

		if err := e.requireFreePeer(s, creatorPeerID); err != nil {
			return nil, err
		}

		lastID, err := s.LastPoolID()
		if err != nil {
			return nil, err
		}
		id := lastID + 1
		if err := s.SetLastPoolID(id); err != nil {
			return nil, err
		}

		pool := &Pool{
			ID:                         id,
			Name:                       name,
			Region:                     region,
			Creator:                    actor,
			RequiredTokens:             requiredTokens,
			MaxMembers:                 maxMembers,
			MaxChallengeResponsePeriod: maxChallengeResponsePeriod,
			MinPingTime:                minPingTime,
			Members: []Member{{
				Account:    actor,
				PeerID:     creatorPeerID,
				JoinDate:   now,
				Reputation: 0,
			}},
		}
		if err := s.PutPool(pool); err != nil {
			return nil, err
		}
		claim := &peerClaim{PeerID: creatorPeerID, PoolID: id, Account: actor, Member: true}
		if err := s.PutPeerClaim(claim); err != nil {
			return nil, err
		}

		if err := e.ledger.Lock(actor, e.cfg.StakingToken, requiredTokens.Big()); err != nil {
			return nil, err
		}

		created = pool.Clone()
		return []Event{PoolCreated{Pool: *pool.Clone(), Time: now}}, nil
	})
	return created, err
}

// JoinPool submits a join request for actor under peerID. The required
// stake is locked for the lifetime of the request.
func (e *Engine) JoinPool(poolID uint32, peerID string, actor common.Address) (*JoinRequest, error) {
	if peerID == "" {
		return nil, e.fail(opJoinPool, fmt.Errorf("%w: empty", ErrInvalidPeerID))
	}

	var submitted *JoinRequest
	err := e.update(opJoinPool, []string{poolLockKey(poolID), peersLockKey}, func(s State, now int64) ([]Event, error) {
		pool, err := s.GetPool(poolID)
		if err != nil {
			return nil, fmt.Errorf("%w (%d)", err, poolID)
		}
		if pool.IsMember(actor) {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyMember, actor.Hex())
		}
		if _, err := s.GetJoinRequest(poolID, actor); err == nil {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyRequested, actor.Hex())
		} else if err != ErrNoActiveRequest {
			return nil, err
		}
		if pool.Full() {
			return nil, fmt.Errorf("%w (%d)", ErrCapacityReached, poolID)
		}
		flagged, err := s.Flagged(actor)
		if err != nil {
			return nil, err
		}
		if flagged {
			return nil, fmt.Errorf("%w (%s)", ErrUserFlagged, actor.Hex())
		}
		if err := e.requireFreePeer(s, peerID); err != nil {
			return nil, err
		}

		req := &JoinRequest{
			PoolID:    poolID,
			Account:   actor,
			PeerID:    peerID,
			CreatedAt: now,
			Status:    RequestStatusPending,
		}
		if err := s.PutJoinRequest(req); err != nil {
			return nil, err
		}
		claim := &peerClaim{PeerID: peerID, PoolID: poolID, Account: actor, Member: false}
		if err := s.PutPeerClaim(claim); err != nil {
			return nil, err
		}
		pool.PendingRequests++
		if err := s.PutPool(pool); err != nil {
			return nil, err
		}

		if err := e.ledger.Lock(actor, e.cfg.StakingToken, pool.RequiredTokens.Big()); err != nil {
			return nil, err
		}

		submitted = req.Clone()
		return []Event{JoinRequestSubmitted{Request: *req.Clone(), Time: now}}, nil
	})
	return submitted, err
}

// VoteJoinRequest records one member vote on the join request identified by
// the requester's peerID. The vote is applied and both resolution
// thresholds are evaluated in the same transaction, so a resolving vote
// settles the request before any later vote is accepted.
func (e *Engine) VoteJoinRequest(poolID uint32, peerID, voterPeerID string, approve bool, actor common.Address) (*JoinRequest, error) {
	var voted *JoinRequest
	err := e.update(opVoteJoinRequest, []string{poolLockKey(poolID), peersLockKey}, func(s State, now int64) ([]Event, error) {
		pool, err := s.GetPool(poolID)
		if err != nil {
			return nil, fmt.Errorf("%w (%d)", err, poolID)
		}
		req, err := e.activeRequest(s, pool, peerID)
		if err != nil {
			return nil, err
		}

		idx := pool.MemberByPeer(voterPeerID)
		if idx < 0 {
			return nil, fmt.Errorf("%w (peer %s)", ErrNotMember, voterPeerID)
		}
		voter := pool.Members[idx]
		if voter.Account != actor {
			return nil, fmt.Errorf("%w (%s)", ErrNotMember, actor.Hex())
		}
		if req.HasVoted(voter.Account) {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyVoted, voter.Account.Hex())
		}

		req.Voted = append(req.Voted, voter.Account)
		if approve {
			req.Approvals++
		} else {
			req.Rejections++
		}

		evs := []Event{JoinVoteCast{
			PoolID:      poolID,
			RequestPeer: req.PeerID,
			Voter:       voter.Account,
			Approve:     approve,
			Approvals:   req.Approvals,
			Rejections:  req.Rejections,
			Time:        now,
		}}

		tally := VoteTally{For: req.Approvals, Against: req.Rejections}
		creatorApproved := approve && voter.Account == pool.Creator
		switch ResolveJoinVote(tally, pool.MemberCount(), e.cfg.Membership, creatorApproved) {
		case DecisionApproved:
			resolved, err := e.admitLocked(s, pool, req, actor, now)
			if err != nil {
				return nil, err
			}
			evs = append(evs, resolved...)
		case DecisionRejected:
			resolved, err := e.settleRequestLocked(s, pool, req, RequestStatusRejected, actor, now)
			if err != nil {
				return nil, err
			}
			evs = append(evs, resolved...)
		default:
			if err := s.PutJoinRequest(req); err != nil {
				return nil, err
			}
		}

		voted = req.Clone()
		return evs, nil
	})
	return voted, err
}

// CancelJoinRequest withdraws the caller's own pending request and releases
// the stake.
func (e *Engine) CancelJoinRequest(poolID uint32, peerID string, actor common.Address) error {
	return e.update(opCancelJoinRequest, []string{poolLockKey(poolID), peersLockKey}, func(s State, now int64) ([]Event, error) {
		pool, err := s.GetPool(poolID)
		if err != nil {
			return nil, fmt.Errorf("%w (%d)", err, poolID)
		}
		req, err := e.activeRequest(s, pool, peerID)
		if err != nil {
			return nil, err
		}
		if req.Account != actor {
			return nil, fmt.Errorf("%w (%s)", ErrNotRequester, actor.Hex())
		}
		return e.settleRequestLocked(s, pool, req, RequestStatusCancelled, actor, now)
	})
}

// RemoveMember removes the member identified by peerID. The member itself,
// the pool creator, and admins are authorized.
func (e *Engine) RemoveMember(poolID uint32, peerID string, actor common.Address) (*Member, error) {
	var removed *Member
	err := e.update(opRemoveMember, []string{poolLockKey(poolID), peersLockKey}, func(s State, now int64) ([]Event, error) {
		pool, err := s.GetPool(poolID)
		if err != nil {
			return nil, fmt.Errorf("%w (%d)", err, poolID)
		}
		idx := pool.MemberByPeer(peerID)
		if idx < 0 {
			return nil, fmt.Errorf("%w (peer %s)", ErrMemberNotFound, peerID)
		}
		member := pool.Members[idx]

		if actor != member.Account && actor != pool.Creator {
			admin, err := s.HasRole(RoleAdmin, actor)
			if err != nil {
				return nil, err
			}
			if !admin {
				return nil, fmt.Errorf("%w: only the member, the pool creator, or an admin may remove (%s)", ErrUnauthorized, actor.Hex())
			}
		}

		pool.Members = append(pool.Members[:idx], pool.Members[idx+1:]...)
		if err := s.PutPool(pool); err != nil {
			return nil, err
		}
		ev, err := e.dropMemberLocked(s, pool, member, actor, now)
		if err != nil {
			return nil, err
		}

		removed = &member
		return []Event{ev}, nil
	})
	return removed, err
}

// RemoveMembersBatch removes up to count members from the tail of the
// roster. Only the pool creator and admins are authorized. It returns the
// removed members, newest first.
func (e *Engine) RemoveMembersBatch(poolID uint32, count uint32, actor common.Address) ([]Member, error) {
	if count == 0 {
		return nil, e.fail(opRemoveMembersBatch, fmt.Errorf("%w: count must be positive", ErrInvalidParameter))
	}

	var removed []Member
	err := e.update(opRemoveMembersBatch, []string{poolLockKey(poolID), peersLockKey}, func(s State, now int64) ([]Event, error) {
		pool, err := s.GetPool(poolID)
		if err != nil {
			return nil, fmt.Errorf("%w (%d)", err, poolID)
		}
		if actor != pool.Creator {
			admin, err := s.HasRole(RoleAdmin, actor)
			if err != nil {
				return nil, err
			}
			if !admin {
				return nil, fmt.Errorf("%w: only the pool creator or an admin may remove members (%s)", ErrUnauthorized, actor.Hex())
			}
		}

		n := int(count)
		if n > len(pool.Members) {
			n = len(pool.Members)
		}

		var evs []Event
		for i := 0; i < n; i++ {
			member := pool.Members[len(pool.Members)-1]
			pool.Members = pool.Members[:len(pool.Members)-1]

			ev, err := e.dropMemberLocked(s, pool, member, actor, now)
			if err != nil {
				return nil, err
			}
			evs = append(evs, ev)
			removed = append(removed, member)
		}
		if err := s.PutPool(pool); err != nil {
			return nil, err
		}
		return evs, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// DeletePool removes an empty pool record. Only the pool creator and
// admins are authorized, and the pool must have neither members nor
// pending join requests.
func (e *Engine) DeletePool(poolID uint32, actor common.Address) error {
	return e.update(opDeletePool, []string{poolLockKey(poolID)}, func(s State, now int64) ([]Event, error) {
		pool, err := s.GetPool(poolID)
		if err != nil {
			return nil, fmt.Errorf("%w (%d)", err, poolID)
		}
		if actor != pool.Creator {
			admin, err := s.HasRole(RoleAdmin, actor)
			if err != nil {
				return nil, err
			}
			if !admin {
				return nil, fmt.Errorf("%w: only the pool creator or an admin may delete (%s)", ErrUnauthorized, actor.Hex())
			}
		}
		if len(pool.Members) > 0 || pool.PendingRequests > 0 {
			return nil, fmt.Errorf("%w (%d)", ErrPoolNotEmpty, poolID)
		}
		if err := s.DeletePool(poolID); err != nil {
			return nil, err
		}
		return []Event{PoolDeleted{PoolID: poolID, Actor: actor, Time: now}}, nil
	})
}

// requireFreePeer fails with ErrPeerIDClaimed when peerID is already bound
// to a membership or a pending request anywhere.
func (e *Engine) requireFreePeer(s State, peerID string) error {
	_, err := s.GetPeerClaim(peerID)
	switch {
	case err == nil:
		return fmt.Errorf("%w (%s)", ErrPeerIDClaimed, peerID)
	case err == database.ErrNotFound:
		return nil
	default:
		return err
	}
}

// activeRequest resolves a pending join request of pool by the requester's
// peer id.
func (e *Engine) activeRequest(s State, pool *Pool, peerID string) (*JoinRequest, error) {
	claim, err := s.GetPeerClaim(peerID)
	if err == database.ErrNotFound {
		return nil, fmt.Errorf("%w (peer %s)", ErrNoActiveRequest, peerID)
	}
	if err != nil {
		return nil, err
	}
	if claim.PoolID != pool.ID || claim.Member {
		return nil, fmt.Errorf("%w (peer %s)", ErrNoActiveRequest, peerID)
	}
	req, err := s.GetJoinRequest(pool.ID, claim.Account)
	if err == ErrNoActiveRequest {
		return nil, fmt.Errorf("%w (peer %s)", ErrNoActiveRequest, peerID)
	}
	return req, err
}

// admitLocked turns an approved join request into a membership. The pool
// record still carries the requester's pending count; the roster append,
// claim flip, and request deletion commit together.
func (e *Engine) admitLocked(s State, pool *Pool, req *JoinRequest, actor common.Address, now int64) ([]Event, error) {
	if pool.Full() {
		return nil, fmt.Errorf("%w (%d)", ErrCapacityReached, pool.ID)
	}

	req.Status = RequestStatusApproved
	member := Member{
		Account:    req.Account,
		PeerID:     req.PeerID,
		JoinDate:   now,
		Reputation: 0,
	}
	pool.Members = append(pool.Members, member)
	if pool.PendingRequests > 0 {
		pool.PendingRequests--
	}
	if err := s.PutPool(pool); err != nil {
		return nil, err
	}
	if err := s.DeleteJoinRequest(pool.ID, req.Account); err != nil {
		return nil, err
	}
	claim := &peerClaim{PeerID: req.PeerID, PoolID: pool.ID, Account: req.Account, Member: true}
	if err := s.PutPeerClaim(claim); err != nil {
		return nil, err
	}

	// The stake stays locked for the lifetime of the membership.
	return []Event{
		JoinRequestResolved{Request: *req.Clone(), Outcome: RequestStatusApproved, Actor: actor, Time: now},
		MemberAdded{PoolID: pool.ID, Member: member, Actor: actor, Time: now},
	}, nil
}

// settleRequestLocked removes a pending request that ended in rejection or
// cancellation and settles the stake. Rejections run the forfeit policy;
// cancellations always refund.
func (e *Engine) settleRequestLocked(s State, pool *Pool, req *JoinRequest, outcome RequestStatus, actor common.Address, now int64) ([]Event, error) {
	req.Status = outcome
	if err := s.DeleteJoinRequest(pool.ID, req.Account); err != nil {
		return nil, err
	}
	if err := s.DeletePeerClaim(req.PeerID); err != nil {
		return nil, err
	}
	if pool.PendingRequests > 0 {
		pool.PendingRequests--
	}
	if err := s.PutPool(pool); err != nil {
		return nil, err
	}

	forfeit := false
	if outcome == RequestStatusRejected {
		var err error
		forfeit, err = e.forfeits(s, req.Account)
		if err != nil {
			return nil, err
		}
	}
	stake := pool.RequiredTokens.Big()
	if forfeit {
		if err := e.ledger.Forfeit(req.Account, e.cfg.StakingToken, stake); err != nil {
			return nil, err
		}
	} else if err := e.ledger.Release(req.Account, e.cfg.StakingToken, stake); err != nil {
		return nil, err
	}

	return []Event{JoinRequestResolved{
		Request:   *req.Clone(),
		Outcome:   outcome,
		Forfeited: forfeit,
		Actor:     actor,
		Time:      now,
	}}, nil
}

// dropMemberLocked clears a removed member's peer claim and settles the
// stake under the forfeit policy. The caller already took the member off
// the roster.
func (e *Engine) dropMemberLocked(s State, pool *Pool, member Member, actor common.Address, now int64) (Event, error) {
	if err := s.DeletePeerClaim(member.PeerID); err != nil {
		return nil, err
	}

	forfeit, err := e.forfeits(s, member.Account)
	if err != nil {
		return nil, err
	}
	stake := pool.RequiredTokens.Big()
	if forfeit {
		if err := e.ledger.Forfeit(member.Account, e.cfg.StakingToken, stake); err != nil {
			return nil, err
		}
	} else if err := e.ledger.Release(member.Account, e.cfg.StakingToken, stake); err != nil {
		return nil, err
	}

	return MemberRemoved{
		PoolID:    pool.ID,
		Member:    member,
		Forfeited: forfeit,
		Actor:     actor,
		Time:      now,
	}, nil
}

// forfeits evaluates the configured forfeit policy for account.
func (e *Engine) forfeits(s State, account common.Address) (bool, error) {
	switch e.cfg.Membership.ForfeitMode {
	case ForfeitAlways:
		return true, nil
	case ForfeitNever:
		return false, nil
	default:
		return s.Flagged(account)
	}
}

// GetPool returns the stored pool record.
func (e *Engine) GetPool(poolID uint32) (*Pool, error) {
	p, err := e.newState().GetPool(poolID)
	if err != nil {
		return nil, fmt.Errorf("%w (%d)", err, poolID)
	}
	return p, nil
}

// ListPools returns one page of pools in ascending id order plus the total
// pool count. A zero limit selects the configured maximum.
func (e *Engine) ListPools(offset, limit uint32) ([]*Pool, uint64, error) {
	if limit > e.cfg.MaxPageLimit {
		return nil, 0, fmt.Errorf("%w (%d > %d)", ErrLimitTooHigh, limit, e.cfg.MaxPageLimit)
	}
	if limit == 0 {
		limit = e.cfg.MaxPageLimit
	}

	s := e.newState()
	it := s.PoolIterator()
	defer it.Release()

	var (
		page  []*Pool
		total uint64
	)
	for it.Next() {
		seen := total
		total++
		if seen < uint64(offset) {
			continue
		}
		if uint32(len(page)) >= limit {
			continue
		}
		p := Pool{}
		parsedVersion, err := Codec.Unmarshal(it.Value(), &p)
		if err != nil {
			return nil, 0, err
		}
		if parsedVersion != CodecVersion {
			return nil, 0, errPoolWrongVersion
		}
		page = append(page, &p)
	}
	if err := it.Error(); err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// GetJoinRequest returns the pending join request identified by the
// requester's peer id.
func (e *Engine) GetJoinRequest(poolID uint32, peerID string) (*JoinRequest, error) {
	s := e.newState()
	pool, err := s.GetPool(poolID)
	if err != nil {
		return nil, fmt.Errorf("%w (%d)", err, poolID)
	}
	return e.activeRequest(s, pool, peerID)
}

// ListJoinRequests returns every pending join request of a pool in
// requester-account order.
func (e *Engine) ListJoinRequests(poolID uint32) ([]*JoinRequest, error) {
	s := e.newState()
	if _, err := s.GetPool(poolID); err != nil {
		return nil, fmt.Errorf("%w (%d)", err, poolID)
	}
	return e.requestsOf(s, poolID)
}
