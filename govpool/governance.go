// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ethereum/go-ethereum/common"
)

// governingRole returns the role whose quorum gates a proposal. Role
// proposals are gated by the quorum of the role they grant or revoke;
// everything else is gated by the admin quorum.
func governingRole(p *Proposal) RoleID {
	if p.Type.Class() == ClassRole {
		return p.Role
	}
	return RoleAdmin
}

// CreateProposal validates and stores a new proposal. The creator counts as
// the first approver. For non-role proposal types the role field is ignored
// and normalized to zero.
func (e *Engine) CreateProposal(typ ProposalType, target common.Address, role RoleID, amount Amount, token common.Address, actor common.Address) (*Proposal, error) {
	if !typ.Valid() {
		return nil, e.fail(opCreateProposal, fmt.Errorf("%w: proposal type %d", ErrInvalidParameter, uint8(typ)))
	}
	if typ.Class() != ClassRole {
		role = RoleID{}
	}
	key := conflictKey(typ.Class(), target, role)

	var created *Proposal
	err := e.update(opCreateProposal, []string{proposalLockKey(key)}, func(s State, now int64) ([]Event, error) {
		if err := e.requireAdmin(s, actor); err != nil {
			return nil, err
		}
		if target == (common.Address{}) {
			return nil, ErrInvalidTarget
		}
		if typ.Class() == ClassRole && !role.Recognized() {
			return nil, fmt.Errorf("%w (%s)", ErrInvalidRole, role.Hex())
		}
		if typ == ProposalRecovery && token == (common.Address{}) {
			return nil, fmt.Errorf("%w: recovery needs a token address", ErrInvalidParameter)
		}

		// The dedup slot may be free, occupied by a live proposal, or hold
		// a leftover reference to one that expired. Only a live occupant
		// blocks creation.
		existingID, err := s.PendingIDForKey(key)
		switch {
		case err == nil:
			existing, err := s.GetProposal(existingID)
			if err != nil && err != ErrProposalNotFound {
				return nil, err
			}
			if err == nil && existing.Status == ProposalStatusPending && !existing.Expired(now) {
				return nil, fmt.Errorf("%w (%s)", ErrDuplicateProposal, existingID.Hex())
			}
		case err != database.ErrNotFound:
			return nil, err
		}

		p := &Proposal{
			ID:            proposalID(typ, target, role, amount, token, now),
			Type:          typ,
			Target:        target,
			Role:          role,
			Amount:        amount,
			Token:         token,
			Approvals:     1,
			ApprovedBy:    []common.Address{actor},
			Status:        ProposalStatusPending,
			CreationTime:  now,
			ExecutionTime: now + int64(e.cfg.ExecutionDelay/time.Second),
			ExpiryTime:    now + int64(e.cfg.ProposalTTL/time.Second),
		}
		if err := s.PutProposal(p); err != nil {
			return nil, err
		}
		if err := s.SetPendingKey(key, p.ID); err != nil {
			return nil, err
		}
		if err := s.AddPendingIndex(p.CreationTime, p.ID); err != nil {
			return nil, err
		}

		created = p.Clone()
		return []Event{ProposalCreated{Proposal: *p.Clone(), Actor: actor, Time: now}}, nil
	})
	return created, err
}

// ApproveProposal records one distinct-admin approval. When the new
// approval satisfies the quorum and the timelock has already elapsed, the
// proposal executes within the same transaction, so no second call is
// needed and no other caller can interleave.
func (e *Engine) ApproveProposal(id common.Hash, actor common.Address) (*Proposal, error) {
	probe, err := e.newState().GetProposal(id)
	if err != nil {
		return nil, e.fail(opApproveProposal, fmt.Errorf("%w (%s)", err, id.Hex()))
	}
	key := probe.ConflictKey()

	var approved *Proposal
	err = e.update(opApproveProposal, []string{proposalLockKey(key)}, func(s State, now int64) ([]Event, error) {
		p, err := s.GetProposal(id)
		if err != nil {
			return nil, fmt.Errorf("%w (%s)", err, id.Hex())
		}
		if err := e.requireAdmin(s, actor); err != nil {
			return nil, err
		}
		if p.Status == ProposalStatusExecuted {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyExecuted, id.Hex())
		}
		if p.Expired(now) {
			return nil, fmt.Errorf("%w (%s)", ErrProposalExpired, id.Hex())
		}
		if p.HasApproved(actor) {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyApproved, id.Hex())
		}

		p.ApprovedBy = append(p.ApprovedBy, actor)
		p.Approvals++

		evs := []Event{ProposalApproved{
			ProposalID: p.ID,
			Actor:      actor,
			Approvals:  p.Approvals,
			Time:       now,
		}}

		quorum, err := s.RoleQuorum(governingRole(p))
		if err != nil {
			return nil, err
		}
		if QuorumReached(p.Approvals, quorum) && p.DelayMet(now) {
			exEvs, err := e.executeLocked(s, p, actor, now)
			if err != nil {
				return nil, err
			}
			evs = append(evs, exEvs...)
		} else if err := s.PutProposal(p); err != nil {
			return nil, err
		}

		approved = p.Clone()
		return evs, nil
	})
	return approved, err
}

// ExecuteProposal applies a pending proposal's side effect once quorum is
// met, the timelock has elapsed, and the approval window is still open.
func (e *Engine) ExecuteProposal(id common.Hash, actor common.Address) (*Proposal, error) {
	probe, err := e.newState().GetProposal(id)
	if err != nil {
		return nil, e.fail(opExecuteProposal, fmt.Errorf("%w (%s)", err, id.Hex()))
	}
	key := probe.ConflictKey()

	var executed *Proposal
	err = e.update(opExecuteProposal, []string{proposalLockKey(key)}, func(s State, now int64) ([]Event, error) {
		p, err := s.GetProposal(id)
		if err != nil {
			return nil, fmt.Errorf("%w (%s)", err, id.Hex())
		}
		if err := e.requireAdmin(s, actor); err != nil {
			return nil, err
		}
		if p.Status == ProposalStatusExecuted {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyExecuted, id.Hex())
		}
		if p.Expired(now) {
			return nil, fmt.Errorf("%w (%s)", ErrProposalExpired, id.Hex())
		}

		quorum, err := s.RoleQuorum(governingRole(p))
		if err != nil {
			return nil, err
		}
		if !QuorumReached(p.Approvals, quorum) {
			return nil, fmt.Errorf("%w (%s: %d of %d)", ErrInsufficientApprovals, id.Hex(), p.Approvals, quorum)
		}
		if !p.DelayMet(now) {
			return nil, fmt.Errorf("%w (%s)", ErrExecutionDelayNotMet, id.Hex())
		}

		evs, err := e.executeLocked(s, p, actor, now)
		if err != nil {
			return nil, err
		}
		executed = p.Clone()
		return evs, nil
	})
	return executed, err
}

// executeLocked applies the type-specific side effect, marks the proposal
// executed, and drops it from the pending indexes. The caller must have
// verified every execution precondition and must hold the proposal's lock.
func (e *Engine) executeLocked(s State, p *Proposal, actor common.Address, now int64) ([]Event, error) {
	switch p.Type {
	case ProposalAddRole:
		if err := s.GrantRole(p.Role, p.Target); err != nil {
			return nil, err
		}
	case ProposalRemoveRole:
		if err := s.RevokeRole(p.Role, p.Target); err != nil {
			return nil, err
		}
	case ProposalAddWhitelist:
		if err := s.SetWhitelisted(p.Token, p.Target, p.Amount); err != nil {
			return nil, err
		}
	case ProposalRemoveWhitelist:
		if err := s.ClearWhitelisted(p.Token, p.Target); err != nil {
			return nil, err
		}
	case ProposalUpgrade:
		plan := &UpgradePlan{Target: p.Target, ProposalID: p.ID, ApprovedAt: now}
		if err := s.SetUpgradePlan(plan); err != nil {
			return nil, err
		}
	case ProposalRecovery:
		// The ledger call happens after all state writes are staged so a
		// ledger rejection aborts the whole transaction.
		if err := e.ledger.Release(p.Target, p.Token, p.Amount.Big()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: proposal type %d", ErrInvalidParameter, uint8(p.Type))
	}

	p.Status = ProposalStatusExecuted
	if err := s.PutProposal(p); err != nil {
		return nil, err
	}
	if err := s.DeletePendingKey(p.ConflictKey()); err != nil {
		return nil, err
	}
	if err := s.DeletePendingIndex(p.CreationTime, p.ID); err != nil {
		return nil, err
	}

	return []Event{ProposalExecuted{Proposal: *p.Clone(), Actor: actor, Time: now}}, nil
}

// GetProposal returns the stored proposal, executed or not.
func (e *Engine) GetProposal(id common.Hash) (*Proposal, error) {
	p, err := e.newState().GetProposal(id)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, id.Hex())
	}
	return p, nil
}

// PendingCounts reports the size of the pending set next to a page of it.
type PendingCounts struct {
	// Live is the number of pending proposals whose approval window is
	// still open.
	Live uint64 `json:"live"`
	// Total additionally counts pending proposals that already expired.
	Total uint64 `json:"total"`
}

// PendingProposals returns one page of non-expired pending proposals in
// creation-time order, plus the pending-set counts. Offset skips entries of
// the filtered sequence. A zero limit selects the configured maximum; a
// limit above the maximum is rejected.
func (e *Engine) PendingProposals(offset, limit uint32) ([]*Proposal, PendingCounts, error) {
	counts := PendingCounts{}
	if limit > e.cfg.MaxPageLimit {
		return nil, counts, fmt.Errorf("%w (%d > %d)", ErrLimitTooHigh, limit, e.cfg.MaxPageLimit)
	}
	if limit == 0 {
		limit = e.cfg.MaxPageLimit
	}

	s := e.newState()
	now := e.clock.Time().Unix()

	it := s.PendingIterator()
	defer it.Release()

	var page []*Proposal
	for it.Next() {
		id := pendingIndexID(it.Key())
		p, err := s.GetProposal(id)
		if err == ErrProposalNotFound {
			continue
		}
		if err != nil {
			return nil, PendingCounts{}, err
		}

		counts.Total++
		if p.Expired(now) {
			continue
		}
		live := counts.Live
		counts.Live++

		if live < uint64(offset) {
			continue
		}
		if uint32(len(page)) < limit {
			page = append(page, p)
		}
	}
	if err := it.Error(); err != nil {
		return nil, PendingCounts{}, err
	}
	return page, counts, nil
}

// SetRoleQuorum configures the approval quorum of a role. A quorum must be
// at least two when set; zero clears the configuration and stops proposals
// gated by the role from executing.
func (e *Engine) SetRoleQuorum(role RoleID, quorum uint32, actor common.Address) error {
	if !role.Recognized() {
		return e.fail(opSetRoleQuorum, fmt.Errorf("%w (%s)", ErrInvalidRole, role.Hex()))
	}
	if quorum == 1 {
		return e.fail(opSetRoleQuorum, ErrInvalidQuorum)
	}

	return e.update(opSetRoleQuorum, []string{registryLockKey}, func(s State, now int64) ([]Event, error) {
		if err := e.requireAdmin(s, actor); err != nil {
			return nil, err
		}
		if err := s.SetRoleQuorum(role, quorum); err != nil {
			return nil, err
		}
		return []Event{QuorumUpdated{Role: role, Quorum: quorum, Actor: actor, Time: now}}, nil
	})
}

// SetAccountFlag sets or clears the forfeiture flag on an account. Flagged
// accounts cannot submit join requests and lose their stake on rejection
// under the default forfeit mode.
func (e *Engine) SetAccountFlag(account common.Address, flagged bool, actor common.Address) error {
	if account == (common.Address{}) {
		return e.fail(opSetAccountFlag, ErrInvalidTarget)
	}

	return e.update(opSetAccountFlag, []string{registryLockKey}, func(s State, now int64) ([]Event, error) {
		if err := e.requireAdmin(s, actor); err != nil {
			return nil, err
		}
		if err := s.SetFlag(account, flagged); err != nil {
			return nil, err
		}
		return []Event{AccountFlagged{Account: account, Flagged: flagged, Actor: actor, Time: now}}, nil
	})
}
