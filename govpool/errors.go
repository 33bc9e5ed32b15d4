// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"errors"
	"fmt"
)

// Category sentinels. Every failure the engine returns wraps exactly one of
// these, so callers can branch with errors.Is without matching strings.
var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrExpired          = errors.New("expired")
	ErrNotYetEligible   = errors.New("not yet eligible")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrConflict         = errors.New("conflict")
)

// Concrete failures, each wrapping its category.
var (
	ErrProposalNotFound = fmt.Errorf("proposal %w", ErrNotFound)
	ErrPoolNotFound     = fmt.Errorf("pool %w", ErrNotFound)
	ErrNoActiveRequest  = fmt.Errorf("join request %w", ErrNotFound)
	ErrMemberNotFound   = fmt.Errorf("member %w", ErrNotFound)

	ErrNotAdmin     = fmt.Errorf("%w: admin role required", ErrUnauthorized)
	ErrNotMember    = fmt.Errorf("%w: not a pool member", ErrUnauthorized)
	ErrNotRequester = fmt.Errorf("%w: not the requester", ErrUnauthorized)
	ErrUserFlagged  = fmt.Errorf("%w: account flagged", ErrUnauthorized)

	ErrAlreadyApproved       = fmt.Errorf("%w: already approved by this admin", ErrInvalidState)
	ErrAlreadyExecuted       = fmt.Errorf("%w: proposal already executed", ErrInvalidState)
	ErrAlreadyVoted          = fmt.Errorf("%w: member already voted", ErrInvalidState)
	ErrPoolNotEmpty          = fmt.Errorf("%w: pool has members or pending requests", ErrInvalidState)
	ErrInsufficientApprovals = fmt.Errorf("%w: approvals below quorum", ErrInvalidState)

	ErrExecutionDelayNotMet = fmt.Errorf("%w: execution delay not met", ErrNotYetEligible)

	ErrInvalidTarget     = fmt.Errorf("%w: target address", ErrInvalidParameter)
	ErrInvalidRole       = fmt.Errorf("%w: unrecognized role", ErrInvalidParameter)
	ErrInvalidQuorum     = fmt.Errorf("%w: quorum must be zero or at least two", ErrInvalidParameter)
	ErrInvalidPoolParams = fmt.Errorf("%w: pool parameters", ErrInvalidParameter)
	ErrInvalidPeerID     = fmt.Errorf("%w: peer id", ErrInvalidParameter)
	ErrLimitTooHigh      = fmt.Errorf("%w: page limit above cap", ErrInvalidParameter)

	ErrProposalExpired = fmt.Errorf("proposal %w", ErrExpired)

	ErrCapacityReached = fmt.Errorf("%w: pool is full", ErrCapacityExceeded)

	ErrDuplicateProposal = fmt.Errorf("%w: pending proposal exists for this target", ErrConflict)
	ErrAlreadyMember     = fmt.Errorf("%w: already a pool member", ErrConflict)
	ErrAlreadyRequested  = fmt.Errorf("%w: active join request exists", ErrConflict)
	ErrPeerIDClaimed     = fmt.Errorf("%w: peer id already in use", ErrConflict)
)
