// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ForfeitMode controls what happens to a requester's locked stake when a
// join request is rejected.
type ForfeitMode uint8

const (
	// ForfeitFlagged forfeits stake only for accounts carrying the
	// forfeiture flag; everyone else is refunded.
	ForfeitFlagged ForfeitMode = iota
	// ForfeitAlways forfeits stake on every rejection.
	ForfeitAlways
	// ForfeitNever always refunds.
	ForfeitNever
)

func (m ForfeitMode) String() string {
	switch m {
	case ForfeitFlagged:
		return "flagged"
	case ForfeitAlways:
		return "always"
	case ForfeitNever:
		return "never"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseForfeitMode parses the string form produced by String.
func ParseForfeitMode(s string) (ForfeitMode, error) {
	switch s {
	case "flagged":
		return ForfeitFlagged, nil
	case "always":
		return ForfeitAlways, nil
	case "never":
		return ForfeitNever, nil
	default:
		return 0, fmt.Errorf("%w: forfeit mode %q", ErrInvalidParameter, s)
	}
}

func (m ForfeitMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ForfeitMode) UnmarshalText(b []byte) error {
	parsed, err := ParseForfeitMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MembershipRules parameterizes join-request vote resolution.
type MembershipRules struct {
	// ApprovePercent is the fraction of current members whose approve votes
	// resolve a request, applied as ceil(percent * members / 100).
	ApprovePercent uint32 `json:"approvePercent"`
	// ApproveAbsolute is an alternative absolute approve-vote count that
	// resolves a request regardless of pool size. Zero disables it.
	ApproveAbsolute uint32 `json:"approveAbsolute"`
	// RejectPercent is the fraction of current members whose reject votes
	// resolve a request, applied as ceil(percent * members / 100).
	RejectPercent uint32 `json:"rejectPercent"`
	// CreatorVoteOverride makes an approve vote by the pool creator resolve
	// the request immediately.
	CreatorVoteOverride bool `json:"creatorVoteOverride"`
	// ForfeitMode decides the fate of locked stake on rejection.
	ForfeitMode ForfeitMode `json:"forfeitMode"`
}

// Config carries the engine parameters. The zero value is not usable; start
// from DefaultConfig. JSON round-trips through configJSON so durations read
// and write as duration strings.
type Config struct {
	// ProposalTTL is the window from creation during which a proposal can
	// gather approvals and execute.
	ProposalTTL time.Duration
	// ExecutionDelay is the timelock between creation and the earliest
	// allowed execution.
	ExecutionDelay time.Duration
	// MaxPageLimit caps the page size of list operations.
	MaxPageLimit uint32
	// StakingToken denominates pool join stakes in the ledger. The zero
	// address selects the ledger's native token.
	StakingToken common.Address
	// RestrictPoolCreation requires the pool_creator role for createPool
	// when set. By default anyone may create a pool.
	RestrictPoolCreation bool

	Membership MembershipRules
}

// configJSON mirrors Config for JSON documents, with durations rendered as
// Go duration strings ("72h") instead of nanosecond counts.
type configJSON struct {
	ProposalTTL          string          `json:"proposalTTL"`
	ExecutionDelay       string          `json:"executionDelay"`
	MaxPageLimit         uint32          `json:"maxPageLimit"`
	StakingToken         common.Address  `json:"stakingToken"`
	RestrictPoolCreation bool            `json:"restrictPoolCreation"`
	Membership           MembershipRules `json:"membership"`
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		ProposalTTL:          c.ProposalTTL.String(),
		ExecutionDelay:       c.ExecutionDelay.String(),
		MaxPageLimit:         c.MaxPageLimit,
		StakingToken:         c.StakingToken,
		RestrictPoolCreation: c.RestrictPoolCreation,
		Membership:           c.Membership,
	})
}

func (c *Config) UnmarshalJSON(b []byte) error {
	raw := configJSON{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ttl, err := time.ParseDuration(raw.ProposalTTL)
	if err != nil {
		return fmt.Errorf("%w: proposal ttl: %s", ErrInvalidParameter, err)
	}
	delay, err := time.ParseDuration(raw.ExecutionDelay)
	if err != nil {
		return fmt.Errorf("%w: execution delay: %s", ErrInvalidParameter, err)
	}
	c.ProposalTTL = ttl
	c.ExecutionDelay = delay
	c.MaxPageLimit = raw.MaxPageLimit
	c.StakingToken = raw.StakingToken
	c.RestrictPoolCreation = raw.RestrictPoolCreation
	c.Membership = raw.Membership
	return nil
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		ProposalTTL:    72 * time.Hour,
		ExecutionDelay: 24 * time.Hour,
		MaxPageLimit:   20,
		Membership: MembershipRules{
			ApprovePercent:      33,
			ApproveAbsolute:     10,
			RejectPercent:       50,
			CreatorVoteOverride: true,
			ForfeitMode:         ForfeitFlagged,
		},
	}
}

// Validate checks the parameters for internal consistency.
func (c Config) Validate() error {
	if c.ProposalTTL <= 0 {
		return fmt.Errorf("%w: proposal ttl must be positive", ErrInvalidParameter)
	}
	if c.ExecutionDelay < 0 {
		return fmt.Errorf("%w: execution delay must not be negative", ErrInvalidParameter)
	}
	if c.ExecutionDelay >= c.ProposalTTL {
		return fmt.Errorf("%w: execution delay must be shorter than proposal ttl", ErrInvalidParameter)
	}
	if c.MaxPageLimit == 0 {
		return fmt.Errorf("%w: max page limit must be positive", ErrInvalidParameter)
	}
	return c.Membership.Validate()
}

// Validate checks the vote-resolution parameters.
func (r MembershipRules) Validate() error {
	if r.ApprovePercent == 0 || r.ApprovePercent > 100 {
		return fmt.Errorf("%w: approve percent must be in (0, 100]", ErrInvalidParameter)
	}
	if r.RejectPercent == 0 || r.RejectPercent > 100 {
		return fmt.Errorf("%w: reject percent must be in (0, 100]", ErrInvalidParameter)
	}
	if r.ForfeitMode > ForfeitNever {
		return fmt.Errorf("%w: forfeit mode %d", ErrInvalidParameter, uint8(r.ForfeitMode))
	}
	return nil
}
