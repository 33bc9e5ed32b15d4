// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ProposalType identifies the side effect a governance proposal applies when
// it executes.
type ProposalType uint8

const (
	ProposalUnknown ProposalType = iota
	ProposalAddRole
	ProposalRemoveRole
	ProposalUpgrade
	ProposalRecovery
	ProposalAddWhitelist
	ProposalRemoveWhitelist
)

var proposalTypeNames = map[ProposalType]string{
	ProposalAddRole:         "add_role",
	ProposalRemoveRole:      "remove_role",
	ProposalUpgrade:         "upgrade",
	ProposalRecovery:        "recovery",
	ProposalAddWhitelist:    "add_whitelist",
	ProposalRemoveWhitelist: "remove_whitelist",
}

// Valid reports whether t is one of the defined proposal types.
func (t ProposalType) Valid() bool {
	_, ok := proposalTypeNames[t]
	return ok
}

func (t ProposalType) String() string {
	if s, ok := proposalTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// ProposalTypeFromString is the inverse of String. It returns ProposalUnknown
// for names it does not recognize.
func ProposalTypeFromString(s string) ProposalType {
	for t, name := range proposalTypeNames {
		if name == s {
			return t
		}
	}
	return ProposalUnknown
}

func (t ProposalType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: proposal type %d", ErrInvalidParameter, uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *ProposalType) UnmarshalText(b []byte) error {
	p := ProposalTypeFromString(string(b))
	if p == ProposalUnknown {
		return fmt.Errorf("%w: proposal type %q", ErrInvalidParameter, string(b))
	}
	*t = p
	return nil
}

// Class groups proposal types that compete for the same dedup slot. Two
// pending proposals may share a target as long as their classes differ.
type ProposalClass uint8

const (
	ClassUnknown ProposalClass = iota
	ClassRole
	ClassUpgrade
	ClassRecovery
	ClassWhitelist
)

// Class returns the dedup class of the proposal type.
func (t ProposalType) Class() ProposalClass {
	switch t {
	case ProposalAddRole, ProposalRemoveRole:
		return ClassRole
	case ProposalUpgrade:
		return ClassUpgrade
	case ProposalRecovery:
		return ClassRecovery
	case ProposalAddWhitelist, ProposalRemoveWhitelist:
		return ClassWhitelist
	default:
		return ClassUnknown
	}
}

// ProposalStatus tracks the lifecycle stage of a proposal. Expiry is not a
// stored status; it is derived from ExpiryTime and the current clock.
type ProposalStatus uint8

const (
	ProposalStatusPending ProposalStatus = iota
	ProposalStatusExecuted
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalStatusPending:
		return "pending"
	case ProposalStatusExecuted:
		return "executed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s ProposalStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ProposalStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*s = ProposalStatusPending
	case "executed":
		*s = ProposalStatusExecuted
	default:
		return fmt.Errorf("%w: proposal status %q", ErrInvalidParameter, string(b))
	}
	return nil
}

// AmountLen is the byte width of an Amount.
const AmountLen = 32

// Amount is a 256-bit unsigned integer in big-endian form, mirroring the
// token quantities the surrounding system accounts in.
type Amount [AmountLen]byte

// AmountFromBig converts v to an Amount. It fails on negative values and on
// values wider than 256 bits.
func AmountFromBig(v *big.Int) (Amount, error) {
	var a Amount
	if v == nil {
		return a, nil
	}
	if v.Sign() < 0 {
		return a, fmt.Errorf("%w: negative amount", ErrInvalidParameter)
	}
	if v.BitLen() > AmountLen*8 {
		return a, fmt.Errorf("%w: amount exceeds 256 bits", ErrInvalidParameter)
	}
	v.FillBytes(a[:])
	return a, nil
}

// AmountFromUint64 converts v to an Amount. It never fails.
func AmountFromUint64(v uint64) Amount {
	var a Amount
	binary.BigEndian.PutUint64(a[AmountLen-8:], v)
	return a
}

// Big returns the amount as a fresh big.Int.
func (a Amount) Big() *big.Int {
	return new(big.Int).SetBytes(a[:])
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a == Amount{}
}

func (a Amount) String() string {
	return a.Big().String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAmount parses a base-10 amount string.
func ParseAmount(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: amount %q", ErrInvalidParameter, s)
	}
	return AmountFromBig(v)
}

// Proposal is a stored governance proposal. ID is derived from the proposal
// content and creation time, so identical resubmissions after expiry mint a
// fresh identifier.
type Proposal struct {
	ID           common.Hash      `serialize:"true" json:"id"`
	Type         ProposalType     `serialize:"true" json:"proposalType"`
	Target       common.Address   `serialize:"true" json:"target"`
	Role         RoleID           `serialize:"true" json:"role"`
	Amount       Amount           `serialize:"true" json:"amount"`
	Token        common.Address   `serialize:"true" json:"tokenAddress"`
	Approvals    uint32           `serialize:"true" json:"approvals"`
	ApprovedBy   []common.Address `serialize:"true" json:"approvedBy"`
	Status       ProposalStatus   `serialize:"true" json:"status"`
	CreationTime int64            `serialize:"true" json:"creationTime"`
	// ExecutionTime is the earliest instant at which execution is allowed.
	ExecutionTime int64 `serialize:"true" json:"executionTime"`
	ExpiryTime    int64 `serialize:"true" json:"expiryTime"`
}

// proposalID derives the content hash identifying a proposal.
func proposalID(t ProposalType, target common.Address, role RoleID, amount Amount, token common.Address, creation int64) common.Hash {
	raw := make([]byte, 1+common.AddressLength+common.HashLength+AmountLen+common.AddressLength+8)
	p := raw
	p[0] = byte(t)
	p = p[1:]
	copy(p, target[:])
	p = p[common.AddressLength:]
	copy(p, role[:])
	p = p[common.HashLength:]
	copy(p, amount[:])
	p = p[AmountLen:]
	copy(p, token[:])
	p = p[common.AddressLength:]
	binary.BigEndian.PutUint64(p, uint64(creation))
	return crypto.Keccak256Hash(raw)
}

// conflictKey derives the dedup slot a proposal occupies while pending. It
// covers the type class, target, and role so that, say, an upgrade proposal
// never blocks a whitelist proposal for the same address.
func conflictKey(class ProposalClass, target common.Address, role RoleID) common.Hash {
	raw := make([]byte, 1+common.AddressLength+common.HashLength)
	raw[0] = byte(class)
	copy(raw[1:], target[:])
	copy(raw[1+common.AddressLength:], role[:])
	return crypto.Keccak256Hash(raw)
}

// ConflictKey returns the dedup slot this proposal occupies while pending.
func (p *Proposal) ConflictKey() common.Hash {
	return conflictKey(p.Type.Class(), p.Target, p.Role)
}

// HasApproved reports whether addr already counts toward the approval tally.
func (p *Proposal) HasApproved(addr common.Address) bool {
	for _, a := range p.ApprovedBy {
		if a == addr {
			return true
		}
	}
	return false
}

// Expired reports whether the proposal's approval window has closed at now.
// The window is inclusive of ExpiryTime itself.
func (p *Proposal) Expired(now int64) bool {
	return now > p.ExpiryTime
}

// DelayMet reports whether the timelock has elapsed at now.
func (p *Proposal) DelayMet(now int64) bool {
	return now >= p.ExecutionTime
}

// Clone returns a deep copy safe to hand outside the engine.
func (p *Proposal) Clone() *Proposal {
	cp := *p
	cp.ApprovedBy = append([]common.Address(nil), p.ApprovedBy...)
	return &cp
}

// Member is a storage-pool member record.
type Member struct {
	Account common.Address `serialize:"true" json:"account"`
	PeerID  string         `serialize:"true" json:"peerId"`
	// JoinDate is the unix time at which the member's join request resolved.
	JoinDate   int64  `serialize:"true" json:"joinDate"`
	Reputation uint16 `serialize:"true" json:"reputationScore"`
}

// Pool is a stored storage pool. Members carries the full membership roster;
// rosters stay small enough (MaxMembers) that linear scans are fine.
type Pool struct {
	ID             uint32         `serialize:"true" json:"id"`
	Name           string         `serialize:"true" json:"name"`
	Region         string         `serialize:"true" json:"region"`
	Creator        common.Address `serialize:"true" json:"creator"`
	RequiredTokens Amount         `serialize:"true" json:"requiredTokens"`
	MaxMembers     uint32         `serialize:"true" json:"maxMembers"`
	// MaxChallengeResponsePeriod and MinPingTime are operational parameters
	// carried for pool clients; the engine stores but does not interpret them.
	MaxChallengeResponsePeriod uint32   `serialize:"true" json:"maxChallengeResponsePeriod"`
	MinPingTime                uint32   `serialize:"true" json:"minPingTime"`
	Members                    []Member `serialize:"true" json:"members"`
	// PendingRequests counts open join requests against the pool.
	PendingRequests uint32 `serialize:"true" json:"pendingRequests"`
}

// MemberCount returns the roster size.
func (p *Pool) MemberCount() uint32 {
	return uint32(len(p.Members))
}

// Full reports whether the roster has reached MaxMembers.
func (p *Pool) Full() bool {
	return p.MaxMembers > 0 && p.MemberCount() >= p.MaxMembers
}

// IsMember reports whether account is on the roster.
func (p *Pool) IsMember(account common.Address) bool {
	for i := range p.Members {
		if p.Members[i].Account == account {
			return true
		}
	}
	return false
}

// MemberByPeer returns the roster index of the member with the given peer ID,
// or -1 if absent.
func (p *Pool) MemberByPeer(peerID string) int {
	for i := range p.Members {
		if p.Members[i].PeerID == peerID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand outside the engine.
func (p *Pool) Clone() *Pool {
	cp := *p
	cp.Members = append([]Member(nil), p.Members...)
	return &cp
}

// RequestStatus tracks the lifecycle stage of a join request.
type RequestStatus uint8

const (
	RequestStatusPending RequestStatus = iota
	RequestStatusApproved
	RequestStatusRejected
	RequestStatusCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case RequestStatusPending:
		return "pending"
	case RequestStatusApproved:
		return "approved"
	case RequestStatusRejected:
		return "rejected"
	case RequestStatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s RequestStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// JoinRequest is a stored pool join request, keyed by (PoolID, Account).
// Voted lists every member that has cast a vote, in either direction.
type JoinRequest struct {
	PoolID     uint32           `serialize:"true" json:"poolId"`
	Account    common.Address   `serialize:"true" json:"account"`
	PeerID     string           `serialize:"true" json:"peerId"`
	CreatedAt  int64            `serialize:"true" json:"createdAt"`
	Approvals  uint32           `serialize:"true" json:"approvals"`
	Rejections uint32           `serialize:"true" json:"rejections"`
	Voted      []common.Address `serialize:"true" json:"voted"`
	Status     RequestStatus    `serialize:"true" json:"status"`
}

// HasVoted reports whether addr has already cast a vote on this request.
func (r *JoinRequest) HasVoted(addr common.Address) bool {
	for _, a := range r.Voted {
		if a == addr {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand outside the engine.
func (r *JoinRequest) Clone() *JoinRequest {
	cp := *r
	cp.Voted = append([]common.Address(nil), r.Voted...)
	return &cp
}

// UpgradePlan records the target approved by an executed upgrade proposal.
// The surrounding system reads it; the engine only records it.
type UpgradePlan struct {
	Target     common.Address `serialize:"true" json:"target"`
	ProposalID common.Hash    `serialize:"true" json:"proposalId"`
	ApprovedAt int64          `serialize:"true" json:"approvedAt"`
}
