// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"net/http"

	"github.com/gorilla/rpc/v2"

	cjson "github.com/ava-labs/avalanchego/utils/json"
	"github.com/ava-labs/avalanchego/version"
	"github.com/ethereum/go-ethereum/common"
)

// Name is the JSON-RPC namespace the service registers under.
const Name = "govpool"

var Version = version.NewDefaultVersion(1, 0, 0)

// Service is the JSON-RPC surface over an Engine. Requests carry the acting
// address explicitly; the daemon is a trusted coordination surface and does
// not authenticate callers.
type Service struct {
	engine *Engine
}

func NewService(engine *Engine) *Service {
	return &Service{engine: engine}
}

// NewHandler returns an HTTP handler serving the govpool JSON-RPC API.
func NewHandler(engine *Engine) (http.Handler, error) {
	server := rpc.NewServer()
	codec := cjson.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	return server, server.RegisterService(NewService(engine), Name)
}

// SuccessReply is the reply for operations with no payload.
type SuccessReply struct {
	Success bool `json:"success"`
}

// ProposalReply wraps a single proposal record.
type ProposalReply struct {
	Proposal *Proposal `json:"proposal"`
}

// CreateProposalArgs are the arguments for CreateProposal. Role is only
// meaningful for role proposals, Amount and TokenAddress only for recovery
// and whitelist proposals.
type CreateProposalArgs struct {
	Type   ProposalType   `json:"proposalType"`
	Target common.Address `json:"target"`
	Role   RoleID         `json:"role"`
	Amount Amount         `json:"amount"`
	Token  common.Address `json:"tokenAddress"`
	Actor  common.Address `json:"actor"`
}

// CreateProposal opens a proposal with the actor's approval already counted.
func (s *Service) CreateProposal(_ *http.Request, args *CreateProposalArgs, reply *ProposalReply) error {
	p, err := s.engine.CreateProposal(args.Type, args.Target, args.Role, args.Amount, args.Token, args.Actor)
	if err != nil {
		return err
	}
	reply.Proposal = p
	return nil
}

// ProposalIDArgs identify a proposal and the acting address.
type ProposalIDArgs struct {
	ID    common.Hash    `json:"proposalId"`
	Actor common.Address `json:"actor"`
}

// ApproveProposal records the actor's approval and executes the proposal
// when it crosses quorum past its timelock.
func (s *Service) ApproveProposal(_ *http.Request, args *ProposalIDArgs, reply *ProposalReply) error {
	p, err := s.engine.ApproveProposal(args.ID, args.Actor)
	if err != nil {
		return err
	}
	reply.Proposal = p
	return nil
}

// ExecuteProposal applies an approved proposal's effect.
func (s *Service) ExecuteProposal(_ *http.Request, args *ProposalIDArgs, reply *ProposalReply) error {
	p, err := s.engine.ExecuteProposal(args.ID, args.Actor)
	if err != nil {
		return err
	}
	reply.Proposal = p
	return nil
}

// GetProposalArgs identify a proposal.
type GetProposalArgs struct {
	ID common.Hash `json:"proposalId"`
}

// GetProposal fetches one proposal record by id.
func (s *Service) GetProposal(_ *http.Request, args *GetProposalArgs, reply *ProposalReply) error {
	p, err := s.engine.GetProposal(args.ID)
	if err != nil {
		return err
	}
	reply.Proposal = p
	return nil
}

// PageArgs select one page of a listing.
type PageArgs struct {
	Offset cjson.Uint32 `json:"offset"`
	Limit  cjson.Uint32 `json:"limit"`
}

// PendingProposalsReply carries one page of live proposals plus the index
// counters.
type PendingProposalsReply struct {
	Proposals []*Proposal `json:"proposals"`
	// Live counts non-expired pending proposals; Total also counts expired
	// leftovers still in the index.
	Live  cjson.Uint64 `json:"live"`
	Total cjson.Uint64 `json:"total"`
}

// PendingProposals lists live proposals in creation order.
func (s *Service) PendingProposals(_ *http.Request, args *PageArgs, reply *PendingProposalsReply) error {
	props, counts, err := s.engine.PendingProposals(uint32(args.Offset), uint32(args.Limit))
	if err != nil {
		return err
	}
	reply.Proposals = props
	reply.Live = cjson.Uint64(counts.Live)
	reply.Total = cjson.Uint64(counts.Total)
	return nil
}

// SetRoleQuorumArgs set the execution quorum of a role.
type SetRoleQuorumArgs struct {
	Role   RoleID         `json:"role"`
	Quorum cjson.Uint32   `json:"quorum"`
	Actor  common.Address `json:"actor"`
}

// SetRoleQuorum updates a role's execution quorum. Zero clears it.
func (s *Service) SetRoleQuorum(_ *http.Request, args *SetRoleQuorumArgs, reply *SuccessReply) error {
	if err := s.engine.SetRoleQuorum(args.Role, uint32(args.Quorum), args.Actor); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

// SetAccountFlagArgs set or clear the forfeiture flag of an account.
type SetAccountFlagArgs struct {
	Account common.Address `json:"account"`
	Flagged bool           `json:"flagged"`
	Actor   common.Address `json:"actor"`
}

// SetAccountFlag updates the forfeiture flag of an account.
func (s *Service) SetAccountFlag(_ *http.Request, args *SetAccountFlagArgs, reply *SuccessReply) error {
	if err := s.engine.SetAccountFlag(args.Account, args.Flagged, args.Actor); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

// HasRoleArgs ask whether an account holds a role.
type HasRoleArgs struct {
	Role    RoleID         `json:"role"`
	Account common.Address `json:"account"`
}

type HasRoleReply struct {
	HasRole bool `json:"hasRole"`
}

// HasRole reports whether account holds role.
func (s *Service) HasRole(_ *http.Request, args *HasRoleArgs, reply *HasRoleReply) error {
	ok, err := s.engine.HasRole(args.Role, args.Account)
	if err != nil {
		return err
	}
	reply.HasRole = ok
	return nil
}

// RoleQuorumArgs identify a role.
type RoleQuorumArgs struct {
	Role RoleID `json:"role"`
}

type RoleQuorumReply struct {
	Quorum cjson.Uint32 `json:"quorum"`
}

// RoleQuorum returns the configured quorum of a role, zero if unset.
func (s *Service) RoleQuorum(_ *http.Request, args *RoleQuorumArgs, reply *RoleQuorumReply) error {
	q, err := s.engine.RoleQuorum(args.Role)
	if err != nil {
		return err
	}
	reply.Quorum = cjson.Uint32(q)
	return nil
}

// WhitelistedArgs identify a (token, account) whitelist slot.
type WhitelistedArgs struct {
	Token   common.Address `json:"tokenAddress"`
	Account common.Address `json:"account"`
}

type WhitelistedReply struct {
	Whitelisted bool   `json:"whitelisted"`
	Amount      Amount `json:"amount"`
}

// Whitelisted returns the whitelist entry for (token, account).
func (s *Service) Whitelisted(_ *http.Request, args *WhitelistedArgs, reply *WhitelistedReply) error {
	amount, ok, err := s.engine.Whitelisted(args.Token, args.Account)
	if err != nil {
		return err
	}
	reply.Whitelisted = ok
	reply.Amount = amount
	return nil
}

type UpgradePlanReply struct {
	Plan *UpgradePlan `json:"plan,omitempty"`
}

// UpgradePlan returns the recorded upgrade plan, if any.
func (s *Service) UpgradePlan(_ *http.Request, _ *struct{}, reply *UpgradePlanReply) error {
	plan, err := s.engine.UpgradePlan()
	if err != nil {
		return err
	}
	reply.Plan = plan
	return nil
}

// PoolReply wraps a single pool record.
type PoolReply struct {
	Pool *Pool `json:"pool"`
}

// CreatePoolArgs are the arguments for CreatePool.
type CreatePoolArgs struct {
	Name                       string         `json:"name"`
	Region                     string         `json:"region"`
	RequiredTokens             Amount         `json:"requiredTokens"`
	MaxMembers                 cjson.Uint32   `json:"maxMembers"`
	MaxChallengeResponsePeriod cjson.Uint32   `json:"maxChallengeResponsePeriod"`
	MinPingTime                cjson.Uint32   `json:"minPingTime"`
	PeerID                     string         `json:"peerId"`
	Actor                      common.Address `json:"actor"`
}

// CreatePool creates a pool with the actor as creator and first member.
func (s *Service) CreatePool(_ *http.Request, args *CreatePoolArgs, reply *PoolReply) error {
	p, err := s.engine.CreatePool(
		args.Name,
		args.Region,
		args.RequiredTokens,
		uint32(args.MaxChallengeResponsePeriod),
		uint32(args.MinPingTime),
		uint32(args.MaxMembers),
		args.PeerID,
		args.Actor,
	)
	if err != nil {
		return err
	}
	reply.Pool = p
	return nil
}

// JoinRequestReply wraps a single join request record.
type JoinRequestReply struct {
	Request *JoinRequest `json:"request"`
}

// PoolPeerArgs identify a pool slot by the occupying peer id.
type PoolPeerArgs struct {
	PoolID cjson.Uint32   `json:"poolId"`
	PeerID string         `json:"peerId"`
	Actor  common.Address `json:"actor"`
}

// JoinPool submits a join request for the actor under the given peer id.
func (s *Service) JoinPool(_ *http.Request, args *PoolPeerArgs, reply *JoinRequestReply) error {
	r, err := s.engine.JoinPool(uint32(args.PoolID), args.PeerID, args.Actor)
	if err != nil {
		return err
	}
	reply.Request = r
	return nil
}

// VoteJoinRequestArgs carry one member vote on a pending join request.
type VoteJoinRequestArgs struct {
	PoolID cjson.Uint32 `json:"poolId"`
	// PeerID identifies the join request being voted on.
	PeerID string `json:"peerId"`
	// VoterPeerID is the voting member's own peer id.
	VoterPeerID string         `json:"voterPeerId"`
	Approve     bool           `json:"approve"`
	Actor       common.Address `json:"actor"`
}

// VoteJoinRequest casts a vote and resolves the request when a threshold is
// crossed.
func (s *Service) VoteJoinRequest(_ *http.Request, args *VoteJoinRequestArgs, reply *JoinRequestReply) error {
	r, err := s.engine.VoteJoinRequest(uint32(args.PoolID), args.PeerID, args.VoterPeerID, args.Approve, args.Actor)
	if err != nil {
		return err
	}
	reply.Request = r
	return nil
}

// CancelJoinRequest withdraws the actor's own pending request.
func (s *Service) CancelJoinRequest(_ *http.Request, args *PoolPeerArgs, reply *SuccessReply) error {
	if err := s.engine.CancelJoinRequest(uint32(args.PoolID), args.PeerID, args.Actor); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

// MemberReply wraps a single member record.
type MemberReply struct {
	Member *Member `json:"member"`
}

// RemoveMember removes the member occupying the given peer id.
func (s *Service) RemoveMember(_ *http.Request, args *PoolPeerArgs, reply *MemberReply) error {
	m, err := s.engine.RemoveMember(uint32(args.PoolID), args.PeerID, args.Actor)
	if err != nil {
		return err
	}
	reply.Member = m
	return nil
}

// RemoveMembersBatchArgs remove up to Count members from the roster tail.
type RemoveMembersBatchArgs struct {
	PoolID cjson.Uint32   `json:"poolId"`
	Count  cjson.Uint32   `json:"count"`
	Actor  common.Address `json:"actor"`
}

type RemoveMembersBatchReply struct {
	Removed []Member `json:"removed"`
}

// RemoveMembersBatch removes members from the roster tail, newest first.
func (s *Service) RemoveMembersBatch(_ *http.Request, args *RemoveMembersBatchArgs, reply *RemoveMembersBatchReply) error {
	removed, err := s.engine.RemoveMembersBatch(uint32(args.PoolID), uint32(args.Count), args.Actor)
	if err != nil {
		return err
	}
	reply.Removed = removed
	return nil
}

// PoolIDArgs identify a pool and the acting address.
type PoolIDArgs struct {
	PoolID cjson.Uint32   `json:"poolId"`
	Actor  common.Address `json:"actor"`
}

// DeletePool removes an empty pool record.
func (s *Service) DeletePool(_ *http.Request, args *PoolIDArgs, reply *SuccessReply) error {
	if err := s.engine.DeletePool(uint32(args.PoolID), args.Actor); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

// GetPool fetches one pool record by id.
func (s *Service) GetPool(_ *http.Request, args *PoolIDArgs, reply *PoolReply) error {
	p, err := s.engine.GetPool(uint32(args.PoolID))
	if err != nil {
		return err
	}
	reply.Pool = p
	return nil
}

type ListPoolsReply struct {
	Pools []*Pool      `json:"pools"`
	Total cjson.Uint64 `json:"total"`
}

// ListPools lists pools in id order.
func (s *Service) ListPools(_ *http.Request, args *PageArgs, reply *ListPoolsReply) error {
	pools, total, err := s.engine.ListPools(uint32(args.Offset), uint32(args.Limit))
	if err != nil {
		return err
	}
	reply.Pools = pools
	reply.Total = cjson.Uint64(total)
	return nil
}

// GetJoinRequest fetches the pending join request occupying the given peer
// id.
func (s *Service) GetJoinRequest(_ *http.Request, args *PoolPeerArgs, reply *JoinRequestReply) error {
	r, err := s.engine.GetJoinRequest(uint32(args.PoolID), args.PeerID)
	if err != nil {
		return err
	}
	reply.Request = r
	return nil
}

type ListJoinRequestsReply struct {
	Requests []*JoinRequest `json:"requests"`
}

// ListJoinRequests lists the pending join requests of a pool.
func (s *Service) ListJoinRequests(_ *http.Request, args *PoolIDArgs, reply *ListJoinRequestsReply) error {
	reqs, err := s.engine.ListJoinRequests(uint32(args.PoolID))
	if err != nil {
		return err
	}
	reply.Requests = reqs
	return nil
}

type ExportStateReply struct {
	State *StateExport `json:"state"`
}

// ExportState renders the full committed engine state.
func (s *Service) ExportState(_ *http.Request, _ *struct{}, reply *ExportStateReply) error {
	export, err := s.engine.ExportState()
	if err != nil {
		return err
	}
	reply.State = export
	return nil
}

type HealthReply struct {
	Healthy bool `json:"healthy"`
}

// Health reports liveness. It exercises a read against the database so a
// wedged store turns the check unhealthy.
func (s *Service) Health(_ *http.Request, _ *struct{}, reply *HealthReply) error {
	if _, err := s.engine.newState().IsInitialized(); err != nil {
		return err
	}
	reply.Healthy = true
	return nil
}
