// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/v2/json2"

	cjson "github.com/ava-labs/avalanchego/utils/json"
	"github.com/ava-labs/govpool/govpool"
	"github.com/ethereum/go-ethereum/common"
)

// Client defines govpool client operations, mirroring the JSON-RPC service
// one to one.
type Client interface {
	// CreateProposal opens a proposal with the actor's approval already
	// counted.
	CreateProposal(ctx context.Context, typ govpool.ProposalType, target common.Address, role govpool.RoleID, amount govpool.Amount, token common.Address, actor common.Address) (*govpool.Proposal, error)

	// ApproveProposal records the actor's approval and executes the
	// proposal when it crosses quorum past its timelock.
	ApproveProposal(ctx context.Context, id common.Hash, actor common.Address) (*govpool.Proposal, error)

	// ExecuteProposal applies an approved proposal's effect.
	ExecuteProposal(ctx context.Context, id common.Hash, actor common.Address) (*govpool.Proposal, error)

	// GetProposal fetches one proposal record by id.
	GetProposal(ctx context.Context, id common.Hash) (*govpool.Proposal, error)

	// PendingProposals lists live proposals in creation order and returns
	// the live and total index counters.
	PendingProposals(ctx context.Context, offset, limit uint32) ([]*govpool.Proposal, uint64, uint64, error)

	// SetRoleQuorum updates a role's execution quorum. Zero clears it.
	SetRoleQuorum(ctx context.Context, role govpool.RoleID, quorum uint32, actor common.Address) error

	// SetAccountFlag updates the forfeiture flag of an account.
	SetAccountFlag(ctx context.Context, account common.Address, flagged bool, actor common.Address) error

	// HasRole reports whether account holds role.
	HasRole(ctx context.Context, role govpool.RoleID, account common.Address) (bool, error)

	// RoleQuorum returns the configured quorum of a role, zero if unset.
	RoleQuorum(ctx context.Context, role govpool.RoleID) (uint32, error)

	// Whitelisted returns the whitelist entry for (token, account).
	Whitelisted(ctx context.Context, token, account common.Address) (govpool.Amount, bool, error)

	// UpgradePlan returns the recorded upgrade plan, nil if none executed.
	UpgradePlan(ctx context.Context) (*govpool.UpgradePlan, error)

	// CreatePool creates a pool with the actor as creator and first member.
	CreatePool(ctx context.Context, name, region string, requiredTokens govpool.Amount, maxChallengeResponsePeriod, minPingTime, maxMembers uint32, peerID string, actor common.Address) (*govpool.Pool, error)

	// JoinPool submits a join request for the actor under peerID.
	JoinPool(ctx context.Context, poolID uint32, peerID string, actor common.Address) (*govpool.JoinRequest, error)

	// VoteJoinRequest casts a member vote on the join request identified by
	// the requester's peerID.
	VoteJoinRequest(ctx context.Context, poolID uint32, peerID, voterPeerID string, approve bool, actor common.Address) (*govpool.JoinRequest, error)

	// CancelJoinRequest withdraws the actor's own pending request.
	CancelJoinRequest(ctx context.Context, poolID uint32, peerID string, actor common.Address) error

	// RemoveMember removes the member occupying peerID.
	RemoveMember(ctx context.Context, poolID uint32, peerID string, actor common.Address) (*govpool.Member, error)

	// RemoveMembersBatch removes up to count members from the roster tail.
	RemoveMembersBatch(ctx context.Context, poolID, count uint32, actor common.Address) ([]govpool.Member, error)

	// DeletePool removes an empty pool record.
	DeletePool(ctx context.Context, poolID uint32, actor common.Address) error

	// GetPool fetches one pool record by id.
	GetPool(ctx context.Context, poolID uint32) (*govpool.Pool, error)

	// ListPools lists pools in id order and returns the total pool count.
	ListPools(ctx context.Context, offset, limit uint32) ([]*govpool.Pool, uint64, error)

	// GetJoinRequest fetches the pending join request occupying peerID.
	GetJoinRequest(ctx context.Context, poolID uint32, peerID string) (*govpool.JoinRequest, error)

	// ListJoinRequests lists the pending join requests of a pool.
	ListJoinRequests(ctx context.Context, poolID uint32) ([]*govpool.JoinRequest, error)

	// ExportState renders the full committed engine state.
	ExportState(ctx context.Context) (*govpool.StateExport, error)

	// Health reports daemon liveness.
	Health(ctx context.Context) (bool, error)
}

// New creates a new client talking to the govpool endpoint at uri, for
// example "http://127.0.0.1:8644/rpc".
func New(uri string) Client {
	return &client{
		uri:  uri,
		http: &http.Client{},
	}
}

type client struct {
	uri  string
	http *http.Client
}

// send issues one JSON-RPC call. The server reports method failures as
// JSON-RPC errors with a non-2xx status, so the body is decoded before the
// status code is judged.
func (cli *client) send(ctx context.Context, method string, args interface{}, reply interface{}) error {
	body, err := json2.EncodeClientRequest(govpool.Name+"."+method, args)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cli.uri, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cli.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			return rpcErr
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %q: %s", resp.Status, err)
		}
		return err
	}
	return nil
}

func (cli *client) CreateProposal(ctx context.Context, typ govpool.ProposalType, target common.Address, role govpool.RoleID, amount govpool.Amount, token common.Address, actor common.Address) (*govpool.Proposal, error) {
	resp := new(govpool.ProposalReply)
	err := cli.send(ctx, "createProposal", &govpool.CreateProposalArgs{
		Type:   typ,
		Target: target,
		Role:   role,
		Amount: amount,
		Token:  token,
		Actor:  actor,
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Proposal, nil
}

func (cli *client) ApproveProposal(ctx context.Context, id common.Hash, actor common.Address) (*govpool.Proposal, error) {
	resp := new(govpool.ProposalReply)
	err := cli.send(ctx, "approveProposal", &govpool.ProposalIDArgs{ID: id, Actor: actor}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Proposal, nil
}

func (cli *client) ExecuteProposal(ctx context.Context, id common.Hash, actor common.Address) (*govpool.Proposal, error) {
	resp := new(govpool.ProposalReply)
	err := cli.send(ctx, "executeProposal", &govpool.ProposalIDArgs{ID: id, Actor: actor}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Proposal, nil
}

func (cli *client) GetProposal(ctx context.Context, id common.Hash) (*govpool.Proposal, error) {
	resp := new(govpool.ProposalReply)
	err := cli.send(ctx, "getProposal", &govpool.GetProposalArgs{ID: id}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Proposal, nil
}

func (cli *client) PendingProposals(ctx context.Context, offset, limit uint32) ([]*govpool.Proposal, uint64, uint64, error) {
	resp := new(govpool.PendingProposalsReply)
	err := cli.send(ctx, "pendingProposals", &govpool.PageArgs{
		Offset: cjson.Uint32(offset),
		Limit:  cjson.Uint32(limit),
	}, resp)
	if err != nil {
		return nil, 0, 0, err
	}
	return resp.Proposals, uint64(resp.Live), uint64(resp.Total), nil
}

func (cli *client) SetRoleQuorum(ctx context.Context, role govpool.RoleID, quorum uint32, actor common.Address) error {
	resp := new(govpool.SuccessReply)
	return cli.send(ctx, "setRoleQuorum", &govpool.SetRoleQuorumArgs{
		Role:   role,
		Quorum: cjson.Uint32(quorum),
		Actor:  actor,
	}, resp)
}

func (cli *client) SetAccountFlag(ctx context.Context, account common.Address, flagged bool, actor common.Address) error {
	resp := new(govpool.SuccessReply)
	return cli.send(ctx, "setAccountFlag", &govpool.SetAccountFlagArgs{
		Account: account,
		Flagged: flagged,
		Actor:   actor,
	}, resp)
}

func (cli *client) HasRole(ctx context.Context, role govpool.RoleID, account common.Address) (bool, error) {
	resp := new(govpool.HasRoleReply)
	err := cli.send(ctx, "hasRole", &govpool.HasRoleArgs{Role: role, Account: account}, resp)
	if err != nil {
		return false, err
	}
	return resp.HasRole, nil
}

func (cli *client) RoleQuorum(ctx context.Context, role govpool.RoleID) (uint32, error) {
	resp := new(govpool.RoleQuorumReply)
	err := cli.send(ctx, "roleQuorum", &govpool.RoleQuorumArgs{Role: role}, resp)
	if err != nil {
		return 0, err
	}
	return uint32(resp.Quorum), nil
}

func (cli *client) Whitelisted(ctx context.Context, token, account common.Address) (govpool.Amount, bool, error) {
	resp := new(govpool.WhitelistedReply)
	err := cli.send(ctx, "whitelisted", &govpool.WhitelistedArgs{Token: token, Account: account}, resp)
	if err != nil {
		return govpool.Amount{}, false, err
	}
	return resp.Amount, resp.Whitelisted, nil
}

func (cli *client) UpgradePlan(ctx context.Context) (*govpool.UpgradePlan, error) {
	resp := new(govpool.UpgradePlanReply)
	if err := cli.send(ctx, "upgradePlan", &struct{}{}, resp); err != nil {
		return nil, err
	}
	return resp.Plan, nil
}

func (cli *client) CreatePool(ctx context.Context, name, region string, requiredTokens govpool.Amount, maxChallengeResponsePeriod, minPingTime, maxMembers uint32, peerID string, actor common.Address) (*govpool.Pool, error) {
	resp := new(govpool.PoolReply)
	err := cli.send(ctx, "createPool", &govpool.CreatePoolArgs{
		Name:                       name,
		Region:                     region,
		RequiredTokens:             requiredTokens,
		MaxMembers:                 cjson.Uint32(maxMembers),
		MaxChallengeResponsePeriod: cjson.Uint32(maxChallengeResponsePeriod),
		MinPingTime:                cjson.Uint32(minPingTime),
		PeerID:                     peerID,
		Actor:                      actor,
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Pool, nil
}

func (cli *client) JoinPool(ctx context.Context, poolID uint32, peerID string, actor common.Address) (*govpool.JoinRequest, error) {
	resp := new(govpool.JoinRequestReply)
	err := cli.send(ctx, "joinPool", &govpool.PoolPeerArgs{
		PoolID: cjson.Uint32(poolID),
		PeerID: peerID,
		Actor:  actor,
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Request, nil
}

func (cli *client) VoteJoinRequest(ctx context.Context, poolID uint32, peerID, voterPeerID string, approve bool, actor common.Address) (*govpool.JoinRequest, error) {
	resp := new(govpool.JoinRequestReply)
	err := cli.send(ctx, "voteJoinRequest", &govpool.VoteJoinRequestArgs{
		PoolID:      cjson.Uint32(poolID),
		PeerID:      peerID,
		VoterPeerID: voterPeerID,
		Approve:     approve,
		Actor:       actor,
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Request, nil
}

func (cli *client) CancelJoinRequest(ctx context.Context, poolID uint32, peerID string, actor common.Address) error {
	resp := new(govpool.SuccessReply)
	return cli.send(ctx, "cancelJoinRequest", &govpool.PoolPeerArgs{
		PoolID: cjson.Uint32(poolID),
		PeerID: peerID,
		Actor:  actor,
	}, resp)
}

func (cli *client) RemoveMember(ctx context.Context, poolID uint32, peerID string, actor common.Address) (*govpool.Member, error) {
	resp := new(govpool.MemberReply)
	err := cli.send(ctx, "removeMember", &govpool.PoolPeerArgs{
		PoolID: cjson.Uint32(poolID),
		PeerID: peerID,
		Actor:  actor,
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Member, nil
}

func (cli *client) RemoveMembersBatch(ctx context.Context, poolID, count uint32, actor common.Address) ([]govpool.Member, error) {
	resp := new(govpool.RemoveMembersBatchReply)
	err := cli.send(ctx, "removeMembersBatch", &govpool.RemoveMembersBatchArgs{
		PoolID: cjson.Uint32(poolID),
		Count:  cjson.Uint32(count),
		Actor:  actor,
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Removed, nil
}

func (cli *client) DeletePool(ctx context.Context, poolID uint32, actor common.Address) error {
	resp := new(govpool.SuccessReply)
	return cli.send(ctx, "deletePool", &govpool.PoolIDArgs{
		PoolID: cjson.Uint32(poolID),
		Actor:  actor,
	}, resp)
}

func (cli *client) GetPool(ctx context.Context, poolID uint32) (*govpool.Pool, error) {
	resp := new(govpool.PoolReply)
	err := cli.send(ctx, "getPool", &govpool.PoolIDArgs{PoolID: cjson.Uint32(poolID)}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Pool, nil
}

func (cli *client) ListPools(ctx context.Context, offset, limit uint32) ([]*govpool.Pool, uint64, error) {
	resp := new(govpool.ListPoolsReply)
	err := cli.send(ctx, "listPools", &govpool.PageArgs{
		Offset: cjson.Uint32(offset),
		Limit:  cjson.Uint32(limit),
	}, resp)
	if err != nil {
		return nil, 0, err
	}
	return resp.Pools, uint64(resp.Total), nil
}

func (cli *client) GetJoinRequest(ctx context.Context, poolID uint32, peerID string) (*govpool.JoinRequest, error) {
	resp := new(govpool.JoinRequestReply)
	err := cli.send(ctx, "getJoinRequest", &govpool.PoolPeerArgs{
		PoolID: cjson.Uint32(poolID),
		PeerID: peerID,
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Request, nil
}

func (cli *client) ListJoinRequests(ctx context.Context, poolID uint32) ([]*govpool.JoinRequest, error) {
	resp := new(govpool.ListJoinRequestsReply)
	err := cli.send(ctx, "listJoinRequests", &govpool.PoolIDArgs{PoolID: cjson.Uint32(poolID)}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

func (cli *client) ExportState(ctx context.Context) (*govpool.StateExport, error) {
	resp := new(govpool.ExportStateReply)
	if err := cli.send(ctx, "exportState", &struct{}{}, resp); err != nil {
		return nil, err
	}
	return resp.State, nil
}

func (cli *client) Health(ctx context.Context) (bool, error) {
	resp := new(govpool.HealthReply)
	if err := cli.send(ctx, "health", &struct{}{}, resp); err != nil {
		return false, err
	}
	return resp.Healthy, nil
}
