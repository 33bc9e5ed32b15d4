// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Genesis seeds the registry on an empty database. Later starts ignore it.
type Genesis struct {
	// Admins receive the admin role. At least one is required; with no
	// admins no proposal could ever be created.
	Admins []common.Address `json:"admins"`
	// Quorums maps role names to their execution quorum.
	Quorums map[string]uint32 `json:"quorums,omitempty"`
	// Flagged pre-seeds the forfeiture flag.
	Flagged []common.Address `json:"flagged,omitempty"`
	// Config overrides the engine parameters. The daemon applies it when
	// present; the engine itself only validates it.
	Config *Config `json:"config,omitempty"`
}

// DefaultGenesis returns a minimal single-admin genesis.
func DefaultGenesis(admin common.Address) *Genesis {
	return &Genesis{Admins: []common.Address{admin}}
}

// ParseGenesis decodes and validates a JSON genesis document.
func ParseGenesis(b []byte) (*Genesis, error) {
	g := &Genesis{}
	if err := json.Unmarshal(b, g); err != nil {
		return nil, fmt.Errorf("%w: genesis: %s", ErrInvalidParameter, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Bytes renders the genesis document back to JSON.
func (g *Genesis) Bytes() ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

func (g *Genesis) Validate() error {
	if len(g.Admins) == 0 {
		return fmt.Errorf("%w: genesis needs at least one admin", ErrInvalidParameter)
	}
	seen := make(map[common.Address]struct{}, len(g.Admins))
	for _, admin := range g.Admins {
		if admin == (common.Address{}) {
			return fmt.Errorf("%w: zero admin address", ErrInvalidTarget)
		}
		if _, ok := seen[admin]; ok {
			return fmt.Errorf("%w: duplicate admin %s", ErrInvalidParameter, admin.Hex())
		}
		seen[admin] = struct{}{}
	}
	for name, quorum := range g.Quorums {
		if _, ok := RoleFromName(name); !ok {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidRole, name)
		}
		if quorum == 1 {
			return fmt.Errorf("%w: role %q quorum 1 defeats multi-approval", ErrInvalidQuorum, name)
		}
	}
	for _, account := range g.Flagged {
		if account == (common.Address{}) {
			return fmt.Errorf("%w: zero flagged address", ErrInvalidTarget)
		}
	}
	if g.Config != nil {
		if err := g.Config.Validate(); err != nil {
			return fmt.Errorf("genesis config: %w", err)
		}
	}
	return nil
}

// initGenesis applies the genesis document if the database is empty,
// committing the seeded registry and the initialized marker as one batch.
func (e *Engine) initGenesis(genesis *Genesis) error {
	s := e.newState()
	initialized, err := s.IsInitialized()
	if err != nil {
		s.Abort()
		return err
	}
	if initialized {
		s.Abort()
		return nil
	}
	if genesis == nil {
		s.Abort()
		return fmt.Errorf("%w: empty database needs a genesis document", ErrInvalidParameter)
	}
	if err := genesis.Validate(); err != nil {
		s.Abort()
		return err
	}

	for _, admin := range genesis.Admins {
		if err := s.GrantRole(RoleAdmin, admin); err != nil {
			s.Abort()
			return err
		}
	}
	for name, quorum := range genesis.Quorums {
		role, _ := RoleFromName(name)
		if err := s.SetRoleQuorum(role, quorum); err != nil {
			s.Abort()
			return err
		}
	}
	for _, account := range genesis.Flagged {
		if err := s.SetFlag(account, true); err != nil {
			s.Abort()
			return err
		}
	}
	if err := s.SetInitialized(); err != nil {
		s.Abort()
		return err
	}
	if err := s.Commit(); err != nil {
		s.Abort()
		return err
	}

	e.log.Info("applied genesis",
		"admins", len(genesis.Admins),
		"quorums", len(genesis.Quorums),
		"flagged", len(genesis.Flagged),
	)
	return nil
}

// StateExport is the JSON snapshot ExportState produces.
type StateExport struct {
	// Roles maps role names to the accounts holding them.
	Roles map[string][]common.Address `json:"roles"`
	// Quorums maps role names to their configured quorum.
	Quorums map[string]uint32 `json:"quorums"`
	// Whitelist lists every (token, account) grant.
	Whitelist []WhitelistEntry `json:"whitelist,omitempty"`
	// Flagged lists every account carrying the forfeiture flag.
	Flagged []common.Address `json:"flagged,omitempty"`
	// UpgradePlan is the recorded upgrade target, nil if none executed.
	UpgradePlan *UpgradePlan `json:"upgradePlan,omitempty"`
	// Proposals holds every stored proposal record, executed ones included,
	// in id order.
	Proposals []*Proposal `json:"proposals,omitempty"`
	// Pools holds every pool record in id order.
	Pools []*Pool `json:"pools,omitempty"`
	// JoinRequests holds the pending join requests of every pool.
	JoinRequests []*JoinRequest `json:"joinRequests,omitempty"`
}

// ExportState renders the committed engine state as one snapshot. It reads
// without locks, so a snapshot taken while operations run reflects some
// serializable interleaving of them.
func (e *Engine) ExportState() (*StateExport, error) {
	s := e.newState()

	export := &StateExport{
		Roles:   make(map[string][]common.Address),
		Quorums: make(map[string]uint32),
	}

	for _, name := range RoleNames() {
		role, _ := RoleFromName(name)
		members, err := s.RoleMembers(role)
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			export.Roles[name] = members
		}
	}

	quorums, err := s.Quorums()
	if err != nil {
		return nil, err
	}
	for role, quorum := range quorums {
		export.Quorums[role.String()] = quorum
	}

	if export.Whitelist, err = s.WhitelistEntries(); err != nil {
		return nil, err
	}
	if export.Flagged, err = s.FlaggedAccounts(); err != nil {
		return nil, err
	}
	if export.UpgradePlan, err = e.UpgradePlan(); err != nil {
		return nil, err
	}

	propIt := s.ProposalIterator()
	defer propIt.Release()
	for propIt.Next() {
		p := Proposal{}
		parsedVersion, err := Codec.Unmarshal(propIt.Value(), &p)
		if err != nil {
			return nil, err
		}
		if parsedVersion != CodecVersion {
			return nil, errProposalWrongVersion
		}
		export.Proposals = append(export.Proposals, &p)
	}
	if err := propIt.Error(); err != nil {
		return nil, err
	}

	poolIt := s.PoolIterator()
	defer poolIt.Release()
	for poolIt.Next() {
		p := Pool{}
		parsedVersion, err := Codec.Unmarshal(poolIt.Value(), &p)
		if err != nil {
			return nil, err
		}
		if parsedVersion != CodecVersion {
			return nil, errPoolWrongVersion
		}
		export.Pools = append(export.Pools, &p)

		reqs, err := e.requestsOf(s, p.ID)
		if err != nil {
			return nil, err
		}
		export.JoinRequests = append(export.JoinRequests, reqs...)
	}
	if err := poolIt.Error(); err != nil {
		return nil, err
	}

	return export, nil
}

// requestsOf collects the pending join requests of one pool.
func (e *Engine) requestsOf(s State, poolID uint32) ([]*JoinRequest, error) {
	it := s.RequestIterator(poolID)
	defer it.Release()

	var reqs []*JoinRequest
	for it.Next() {
		r := JoinRequest{}
		parsedVersion, err := Codec.Unmarshal(it.Value(), &r)
		if err != nil {
			return nil, err
		}
		if parsedVersion != CodecVersion {
			return nil, errPoolWrongVersion
		}
		reqs = append(reqs, &r)
	}
	return reqs, it.Error()
}
