// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"errors"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ethereum/go-ethereum/common"
)

var (
	errRegistryWrongVersion = errors.New("wrong version")

	// Sub-buckets of the registry database.
	registryRolePrefix      = []byte("role")
	registryQuorumPrefix    = []byte("quorum")
	registryWhitelistPrefix = []byte("whitelist")
	registryFlagPrefix      = []byte("flag")
	registryUpgradePrefix   = []byte("upgrade")

	upgradePlanKey = []byte("plan")

	_ RegistryState = (*registryState)(nil)
)

// WhitelistEntry is one (token, account) whitelist grant and its amount.
type WhitelistEntry struct {
	Token   common.Address `json:"tokenAddress"`
	Account common.Address `json:"account"`
	Amount  Amount         `json:"amount"`
}

// RegistryState stores the governance outcomes other components consult:
// role grants, per-role quorums, token whitelists, forfeiture flags, and the
// recorded upgrade plan.
type RegistryState interface {
	HasRole(role RoleID, account common.Address) (bool, error)
	GrantRole(role RoleID, account common.Address) error
	RevokeRole(role RoleID, account common.Address) error
	RoleMembers(role RoleID) ([]common.Address, error)

	RoleQuorum(role RoleID) (uint32, error)
	SetRoleQuorum(role RoleID, quorum uint32) error
	Quorums() (map[RoleID]uint32, error)

	Whitelisted(token, account common.Address) (Amount, bool, error)
	SetWhitelisted(token, account common.Address, amount Amount) error
	ClearWhitelisted(token, account common.Address) error
	WhitelistEntries() ([]WhitelistEntry, error)

	Flagged(account common.Address) (bool, error)
	SetFlag(account common.Address, flagged bool) error
	FlaggedAccounts() ([]common.Address, error)

	GetUpgradePlan() (*UpgradePlan, error)
	SetUpgradePlan(p *UpgradePlan) error
}

type registryState struct {
	roleDB      database.Database
	quorumDB    database.Database
	whitelistDB database.Database
	flagDB      database.Database
	upgradeDB   database.Database
}

func NewRegistryState(db database.Database) RegistryState {
	return &registryState{
		roleDB:      prefixdb.New(registryRolePrefix, db),
		quorumDB:    prefixdb.New(registryQuorumPrefix, db),
		whitelistDB: prefixdb.New(registryWhitelistPrefix, db),
		flagDB:      prefixdb.New(registryFlagPrefix, db),
		upgradeDB:   prefixdb.New(registryUpgradePrefix, db),
	}
}

func roleKey(role RoleID, account common.Address) []byte {
	key := make([]byte, common.HashLength+common.AddressLength)
	copy(key, role[:])
	copy(key[common.HashLength:], account[:])
	return key
}

func whitelistKey(token, account common.Address) []byte {
	key := make([]byte, 2*common.AddressLength)
	copy(key, token[:])
	copy(key[common.AddressLength:], account[:])
	return key
}

func (s *registryState) HasRole(role RoleID, account common.Address) (bool, error) {
	return s.roleDB.Has(roleKey(role, account))
}

func (s *registryState) GrantRole(role RoleID, account common.Address) error {
	return s.roleDB.Put(roleKey(role, account), nil)
}

func (s *registryState) RevokeRole(role RoleID, account common.Address) error {
	return s.roleDB.Delete(roleKey(role, account))
}

func (s *registryState) RoleMembers(role RoleID) ([]common.Address, error) {
	it := s.roleDB.NewIteratorWithPrefix(role[:])
	defer it.Release()

	var members []common.Address
	for it.Next() {
		key := it.Key()
		if len(key) != common.HashLength+common.AddressLength {
			continue
		}
		members = append(members, common.BytesToAddress(key[common.HashLength:]))
	}
	return members, it.Error()
}

// RoleQuorum returns the configured quorum for role, zero if unset.
func (s *registryState) RoleQuorum(role RoleID) (uint32, error) {
	raw, err := s.quorumDB.Get(role[:])
	switch {
	case err == database.ErrNotFound:
		return 0, nil
	case err != nil:
		return 0, err
	case len(raw) != 4:
		return 0, errRegistryWrongVersion
	}
	return uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3]), nil
}

// SetRoleQuorum stores the quorum for role. Zero clears the entry, returning
// the role to its unconfigured stop state.
func (s *registryState) SetRoleQuorum(role RoleID, quorum uint32) error {
	if quorum == 0 {
		return s.quorumDB.Delete(role[:])
	}
	raw := []byte{byte(quorum >> 24), byte(quorum >> 16), byte(quorum >> 8), byte(quorum)}
	return s.quorumDB.Put(role[:], raw)
}

func (s *registryState) Quorums() (map[RoleID]uint32, error) {
	it := s.quorumDB.NewIterator()
	defer it.Release()

	quorums := make(map[RoleID]uint32)
	for it.Next() {
		key, value := it.Key(), it.Value()
		if len(key) != common.HashLength || len(value) != 4 {
			continue
		}
		role := RoleID(common.BytesToHash(key))
		quorums[role] = uint32(value[0])<<24 | uint32(value[1])<<16 | uint32(value[2])<<8 | uint32(value[3])
	}
	return quorums, it.Error()
}

func (s *registryState) Whitelisted(token, account common.Address) (Amount, bool, error) {
	raw, err := s.whitelistDB.Get(whitelistKey(token, account))
	switch {
	case err == database.ErrNotFound:
		return Amount{}, false, nil
	case err != nil:
		return Amount{}, false, err
	case len(raw) != AmountLen:
		return Amount{}, false, errRegistryWrongVersion
	}
	var amount Amount
	copy(amount[:], raw)
	return amount, true, nil
}

func (s *registryState) SetWhitelisted(token, account common.Address, amount Amount) error {
	return s.whitelistDB.Put(whitelistKey(token, account), amount[:])
}

func (s *registryState) ClearWhitelisted(token, account common.Address) error {
	return s.whitelistDB.Delete(whitelistKey(token, account))
}

func (s *registryState) WhitelistEntries() ([]WhitelistEntry, error) {
	it := s.whitelistDB.NewIterator()
	defer it.Release()

	var entries []WhitelistEntry
	for it.Next() {
		key, value := it.Key(), it.Value()
		if len(key) != 2*common.AddressLength || len(value) != AmountLen {
			continue
		}
		entry := WhitelistEntry{
			Token:   common.BytesToAddress(key[:common.AddressLength]),
			Account: common.BytesToAddress(key[common.AddressLength:]),
		}
		copy(entry.Amount[:], value)
		entries = append(entries, entry)
	}
	return entries, it.Error()
}

func (s *registryState) Flagged(account common.Address) (bool, error) {
	return s.flagDB.Has(account[:])
}

func (s *registryState) SetFlag(account common.Address, flagged bool) error {
	if !flagged {
		return s.flagDB.Delete(account[:])
	}
	return s.flagDB.Put(account[:], nil)
}

func (s *registryState) FlaggedAccounts() ([]common.Address, error) {
	it := s.flagDB.NewIterator()
	defer it.Release()

	var accounts []common.Address
	for it.Next() {
		key := it.Key()
		if len(key) != common.AddressLength {
			continue
		}
		accounts = append(accounts, common.BytesToAddress(key))
	}
	return accounts, it.Error()
}

// GetUpgradePlan returns the recorded upgrade plan, or database.ErrNotFound
// if no upgrade proposal was ever executed.
func (s *registryState) GetUpgradePlan() (*UpgradePlan, error) {
	raw, err := s.upgradeDB.Get(upgradePlanKey)
	if err != nil {
		return nil, err
	}

	p := UpgradePlan{}
	parsedVersion, err := Codec.Unmarshal(raw, &p)
	if err != nil {
		return nil, err
	}
	if parsedVersion != CodecVersion {
		return nil, errRegistryWrongVersion
	}
	return &p, nil
}

func (s *registryState) SetUpgradePlan(p *UpgradePlan) error {
	raw, err := Codec.Marshal(CodecVersion, p)
	if err != nil {
		return err
	}
	return s.upgradeDB.Put(upgradePlanKey, raw)
}
