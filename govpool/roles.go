// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RoleID is the 32-byte identifier of a governance role, derived as the
// keccak-256 hash of the role's canonical name.
type RoleID common.Hash

var (
	roleNames = map[RoleID]string{}
	roleIDs   = map[string]RoleID{}

	// RoleAdmin holds the governance capability set: creating, approving,
	// and executing proposals, plus the administrative membership overrides.
	RoleAdmin = registerRole("admin")
	// RolePoolCreator marks accounts allowed to create storage pools when
	// pool creation is restricted.
	RolePoolCreator = registerRole("pool_creator")
	// RoleUpgrader marks accounts the surrounding system lets act on
	// recorded upgrade plans.
	RoleUpgrader = registerRole("upgrader")
	// RoleBridge marks the bridge endpoints recognized by collaborators.
	RoleBridge = registerRole("bridge")
)

func registerRole(name string) RoleID {
	id := RoleID(crypto.Keccak256Hash([]byte(name)))
	if _, ok := roleNames[id]; ok {
		panic(fmt.Sprintf("role %q registered twice", name))
	}
	roleNames[id] = name
	roleIDs[name] = id
	return id
}

// RoleFromName resolves a canonical role name to its identifier.
func RoleFromName(name string) (RoleID, bool) {
	id, ok := roleIDs[name]
	return id, ok
}

// RoleNames returns the canonical names of all registered roles, sorted.
func RoleNames() []string {
	names := make([]string, 0, len(roleIDs))
	for name := range roleIDs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Recognized reports whether the role was registered under a canonical name.
func (r RoleID) Recognized() bool {
	_, ok := roleNames[r]
	return ok
}

// Name returns the canonical name of the role, or "" if unrecognized.
func (r RoleID) Name() string {
	return roleNames[r]
}

// IsZero reports whether the role is unset.
func (r RoleID) IsZero() bool {
	return r == RoleID{}
}

// Hex returns the role identifier in 0x-prefixed hex.
func (r RoleID) Hex() string {
	return common.Hash(r).Hex()
}

// String returns the canonical name when known and the hex form otherwise.
func (r RoleID) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return r.Hex()
}

func (r RoleID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts either a canonical role name or a 0x-prefixed
// 32-byte hex identifier.
func (r *RoleID) UnmarshalText(b []byte) error {
	s := string(b)
	if s == "" {
		*r = RoleID{}
		return nil
	}
	if id, ok := roleIDs[s]; ok {
		*r = id
		return nil
	}
	var h common.Hash
	if err := h.UnmarshalText(b); err != nil {
		return fmt.Errorf("%w: role %q", ErrInvalidParameter, s)
	}
	*r = RoleID(h)
	return nil
}
