// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
)

var (
	// These are prefixes for db keys.
	// It's important to set different prefixes for each separate database objects.
	singletonStatePrefix = []byte("singleton")
	proposalStatePrefix  = []byte("proposal")
	poolStatePrefix      = []byte("pool")
	registryStatePrefix  = []byte("registry")

	_ State = (*state)(nil)
)

// State is a wrapper around the singleton, proposal, pool, and registry
// states. Each operation builds one State over the engine's base database,
// stages its mutations in the version layer, and either commits them as one
// atomic batch or aborts, so a failed operation leaves no trace.
type State interface {
	SingletonState
	ProposalState
	PoolState
	RegistryState

	Commit() error
	Abort()
}

type state struct {
	SingletonState
	ProposalState
	PoolState
	RegistryState

	baseDB *versiondb.Database
}

func NewState(db database.Database, proposalCache cache.Cacher) State {
	// create a new baseDB
	baseDB := versiondb.New(db)

	// create prefixed sub databases from baseDB
	singletonDB := prefixdb.New(singletonStatePrefix, baseDB)
	proposalDB := prefixdb.New(proposalStatePrefix, baseDB)
	poolDB := prefixdb.New(poolStatePrefix, baseDB)
	registryDB := prefixdb.New(registryStatePrefix, baseDB)

	// return state with created sub state components
	return &state{
		SingletonState: NewSingletonState(singletonDB),
		ProposalState:  NewProposalState(proposalDB, proposalCache),
		PoolState:      NewPoolState(poolDB),
		RegistryState:  NewRegistryState(registryDB),
		baseDB:         baseDB,
	}
}

// Commit commits pending operations to baseDB
func (s *state) Commit() error {
	return s.baseDB.Commit()
}

// Abort drops pending operations without applying them
func (s *state) Abort() {
	s.baseDB.Abort()
}
