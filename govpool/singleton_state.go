// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"encoding/binary"

	"github.com/ava-labs/avalanchego/database"
)

const (
	IsInitializedKey byte = iota
	LastPoolIDKey
)

var (
	isInitializedKey = []byte{IsInitializedKey}
	lastPoolIDKey    = []byte{LastPoolIDKey}

	_ SingletonState = (*singletonState)(nil)
)

// SingletonState is a thin wrapper around a database to provide
// serialization and de-serialization of process-wide singletons: the
// initialization marker and the monotonic pool id counter.
type SingletonState interface {
	IsInitialized() (bool, error)
	SetInitialized() error

	LastPoolID() (uint32, error)
	SetLastPoolID(uint32) error
}

type singletonState struct {
	singletonDB database.Database
}

func NewSingletonState(db database.Database) SingletonState {
	return &singletonState{
		singletonDB: db,
	}
}

func (s *singletonState) IsInitialized() (bool, error) {
	return s.singletonDB.Has(isInitializedKey)
}

func (s *singletonState) SetInitialized() error {
	return s.singletonDB.Put(isInitializedKey, nil)
}

// LastPoolID returns the most recently assigned pool id, zero if no pool was
// ever created.
func (s *singletonState) LastPoolID() (uint32, error) {
	raw, err := s.singletonDB.Get(lastPoolIDKey)
	switch {
	case err == database.ErrNotFound:
		return 0, nil
	case err != nil:
		return 0, err
	}
	return binary.BigEndian.Uint32(raw), nil
}

func (s *singletonState) SetLastPoolID(id uint32) error {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, id)
	return s.singletonDB.Put(lastPoolIDKey, raw)
}
