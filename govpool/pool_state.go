// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"encoding/binary"
	"errors"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ethereum/go-ethereum/common"
)

var (
	errPoolWrongVersion = errors.New("wrong version")

	// Sub-buckets of the pool database.
	poolRecordPrefix  = []byte("record")
	poolRequestPrefix = []byte("request")
	poolPeerPrefix    = []byte("peer")

	_ PoolState = (*poolState)(nil)
)

// peerClaim ties a peer id to the single pool slot it occupies, either as a
// member or as a pending join request. It backs the global peer uniqueness
// invariant and the peer-id lookups used by voting.
type peerClaim struct {
	PeerID  string         `serialize:"true"`
	PoolID  uint32         `serialize:"true"`
	Account common.Address `serialize:"true"`
	// Member is true for membership claims, false for pending requests.
	Member bool `serialize:"true"`
}

// PoolState provides storage of pool records, join requests keyed by
// (pool, account), and the global peer-id claim index.
type PoolState interface {
	GetPool(id uint32) (*Pool, error)
	PutPool(p *Pool) error
	DeletePool(id uint32) error
	// PoolIterator walks pool records in ascending id order. The caller must
	// release it.
	PoolIterator() database.Iterator

	GetJoinRequest(poolID uint32, account common.Address) (*JoinRequest, error)
	PutJoinRequest(r *JoinRequest) error
	DeleteJoinRequest(poolID uint32, account common.Address) error
	// RequestIterator walks the join requests of one pool. The caller must
	// release it.
	RequestIterator(poolID uint32) database.Iterator

	GetPeerClaim(peerID string) (*peerClaim, error)
	PutPeerClaim(c *peerClaim) error
	DeletePeerClaim(peerID string) error
}

type poolState struct {
	recordDB  database.Database
	requestDB database.Database
	peerDB    database.Database
}

func NewPoolState(db database.Database) PoolState {
	return &poolState{
		recordDB:  prefixdb.New(poolRecordPrefix, db),
		requestDB: prefixdb.New(poolRequestPrefix, db),
		peerDB:    prefixdb.New(poolPeerPrefix, db),
	}
}

func poolKey(id uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, id)
	return key
}

func requestKey(poolID uint32, account common.Address) []byte {
	key := make([]byte, 4+common.AddressLength)
	binary.BigEndian.PutUint32(key, poolID)
	copy(key[4:], account[:])
	return key
}

func (s *poolState) GetPool(id uint32) (*Pool, error) {
	raw, err := s.recordDB.Get(poolKey(id))
	if err == database.ErrNotFound {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}

	p := Pool{}
	parsedVersion, err := Codec.Unmarshal(raw, &p)
	if err != nil {
		return nil, err
	}
	if parsedVersion != CodecVersion {
		return nil, errPoolWrongVersion
	}
	return &p, nil
}

func (s *poolState) PutPool(p *Pool) error {
	raw, err := Codec.Marshal(CodecVersion, p)
	if err != nil {
		return err
	}
	return s.recordDB.Put(poolKey(p.ID), raw)
}

func (s *poolState) DeletePool(id uint32) error {
	return s.recordDB.Delete(poolKey(id))
}

func (s *poolState) PoolIterator() database.Iterator {
	return s.recordDB.NewIterator()
}

func (s *poolState) GetJoinRequest(poolID uint32, account common.Address) (*JoinRequest, error) {
	raw, err := s.requestDB.Get(requestKey(poolID, account))
	if err == database.ErrNotFound {
		return nil, ErrNoActiveRequest
	}
	if err != nil {
		return nil, err
	}

	r := JoinRequest{}
	parsedVersion, err := Codec.Unmarshal(raw, &r)
	if err != nil {
		return nil, err
	}
	if parsedVersion != CodecVersion {
		return nil, errPoolWrongVersion
	}
	return &r, nil
}

func (s *poolState) PutJoinRequest(r *JoinRequest) error {
	raw, err := Codec.Marshal(CodecVersion, r)
	if err != nil {
		return err
	}
	return s.requestDB.Put(requestKey(r.PoolID, r.Account), raw)
}

func (s *poolState) DeleteJoinRequest(poolID uint32, account common.Address) error {
	return s.requestDB.Delete(requestKey(poolID, account))
}

func (s *poolState) RequestIterator(poolID uint32) database.Iterator {
	return s.requestDB.NewIteratorWithPrefix(poolKey(poolID))
}

func (s *poolState) GetPeerClaim(peerID string) (*peerClaim, error) {
	raw, err := s.peerDB.Get([]byte(peerID))
	if err != nil {
		return nil, err
	}

	c := peerClaim{}
	parsedVersion, err := Codec.Unmarshal(raw, &c)
	if err != nil {
		return nil, err
	}
	if parsedVersion != CodecVersion {
		return nil, errPoolWrongVersion
	}
	return &c, nil
}

func (s *poolState) PutPeerClaim(c *peerClaim) error {
	raw, err := Codec.Marshal(CodecVersion, c)
	if err != nil {
		return err
	}
	return s.peerDB.Put([]byte(c.PeerID), raw)
}

func (s *poolState) DeletePeerClaim(peerID string) error {
	return s.peerDB.Delete([]byte(peerID))
}
