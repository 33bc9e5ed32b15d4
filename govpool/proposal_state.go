// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"encoding/binary"
	"errors"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ethereum/go-ethereum/common"
)

var (
	errProposalWrongVersion = errors.New("wrong version")

	// Sub-buckets of the proposal database.
	proposalRecordPrefix = []byte("record")
	proposalKeyPrefix    = []byte("key")
	proposalTimePrefix   = []byte("time")

	_ ProposalState = (*proposalState)(nil)
)

// ProposalState provides storage of proposal records plus two indexes: the
// conflict index mapping a dedup slot to the pending proposal occupying it,
// and the pending index ordering pending proposals by creation time.
type ProposalState interface {
	GetProposal(id common.Hash) (*Proposal, error)
	PutProposal(p *Proposal) error
	// ProposalIterator walks every stored proposal record, executed ones
	// included. The caller must release it.
	ProposalIterator() database.Iterator

	PendingIDForKey(key common.Hash) (common.Hash, error)
	SetPendingKey(key common.Hash, id common.Hash) error
	DeletePendingKey(key common.Hash) error

	AddPendingIndex(createdAt int64, id common.Hash) error
	DeletePendingIndex(createdAt int64, id common.Hash) error
	// PendingIterator walks the pending index in creation-time order. The
	// caller must release it.
	PendingIterator() database.Iterator
}

type proposalState struct {
	// propCache holds executed proposals only. Executed records never
	// change, so cached copies cannot go stale.
	propCache cache.Cacher
	recordDB  database.Database
	keyDB     database.Database
	timeDB    database.Database
}

func NewProposalState(db database.Database, propCache cache.Cacher) ProposalState {
	return &proposalState{
		propCache: propCache,
		recordDB:  prefixdb.New(proposalRecordPrefix, db),
		keyDB:     prefixdb.New(proposalKeyPrefix, db),
		timeDB:    prefixdb.New(proposalTimePrefix, db),
	}
}

func (s *proposalState) GetProposal(id common.Hash) (*Proposal, error) {
	if cached, ok := s.propCache.Get(id); ok {
		return cached.(*Proposal).Clone(), nil
	}

	raw, err := s.recordDB.Get(id[:])
	if err == database.ErrNotFound {
		return nil, ErrProposalNotFound
	}
	if err != nil {
		return nil, err
	}

	p := Proposal{}
	parsedVersion, err := Codec.Unmarshal(raw, &p)
	if err != nil {
		return nil, err
	}
	if parsedVersion != CodecVersion {
		return nil, errProposalWrongVersion
	}

	if p.Status == ProposalStatusExecuted {
		s.propCache.Put(id, p.Clone())
	}
	return &p, nil
}

func (s *proposalState) PutProposal(p *Proposal) error {
	raw, err := Codec.Marshal(CodecVersion, p)
	if err != nil {
		return err
	}
	s.propCache.Evict(p.ID)
	return s.recordDB.Put(p.ID[:], raw)
}

func (s *proposalState) ProposalIterator() database.Iterator {
	return s.recordDB.NewIterator()
}

// PendingIDForKey resolves the conflict index entry for a dedup slot. A
// database.ErrNotFound means the slot is free.
func (s *proposalState) PendingIDForKey(key common.Hash) (common.Hash, error) {
	raw, err := s.keyDB.Get(key[:])
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

func (s *proposalState) SetPendingKey(key common.Hash, id common.Hash) error {
	return s.keyDB.Put(key[:], id[:])
}

func (s *proposalState) DeletePendingKey(key common.Hash) error {
	return s.keyDB.Delete(key[:])
}

// pendingIndexKey orders entries by creation time, with the id as a
// tiebreak so entries never collide.
func pendingIndexKey(createdAt int64, id common.Hash) []byte {
	key := make([]byte, 8+common.HashLength)
	binary.BigEndian.PutUint64(key, uint64(createdAt))
	copy(key[8:], id[:])
	return key
}

// pendingIndexID recovers the proposal id from a pending index key.
func pendingIndexID(key []byte) common.Hash {
	if len(key) != 8+common.HashLength {
		return common.Hash{}
	}
	return common.BytesToHash(key[8:])
}

func (s *proposalState) AddPendingIndex(createdAt int64, id common.Hash) error {
	return s.timeDB.Put(pendingIndexKey(createdAt, id), nil)
}

func (s *proposalState) DeletePendingIndex(createdAt int64, id common.Hash) error {
	return s.timeDB.Delete(pendingIndexKey(createdAt, id))
}

func (s *proposalState) PendingIterator() database.Iterator {
	return s.timeDB.NewIterator()
}
