// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// lockTable hands out one mutex per record key so operations on the same
// record serialize while operations on distinct records run in parallel.
// Entries are reference counted and dropped once the last holder releases.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	refs int
	mu   sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

// lock acquires the mutex for key and returns its release func. The release
// func must be called exactly once.
func (t *lockTable) lock(key string) func() {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &lockEntry{}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.entries, key)
		}
		t.mu.Unlock()
	}
}

// Record lock keys. Governance operations lock the proposal's conflict key
// rather than its id, so a create racing an execute for the same dedup slot
// serializes with it. Membership operations lock the pool id; operations
// that touch the global peer index additionally take peersLockKey, always
// after the pool lock.
const (
	poolCounterLockKey = "pool_counter"
	peersLockKey       = "peers"
	registryLockKey    = "registry"
)

func proposalLockKey(conflict common.Hash) string {
	return "k/" + conflict.Hex()
}

func poolLockKey(id uint32) string {
	return "pool/" + strconv.FormatUint(uint64(id), 10)
}
