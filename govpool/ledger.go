// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the token accounting boundary. The engine calls it for the
// stake side effects of pool membership and for recovery payouts; it never
// implements balance accounting itself. Implementations must be safe for
// concurrent use.
//
// A non-nil error from any call aborts the surrounding operation, so a
// ledger rejection leaves engine state untouched.
type Ledger interface {
	// Lock escrows amount of token for account.
	Lock(account, token common.Address, amount *big.Int) error
	// Release returns previously locked amount of token to account.
	Release(account, token common.Address, amount *big.Int) error
	// Forfeit removes previously locked amount of token from account for
	// good.
	Forfeit(account, token common.Address, amount *big.Int) error
}

type ledgerKey struct {
	account common.Address
	token   common.Address
}

// MemoryLedger is a Ledger that tracks locked stakes in memory. Locking
// always succeeds; releases and forfeits fail when they exceed the locked
// balance. Intended for tests and the simulation harness.
type MemoryLedger struct {
	mu        sync.Mutex
	locked    map[ledgerKey]*big.Int
	forfeited map[common.Address]*big.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		locked:    make(map[ledgerKey]*big.Int),
		forfeited: make(map[common.Address]*big.Int),
	}
}

func (l *MemoryLedger) Lock(account, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative lock amount", ErrInvalidParameter)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{account: account, token: token}
	cur, ok := l.locked[key]
	if !ok {
		cur = new(big.Int)
		l.locked[key] = cur
	}
	cur.Add(cur, amount)
	return nil
}

func (l *MemoryLedger) Release(account, token common.Address, amount *big.Int) error {
	return l.withdraw(account, token, amount, false)
}

func (l *MemoryLedger) Forfeit(account, token common.Address, amount *big.Int) error {
	return l.withdraw(account, token, amount, true)
}

func (l *MemoryLedger) withdraw(account, token common.Address, amount *big.Int, forfeit bool) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative withdraw amount", ErrInvalidParameter)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{account: account, token: token}
	cur, ok := l.locked[key]
	if !ok || cur.Cmp(amount) < 0 {
		return fmt.Errorf("%w: locked balance below withdraw amount", ErrInvalidState)
	}
	cur.Sub(cur, amount)
	if cur.Sign() == 0 {
		delete(l.locked, key)
	}
	if forfeit {
		total, ok := l.forfeited[token]
		if !ok {
			total = new(big.Int)
			l.forfeited[token] = total
		}
		total.Add(total, amount)
	}
	return nil
}

// Locked returns the current locked balance of token for account.
func (l *MemoryLedger) Locked(account, token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locked[ledgerKey{account: account, token: token}]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

// TotalForfeited returns the sum of all forfeited amounts of token.
func (l *MemoryLedger) TotalForfeited(token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total, ok := l.forfeited[token]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(total)
}
