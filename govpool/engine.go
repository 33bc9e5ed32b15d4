// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"fmt"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/utils/timer/mockable"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
)

const proposalCacheSize = 2048

// Operation labels used for metrics and logs.
const (
	opCreateProposal     = "create_proposal"
	opApproveProposal    = "approve_proposal"
	opExecuteProposal    = "execute_proposal"
	opSetRoleQuorum      = "set_role_quorum"
	opSetAccountFlag     = "set_account_flag"
	opCreatePool         = "create_pool"
	opJoinPool           = "join_pool"
	opVoteJoinRequest    = "vote_join_request"
	opCancelJoinRequest  = "cancel_join_request"
	opRemoveMember       = "remove_member"
	opRemoveMembersBatch = "remove_members_batch"
	opDeletePool         = "delete_pool"
)

// Registry is the authorization view collaborators consume. The engine
// implements it over its own stored role and membership tables; grants and
// revokes happen only through executed proposals and resolved join votes.
type Registry interface {
	HasRole(role RoleID, account common.Address) (bool, error)
	IsMember(poolID uint32, account common.Address) (bool, error)
}

var _ Registry = (*Engine)(nil)

// Engine runs the governance proposal lifecycle and the storage-pool
// membership state machine over one key-value database.
//
// Every mutating operation stages its writes in a private version layer
// over the base database while holding the locks of the records it touches,
// then commits the layer as one atomic batch. A failed operation aborts the
// layer, so callers never observe partial effects. Operations on distinct
// records run in parallel; operations on the same record serialize.
type Engine struct {
	cfg    Config
	clock  mockable.Clock
	log    log.Logger
	sink   Sink
	ledger Ledger

	metrics *metrics
	locks   *lockTable

	// db is the base database. It is only written through committed
	// version layers.
	db database.Database

	// proposalCache holds executed proposals, which are immutable. Shared
	// across the per-operation states.
	proposalCache cache.Cacher
}

// New builds an Engine over db and applies genesis on first start. A nil
// ledger gets an in-memory one, a nil sink discards events, a nil logger
// logs to the process root logger, and a nil registerer keeps metrics
// private.
func New(cfg Config, db database.Database, genesis *Genesis, ledger Ledger, sink Sink, logger log.Logger, reg prometheus.Registerer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = log.New("module", "govpool")
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:           cfg,
		log:           logger,
		sink:          sink,
		ledger:        ledger,
		metrics:       m,
		locks:         newLockTable(),
		db:            db,
		proposalCache: &cache.LRU{Size: proposalCacheSize},
	}

	if err := e.initGenesis(genesis); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	return e, nil
}

// Clock returns the engine clock. Tests use it to control time.
func (e *Engine) Clock() *mockable.Clock {
	return &e.clock
}

// Config returns the engine parameters.
func (e *Engine) Config() Config {
	return e.cfg
}

// newState opens a fresh version layer over the base database.
func (e *Engine) newState() State {
	return NewState(e.db, e.proposalCache)
}

// update runs fn against a fresh state while holding the given record locks
// in order. On success the staged writes commit as one batch and the
// returned events go to the metrics and the sink; on failure everything is
// dropped.
func (e *Engine) update(op string, keys []string, fn func(s State, now int64) ([]Event, error)) error {
	for _, key := range keys {
		unlock := e.locks.lock(key)
		defer unlock()
	}

	s := e.newState()
	now := e.clock.Time().Unix()

	evs, err := fn(s, now)
	if err != nil {
		s.Abort()
		e.metrics.observe(op, err)
		e.log.Debug("operation rejected", "op", op, "error", err)
		return err
	}
	if err := s.Commit(); err != nil {
		s.Abort()
		e.metrics.observe(op, err)
		e.log.Error("commit failed", "op", op, "error", err)
		return err
	}

	e.metrics.observe(op, nil)
	e.metrics.observeEvents(evs)
	for _, ev := range evs {
		e.sink.Accept(ev)
	}
	return nil
}

// fail records a rejection that happened before an update transaction
// could start.
func (e *Engine) fail(op string, err error) error {
	e.metrics.observe(op, err)
	e.log.Debug("operation rejected", "op", op, "error", err)
	return err
}

// requireAdmin fails with ErrNotAdmin unless actor holds the admin role.
func (e *Engine) requireAdmin(s State, actor common.Address) error {
	ok, err := s.HasRole(RoleAdmin, actor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrNotAdmin, actor.Hex())
	}
	return nil
}

// HasRole reports whether account holds role, per the committed registry.
func (e *Engine) HasRole(role RoleID, account common.Address) (bool, error) {
	return e.newState().HasRole(role, account)
}

// IsMember reports whether account is on the roster of pool poolID.
func (e *Engine) IsMember(poolID uint32, account common.Address) (bool, error) {
	p, err := e.newState().GetPool(poolID)
	if err == ErrPoolNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsMember(account), nil
}

// Flagged reports whether account carries the forfeiture flag.
func (e *Engine) Flagged(account common.Address) (bool, error) {
	return e.newState().Flagged(account)
}

// Whitelisted returns the whitelisted amount for (token, account) and
// whether an entry exists.
func (e *Engine) Whitelisted(token, account common.Address) (Amount, bool, error) {
	return e.newState().Whitelisted(token, account)
}

// RoleQuorum returns the configured quorum for role, zero if unset.
func (e *Engine) RoleQuorum(role RoleID) (uint32, error) {
	return e.newState().RoleQuorum(role)
}

// UpgradePlan returns the recorded upgrade plan, or nil if no upgrade
// proposal was ever executed.
func (e *Engine) UpgradePlan() (*UpgradePlan, error) {
	p, err := e.newState().GetUpgradePlan()
	if err == database.ErrNotFound {
		return nil, nil
	}
	return p, err
}
