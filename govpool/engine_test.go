// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package govpool

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/database/manager"
	"github.com/ava-labs/avalanchego/version"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

var (
	testAdmin1 = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	testAdmin2 = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	testAdmin3 = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	testUser1  = common.HexToAddress("0x0000000000000000000000000000000000000101")
	testUser2  = common.HexToAddress("0x0000000000000000000000000000000000000102")
	testUser3  = common.HexToAddress("0x0000000000000000000000000000000000000103")
	testUser4  = common.HexToAddress("0x0000000000000000000000000000000000000104")
	testToken  = common.HexToAddress("0x00000000000000000000000000000000000057a4")

	testStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

// testConfig keeps the default parameters but pins the staking token so
// ledger assertions have a stable denomination.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StakingToken = testToken
	return cfg
}

// testGenesis seeds three admins and an admin quorum of two.
func testGenesis() *Genesis {
	return &Genesis{
		Admins:  []common.Address{testAdmin1, testAdmin2, testAdmin3},
		Quorums: map[string]uint32{RoleAdmin.String(): 2},
	}
}

// newTestEngine builds an engine over a fresh memory database with the
// clock frozen at testStart.
func newTestEngine(cfg Config, genesis *Genesis) (*Engine, *MemoryLedger, *MemorySink, error) {
	ledger := NewMemoryLedger()
	sink := NewMemorySink()
	dbManager := manager.NewMemDB(version.DefaultVersion1_0_0)
	e, err := New(cfg, dbManager.Current().Database, genesis, ledger, sink, nil, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	e.Clock().Set(testStart)
	return e, ledger, sink, nil
}

func TestConfigValidation(t *testing.T) {
	assert := assert.New(t)

	bad := []func(*Config){
		func(c *Config) { c.ProposalTTL = 0 },
		func(c *Config) { c.ProposalTTL = -time.Hour },
		func(c *Config) { c.ExecutionDelay = -time.Second },
		func(c *Config) { c.ExecutionDelay = c.ProposalTTL },
		func(c *Config) { c.MaxPageLimit = 0 },
		func(c *Config) { c.Membership.ApprovePercent = 0 },
		func(c *Config) { c.Membership.ApprovePercent = 101 },
		func(c *Config) { c.Membership.RejectPercent = 0 },
		func(c *Config) { c.Membership.RejectPercent = 150 },
		func(c *Config) { c.Membership.ForfeitMode = ForfeitMode(9) },
	}
	for _, mutate := range bad {
		cfg := testConfig()
		mutate(&cfg)
		err := cfg.Validate()
		assert.ErrorIs(err, ErrInvalidParameter)

		_, _, _, err = newTestEngine(cfg, testGenesis())
		assert.Error(err)
	}

	assert.NoError(testConfig().Validate())
}

func TestEngineRequiresGenesisOnEmptyDB(t *testing.T) {
	assert := assert.New(t)

	_, _, _, err := newTestEngine(testConfig(), nil)
	assert.ErrorIs(err, ErrInvalidParameter)
}

func TestLockTableSerializesSameKey(t *testing.T) {
	assert := assert.New(t)

	locks := newLockTable()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("same")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(32, counter)
	// Entries are reference counted away once released.
	locks.mu.Lock()
	assert.Empty(locks.entries)
	locks.mu.Unlock()
}

func TestConcurrentOperationsOnDistinctRecords(t *testing.T) {
	assert := assert.New(t)

	e, _, _, err := newTestEngine(testConfig(), testGenesis())
	assert.NoError(err)

	const workers = 8

	// Each worker creates its own pool and proposal stream. Distinct
	// records never contend for the same lock, so every operation must
	// succeed regardless of interleaving.
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			creator := common.BigToAddress(big.NewInt(int64(0x5000 + w)))
			peer := "peer-" + creator.Hex()
			if _, err := e.CreatePool("pool", "", AmountFromUint64(10), 60, 50, 4, peer, creator); err != nil {
				return err
			}

			target := common.BigToAddress(big.NewInt(int64(0x6000 + w)))
			if _, err := e.CreateProposal(ProposalAddRole, target, RoleBridge, Amount{}, common.Address{}, testAdmin1); err != nil {
				return err
			}
			return nil
		})
	}
	assert.NoError(g.Wait())

	_, total, err := e.ListPools(0, 0)
	assert.NoError(err)
	assert.Equal(uint64(workers), total)

	_, counts, err := e.PendingProposals(0, 0)
	assert.NoError(err)
	assert.Equal(uint64(workers), counts.Total)
}

func TestConcurrentApprovalsCountOnce(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	e, _, _, err := newTestEngine(cfg, testGenesis())
	assert.NoError(err)

	p, err := e.CreateProposal(ProposalAddRole, testUser1, RoleAdmin, Amount{}, common.Address{}, testAdmin1)
	assert.NoError(err)

	// Two admins race the same approval. Exactly one call per admin may
	// land; the duplicate from the same admin must lose.
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		actor := testAdmin2
		if i%2 == 1 {
			actor = testAdmin3
		}
		g.Go(func() error {
			_, err := e.ApproveProposal(p.ID, actor)
			if err != nil && !errors.Is(err, ErrAlreadyApproved) {
				return err
			}
			return nil
		})
	}
	assert.NoError(g.Wait())

	got, err := e.GetProposal(p.ID)
	assert.NoError(err)
	assert.Equal(uint32(3), got.Approvals)
}
