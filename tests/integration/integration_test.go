// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// integration drives a full engine through the JSON-RPC surface, with the
// service mounted on an in-process HTTP server and the Go client on the
// other end.
package integration_test

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/database/manager"
	"github.com/ava-labs/avalanchego/version"
	"github.com/ethereum/go-ethereum/common"
	ginkgo "github.com/onsi/ginkgo/v2"
	"github.com/onsi/ginkgo/v2/formatter"
	"github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/govpool/client"
	"github.com/ava-labs/govpool/govpool"
)

func TestIntegration(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "govpool integration test suites")
}

var requestTimeout time.Duration

func init() {
	flag.DurationVar(
		&requestTimeout,
		"request-timeout",
		30*time.Second,
		"timeout for individual RPC calls",
	)
}

var (
	adminOne = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	adminTwo = common.HexToAddress("0x0000000000000000000000000000000000000a02")

	stakingToken = common.HexToAddress("0x00000000000000000000000000000000000057a4")
)

var (
	engine *govpool.Engine
	ledger *govpool.MemoryLedger
	server *httptest.Server
	cli    client.Client

	cfg govpool.Config

	// now is the frozen engine time. Tests only ever move it forward.
	now time.Time
)

func advance(d time.Duration) {
	now = now.Add(d)
	engine.Clock().Set(now)
}

func ctx() context.Context {
	c, cancel := context.WithTimeout(context.Background(), requestTimeout)
	ginkgo.DeferCleanup(cancel)
	return c
}

var _ = ginkgo.BeforeSuite(func() {
	genesis := govpool.DefaultGenesis(adminOne)
	genesis.Admins = append(genesis.Admins, adminTwo)
	genesis.Quorums = map[string]uint32{govpool.RoleAdmin.String(): 2}

	cfg = govpool.DefaultConfig()
	cfg.StakingToken = stakingToken

	ledger = govpool.NewMemoryLedger()
	dbManager := manager.NewMemDB(version.DefaultVersion1_0_0)

	var err error
	engine, err = govpool.New(cfg, dbManager.Current().Database, genesis, ledger, nil, nil, nil)
	gomega.Ω(err).Should(gomega.BeNil())

	now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.Clock().Set(now)

	handler, err := govpool.NewHandler(engine)
	gomega.Ω(err).Should(gomega.BeNil())

	server = httptest.NewServer(handler)
	cli = client.New(server.URL)
	outf("{{green}}govpool RPC server:{{/}} %q\n", server.URL)
})

var _ = ginkgo.AfterSuite(func() {
	server.Close()
})

var _ = ginkgo.Describe("[Health]", func() {
	ginkgo.It("reports healthy after genesis", func() {
		healthy, err := cli.Health(ctx())
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(healthy).Should(gomega.BeTrue())
	})
})

var _ = ginkgo.Describe("[Governance]", func() {
	target := common.HexToAddress("0x0000000000000000000000000000000000000c01")
	var proposalID common.Hash

	ginkgo.It("rejects proposals from non-admins", func() {
		outsider := common.HexToAddress("0x0000000000000000000000000000000000000c99")
		_, err := cli.CreateProposal(ctx(), govpool.ProposalAddRole, target, govpool.RoleAdmin, govpool.Amount{}, common.Address{}, outsider)
		gomega.Ω(err).ShouldNot(gomega.BeNil())
		gomega.Ω(err.Error()).Should(gomega.ContainSubstring("admin role required"))
	})

	ginkgo.It("creates a proposal with the creator's approval counted", func() {
		p, err := cli.CreateProposal(ctx(), govpool.ProposalAddRole, target, govpool.RoleAdmin, govpool.Amount{}, common.Address{}, adminOne)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(p.Approvals).Should(gomega.Equal(uint32(1)))
		gomega.Ω(p.Status).Should(gomega.Equal(govpool.ProposalStatusPending))
		proposalID = p.ID

		got, err := cli.GetProposal(ctx(), proposalID)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(got.ID).Should(gomega.Equal(proposalID))
	})

	ginkgo.It("rejects a duplicate pending proposal for the same slot", func() {
		_, err := cli.CreateProposal(ctx(), govpool.ProposalAddRole, target, govpool.RoleAdmin, govpool.Amount{}, common.Address{}, adminTwo)
		gomega.Ω(err).ShouldNot(gomega.BeNil())
		gomega.Ω(err.Error()).Should(gomega.ContainSubstring("pending proposal exists"))
	})

	ginkgo.It("holds execution behind the timelock even at quorum", func() {
		p, err := cli.ApproveProposal(ctx(), proposalID, adminTwo)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(p.Approvals).Should(gomega.Equal(uint32(2)))
		gomega.Ω(p.Status).Should(gomega.Equal(govpool.ProposalStatusPending))

		_, err = cli.ExecuteProposal(ctx(), proposalID, adminOne)
		gomega.Ω(err).ShouldNot(gomega.BeNil())
		gomega.Ω(err.Error()).Should(gomega.ContainSubstring("execution delay not met"))
	})

	ginkgo.It("executes once the delay has passed", func() {
		advance(cfg.ExecutionDelay + time.Minute)

		p, err := cli.ExecuteProposal(ctx(), proposalID, adminOne)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(p.Status).Should(gomega.Equal(govpool.ProposalStatusExecuted))

		hasRole, err := cli.HasRole(ctx(), govpool.RoleAdmin, target)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(hasRole).Should(gomega.BeTrue())

		_, err = cli.ExecuteProposal(ctx(), proposalID, adminOne)
		gomega.Ω(err).ShouldNot(gomega.BeNil())
		gomega.Ω(err.Error()).Should(gomega.ContainSubstring("already executed"))
	})
})

var _ = ginkgo.Describe("[Quorum]", func() {
	ginkgo.It("round-trips a quorum update", func() {
		err := cli.SetRoleQuorum(ctx(), govpool.RoleBridge, 3, adminOne)
		gomega.Ω(err).Should(gomega.BeNil())

		q, err := cli.RoleQuorum(ctx(), govpool.RoleBridge)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(q).Should(gomega.Equal(uint32(3)))
	})

	ginkgo.It("rejects a quorum of one", func() {
		err := cli.SetRoleQuorum(ctx(), govpool.RoleBridge, 1, adminOne)
		gomega.Ω(err).ShouldNot(gomega.BeNil())
		gomega.Ω(err.Error()).Should(gomega.ContainSubstring("quorum"))
	})
})

var _ = ginkgo.Describe("[Pools]", func() {
	creator := common.HexToAddress("0x0000000000000000000000000000000000000d01")
	joiner := common.HexToAddress("0x0000000000000000000000000000000000000d02")
	quitter := common.HexToAddress("0x0000000000000000000000000000000000000d03")
	var poolID uint32

	ginkgo.It("creates a pool with the creator as first member", func() {
		p, err := cli.CreatePool(ctx(), "atlas", "eu-west", govpool.AmountFromUint64(100), 3600, 250, 4, "peer-creator", creator)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(p.Members).Should(gomega.HaveLen(1))
		gomega.Ω(p.Members[0].Account).Should(gomega.Equal(creator))
		poolID = p.ID
	})

	ginkgo.It("locks the stake when a join request is submitted", func() {
		_, err := cli.JoinPool(ctx(), poolID, "peer-joiner", joiner)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(ledger.Locked(joiner, stakingToken)).Should(gomega.Equal(big.NewInt(100)))
	})

	ginkgo.It("admits on the creator's approval", func() {
		req, err := cli.VoteJoinRequest(ctx(), poolID, "peer-joiner", "peer-creator", true, creator)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(req.Status).Should(gomega.Equal(govpool.RequestStatusApproved))

		p, err := cli.GetPool(ctx(), poolID)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(p.Members).Should(gomega.HaveLen(2))
		gomega.Ω(p.PendingRequests).Should(gomega.Equal(uint32(0)))

		// The stake stays locked for the lifetime of the membership.
		gomega.Ω(ledger.Locked(joiner, stakingToken)).Should(gomega.Equal(big.NewInt(100)))
	})

	ginkgo.It("releases the stake when a request is cancelled", func() {
		_, err := cli.JoinPool(ctx(), poolID, "peer-quitter", quitter)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(ledger.Locked(quitter, stakingToken)).Should(gomega.Equal(big.NewInt(100)))

		err = cli.CancelJoinRequest(ctx(), poolID, "peer-quitter", quitter)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(ledger.Locked(quitter, stakingToken).Sign()).Should(gomega.BeZero())

		reqs, err := cli.ListJoinRequests(ctx(), poolID)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(reqs).Should(gomega.BeEmpty())
	})

	ginkgo.It("refuses to delete a populated pool", func() {
		err := cli.DeletePool(ctx(), poolID, creator)
		gomega.Ω(err).ShouldNot(gomega.BeNil())
		gomega.Ω(err.Error()).Should(gomega.ContainSubstring("pool has members"))
	})

	ginkgo.It("empties and deletes the pool", func() {
		m, err := cli.RemoveMember(ctx(), poolID, "peer-joiner", creator)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(m.Account).Should(gomega.Equal(joiner))
		gomega.Ω(ledger.Locked(joiner, stakingToken).Sign()).Should(gomega.BeZero())

		removed, err := cli.RemoveMembersBatch(ctx(), poolID, 5, creator)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(removed).Should(gomega.HaveLen(1))

		err = cli.DeletePool(ctx(), poolID, creator)
		gomega.Ω(err).Should(gomega.BeNil())

		_, err = cli.GetPool(ctx(), poolID)
		gomega.Ω(err).ShouldNot(gomega.BeNil())
	})
})

var _ = ginkgo.Describe("[Export]", func() {
	ginkgo.It("renders roles and quorums in the state export", func() {
		state, err := cli.ExportState(ctx())
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(state.Roles[govpool.RoleAdmin.String()]).Should(gomega.ContainElement(adminOne))
		gomega.Ω(state.Quorums[govpool.RoleAdmin.String()]).Should(gomega.Equal(uint32(2)))
	})
})

var _ = ginkgo.Describe("[Load]", func() {
	ginkgo.It("absorbs concurrent proposal creation", func() {
		const (
			workers   = 8
			perWorker = 16
		)

		_, _, before, err := cli.PendingProposals(ctx(), 0, 1)
		gomega.Ω(err).Should(gomega.BeNil())

		g, gctx := errgroup.WithContext(context.Background())
		for w := 0; w < workers; w++ {
			w := w
			g.Go(func() error {
				defer ginkgo.GinkgoRecover()

				for i := 0; i < perWorker; i++ {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					target := common.BigToAddress(big.NewInt(int64(0xb0000 + w*perWorker + i)))
					if _, err := cli.CreateProposal(gctx, govpool.ProposalAddRole, target, govpool.RoleBridge, govpool.Amount{}, common.Address{}, adminOne); err != nil {
						return err
					}
				}
				return nil
			})
		}
		gomega.Ω(g.Wait()).Should(gomega.BeNil())

		_, _, after, err := cli.PendingProposals(ctx(), 0, 1)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(after - before).Should(gomega.Equal(uint64(workers * perWorker)))
	})
})

// Outputs to stdout.
//
// e.g.,
//
//	outf("{{green}}{{bold}}hi there %q{{/}}", "aa")
//
// ref.
// https://github.com/onsi/ginkgo/blob/v2.0.0/formatter/formatter.go#L52-L73
func outf(format string, args ...interface{}) {
	s := formatter.F(format, args...)
	fmt.Fprint(formatter.ColorableStdOut, s)
}
