// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/ava-labs/govpool/govpool"
)

var (
	poolName            string
	poolRegion          string
	poolStake           string
	poolMaxMembers      uint32
	poolChallengePeriod uint32
	poolPingTime        uint32
	poolPeerID          string
	poolVoterPeerID     string
	poolReject          bool

	poolOffset uint32
	poolLimit  uint32
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Storage pool membership",
}

var poolCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pool with the actor as creator and first member",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		stake, err := govpool.ParseAmount(poolStake)
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		p, err := newClient().CreatePool(ctx, poolName, poolRegion, stake,
			poolChallengePeriod, poolPingTime, poolMaxMembers, poolPeerID, actor)
		if err != nil {
			return err
		}
		renderPool(p)
		return nil
	},
}

var poolJoinCmd = &cobra.Command{
	Use:   "join <pool-id>",
	Short: "Submit a join request, locking the pool's required stake",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		poolID, err := parsePoolID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		req, err := newClient().JoinPool(ctx, poolID, poolPeerID, actor)
		if err != nil {
			return err
		}
		renderJoinRequest(req)
		return nil
	},
}

var poolVoteCmd = &cobra.Command{
	Use:   "vote <pool-id> <peer-id>",
	Short: "Vote on a pending join request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		poolID, err := parsePoolID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		req, err := newClient().VoteJoinRequest(ctx, poolID, args[1], poolVoterPeerID, !poolReject, actor)
		if err != nil {
			return err
		}
		renderJoinRequest(req)
		return nil
	},
}

var poolCancelCmd = &cobra.Command{
	Use:   "cancel <pool-id> <peer-id>",
	Short: "Withdraw your own pending join request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		poolID, err := parsePoolID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		if err := newClient().CancelJoinRequest(ctx, poolID, args[1], actor); err != nil {
			return err
		}
		fmt.Printf("request %s/%s cancelled, stake released\n", args[0], args[1])
		return nil
	},
}

var poolRemoveCmd = &cobra.Command{
	Use:   "remove <pool-id> <peer-id>",
	Short: "Remove a member (self, pool creator, or admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		poolID, err := parsePoolID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		m, err := newClient().RemoveMember(ctx, poolID, args[1], actor)
		if err != nil {
			return err
		}
		fmt.Printf("removed %s (%s)\n", m.PeerID, m.Account.Hex())
		return nil
	},
}

var poolPruneCmd = &cobra.Command{
	Use:   "prune <pool-id> <count>",
	Short: "Remove up to count members from the roster tail",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		poolID, err := parsePoolID(args[0])
		if err != nil {
			return err
		}
		count, err := cast.ToUint32E(args[1])
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", args[1], err)
		}

		ctx, cancel := requestContext()
		defer cancel()
		removed, err := newClient().RemoveMembersBatch(ctx, poolID, count, actor)
		if err != nil {
			return err
		}
		for _, m := range removed {
			fmt.Printf("removed %s (%s)\n", m.PeerID, m.Account.Hex())
		}
		fmt.Printf("%d member(s) removed\n", len(removed))
		return nil
	},
}

var poolDeleteCmd = &cobra.Command{
	Use:   "delete <pool-id>",
	Short: "Delete an empty pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		poolID, err := parsePoolID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		if err := newClient().DeletePool(ctx, poolID, actor); err != nil {
			return err
		}
		fmt.Printf("pool %s deleted\n", args[0])
		return nil
	},
}

var poolShowCmd = &cobra.Command{
	Use:   "show <pool-id>",
	Short: "Show one pool and its roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poolID, err := parsePoolID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		p, err := newClient().GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		renderPool(p)
		return nil
	},
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pools in id order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()
		pools, total, err := newClient().ListPools(ctx, poolOffset, poolLimit)
		if err != nil {
			return err
		}
		renderPoolTable(pools)
		fmt.Printf("\n%d pool(s)\n", total)
		return nil
	},
}

var poolRequestsCmd = &cobra.Command{
	Use:   "requests <pool-id>",
	Short: "List the pending join requests of a pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poolID, err := parsePoolID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		reqs, err := newClient().ListJoinRequests(ctx, poolID)
		if err != nil {
			return err
		}
		renderJoinRequestTable(reqs)
		return nil
	},
}

func parsePoolID(s string) (uint32, error) {
	id, err := cast.ToUint32E(s)
	if err != nil {
		return 0, fmt.Errorf("invalid pool id %q: %w", s, err)
	}
	return id, nil
}

func init() {
	poolCreateCmd.Flags().StringVar(&poolName, "name", "", "Pool name")
	poolCreateCmd.Flags().StringVar(&poolRegion, "region", "", "Pool region label")
	poolCreateCmd.Flags().StringVar(&poolStake, "stake", "0", "Stake required to join, in base token units")
	poolCreateCmd.Flags().Uint32Var(&poolMaxMembers, "max-members", 0, "Roster capacity")
	poolCreateCmd.Flags().Uint32Var(&poolChallengePeriod, "challenge-period", 0, "Max challenge response period, seconds")
	poolCreateCmd.Flags().Uint32Var(&poolPingTime, "ping-time", 0, "Min ping time, milliseconds")
	poolCreateCmd.Flags().StringVar(&poolPeerID, "peer", "", "Creator's peer id")
	_ = poolCreateCmd.MarkFlagRequired("name")
	_ = poolCreateCmd.MarkFlagRequired("max-members")
	_ = poolCreateCmd.MarkFlagRequired("peer")

	poolJoinCmd.Flags().StringVar(&poolPeerID, "peer", "", "Requester's peer id")
	_ = poolJoinCmd.MarkFlagRequired("peer")

	poolVoteCmd.Flags().StringVar(&poolVoterPeerID, "voter-peer", "", "Voting member's peer id")
	poolVoteCmd.Flags().BoolVar(&poolReject, "reject", false, "Vote to reject instead of approve")
	_ = poolVoteCmd.MarkFlagRequired("voter-peer")

	poolListCmd.Flags().Uint32Var(&poolOffset, "offset", 0, "Entries to skip")
	poolListCmd.Flags().Uint32Var(&poolLimit, "limit", 0, "Page size, 0 for the server cap")

	poolCmd.AddCommand(poolCreateCmd)
	poolCmd.AddCommand(poolJoinCmd)
	poolCmd.AddCommand(poolVoteCmd)
	poolCmd.AddCommand(poolCancelCmd)
	poolCmd.AddCommand(poolRemoveCmd)
	poolCmd.AddCommand(poolPruneCmd)
	poolCmd.AddCommand(poolDeleteCmd)
	poolCmd.AddCommand(poolShowCmd)
	poolCmd.AddCommand(poolListCmd)
	poolCmd.AddCommand(poolRequestsCmd)

	rootCmd.AddCommand(poolCmd)
}
