// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/ava-labs/govpool/govpool"
)

var (
	proposalType   string
	proposalTarget string
	proposalRole   string
	proposalAmount string
	proposalToken  string

	proposalOffset uint32
	proposalLimit  uint32
)

var proposalCmd = &cobra.Command{
	Use:   "proposal",
	Short: "Governance proposal lifecycle",
}

var proposalCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a proposal (counts as the creator's approval)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		typ := govpool.ProposalTypeFromString(proposalType)
		if typ == govpool.ProposalUnknown {
			return fmt.Errorf("invalid --type %q", proposalType)
		}
		target, err := parseAddress("target", proposalTarget)
		if err != nil {
			return err
		}

		var role govpool.RoleID
		if proposalRole != "" {
			if err := role.UnmarshalText([]byte(proposalRole)); err != nil {
				return err
			}
		}
		var amount govpool.Amount
		if proposalAmount != "" {
			if amount, err = govpool.ParseAmount(proposalAmount); err != nil {
				return err
			}
		}
		var token common.Address
		if proposalToken != "" {
			if token, err = parseAddress("token", proposalToken); err != nil {
				return err
			}
		}

		ctx, cancel := requestContext()
		defer cancel()
		p, err := newClient().CreateProposal(ctx, typ, target, role, amount, token, actor)
		if err != nil {
			return err
		}
		renderProposal(p)
		return nil
	},
}

var proposalApproveCmd = &cobra.Command{
	Use:   "approve <proposal-id>",
	Short: "Approve a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		id, err := parseHash("proposal id", args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		p, err := newClient().ApproveProposal(ctx, id, actor)
		if err != nil {
			return err
		}
		renderProposal(p)
		return nil
	},
}

var proposalExecuteCmd = &cobra.Command{
	Use:   "execute <proposal-id>",
	Short: "Execute an approved proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		id, err := parseHash("proposal id", args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		p, err := newClient().ExecuteProposal(ctx, id, actor)
		if err != nil {
			return err
		}
		renderProposal(p)
		return nil
	},
}

var proposalShowCmd = &cobra.Command{
	Use:   "show <proposal-id>",
	Short: "Show one proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseHash("proposal id", args[0])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		p, err := newClient().GetProposal(ctx, id)
		if err != nil {
			return err
		}
		renderProposal(p)
		return nil
	},
}

var proposalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live proposals in creation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()
		props, live, total, err := newClient().PendingProposals(ctx, proposalOffset, proposalLimit)
		if err != nil {
			return err
		}
		renderProposalTable(props)
		fmt.Printf("\n%d live, %d indexed\n", live, total)
		return nil
	},
}

var quorumCmd = &cobra.Command{
	Use:   "quorum <role> [value]",
	Short: "Show or set a role's execution quorum",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var role govpool.RoleID
		if err := role.UnmarshalText([]byte(args[0])); err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		cli := newClient()

		if len(args) == 1 {
			q, err := cli.RoleQuorum(ctx, role)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d\n", role, q)
			return nil
		}

		actor, err := actorAddress()
		if err != nil {
			return err
		}
		quorum, err := cast.ToUint32E(args[1])
		if err != nil {
			return fmt.Errorf("invalid quorum %q: %w", args[1], err)
		}
		if err := cli.SetRoleQuorum(ctx, role, quorum, actor); err != nil {
			return err
		}
		fmt.Printf("%s: %d\n", role, quorum)
		return nil
	},
}

var flagCmd = &cobra.Command{
	Use:   "flag <account>",
	Short: "Set or clear the forfeiture flag on an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := actorAddress()
		if err != nil {
			return err
		}
		account, err := parseAddress("account", args[0])
		if err != nil {
			return err
		}
		clear, err := cmd.Flags().GetBool("clear")
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		if err := newClient().SetAccountFlag(ctx, account, !clear, actor); err != nil {
			return err
		}
		if clear {
			fmt.Printf("%s: flag cleared\n", account.Hex())
		} else {
			fmt.Printf("%s: flagged\n", account.Hex())
		}
		return nil
	},
}

func init() {
	proposalCreateCmd.Flags().StringVar(&proposalType, "type", "", "Proposal type: add_role, remove_role, upgrade, recovery, add_whitelist, remove_whitelist")
	proposalCreateCmd.Flags().StringVar(&proposalTarget, "target", "", "Target address")
	proposalCreateCmd.Flags().StringVar(&proposalRole, "role", "", "Role name or 0x hex id, for role proposals")
	proposalCreateCmd.Flags().StringVar(&proposalAmount, "amount", "", "Token amount, for recovery and whitelist proposals")
	proposalCreateCmd.Flags().StringVar(&proposalToken, "token", "", "Token address, for recovery and whitelist proposals")
	_ = proposalCreateCmd.MarkFlagRequired("type")
	_ = proposalCreateCmd.MarkFlagRequired("target")

	proposalListCmd.Flags().Uint32Var(&proposalOffset, "offset", 0, "Entries to skip")
	proposalListCmd.Flags().Uint32Var(&proposalLimit, "limit", 0, "Page size, 0 for the server cap")

	flagCmd.Flags().Bool("clear", false, "Clear the flag instead of setting it")

	proposalCmd.AddCommand(proposalCreateCmd)
	proposalCmd.AddCommand(proposalApproveCmd)
	proposalCmd.AddCommand(proposalExecuteCmd)
	proposalCmd.AddCommand(proposalShowCmd)
	proposalCmd.AddCommand(proposalListCmd)

	rootCmd.AddCommand(proposalCmd)
	rootCmd.AddCommand(quorumCmd)
	rootCmd.AddCommand(flagCmd)
}
