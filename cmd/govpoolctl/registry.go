// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ava-labs/govpool/govpool"
)

var hasRoleCmd = &cobra.Command{
	Use:   "has-role <role> <account>",
	Short: "Report whether an account holds a role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var role govpool.RoleID
		if err := role.UnmarshalText([]byte(args[0])); err != nil {
			return err
		}
		account, err := parseAddress("account", args[1])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		ok, err := newClient().HasRole(ctx, role, account)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("%s holds %s\n", account.Hex(), role)
		} else {
			fmt.Printf("%s does not hold %s\n", account.Hex(), role)
		}
		return nil
	},
}

var whitelistedCmd = &cobra.Command{
	Use:   "whitelisted <token> <account>",
	Short: "Show the whitelist allowance of (token, account)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseAddress("token", args[0])
		if err != nil {
			return err
		}
		account, err := parseAddress("account", args[1])
		if err != nil {
			return err
		}

		ctx, cancel := requestContext()
		defer cancel()
		amount, ok, err := newClient().Whitelisted(ctx, token, account)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s is not whitelisted for %s\n", account.Hex(), token.Hex())
			return nil
		}
		fmt.Printf("%s is whitelisted for %s up to %s\n", account.Hex(), token.Hex(), amount)
		return nil
	},
}

var upgradePlanCmd = &cobra.Command{
	Use:   "upgrade-plan",
	Short: "Show the recorded upgrade plan, if any",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()
		plan, err := newClient().UpgradePlan(ctx)
		if err != nil {
			return err
		}
		if plan == nil {
			fmt.Println("no upgrade executed")
			return nil
		}
		fmt.Printf("target:      %s\n", plan.Target.Hex())
		fmt.Printf("proposal:    %s\n", plan.ProposalID.Hex())
		fmt.Printf("approved at: %s\n", formatTime(plan.ApprovedAt))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump the full committed state as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()
		state, err := newClient().ExportState(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe daemon liveness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()
		healthy, err := newClient().Health(ctx)
		if err != nil {
			return err
		}
		if !healthy {
			return fmt.Errorf("daemon reports unhealthy")
		}
		fmt.Println("healthy")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hasRoleCmd)
	rootCmd.AddCommand(whitelistedCmd)
	rootCmd.AddCommand(upgradePlanCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(healthCmd)
}
