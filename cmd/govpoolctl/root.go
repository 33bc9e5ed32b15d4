// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ava-labs/govpool/client"
)

var (
	rpcURL     string
	actorHex   string
	rpcTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "govpoolctl",
	Short: "Operator CLI for the govpool daemon",
	Long: `govpoolctl drives a running govpool daemon over JSON-RPC: governance
proposals, role quorums, storage pools, and join-request voting.

Mutating commands act as the address given by --actor.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "http://127.0.0.1:8644/rpc", "govpool daemon RPC endpoint")
	rootCmd.PersistentFlags().StringVar(&actorHex, "actor", "", "Acting address for mutating operations")
	rootCmd.PersistentFlags().DurationVar(&rpcTimeout, "timeout", 15*time.Second, "Request timeout")
}

func newClient() client.Client {
	return client.New(rpcURL)
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rpcTimeout)
}

// actorAddress resolves the --actor flag, required by mutating commands.
func actorAddress() (common.Address, error) {
	if actorHex == "" {
		return common.Address{}, errors.New("--actor is required for this command")
	}
	return parseAddress("actor", actorHex)
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(name, s string) (common.Hash, error) {
	var h common.Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return common.Hash{}, fmt.Errorf("invalid %s %q", name, s)
	}
	return h, nil
}
