// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"flag"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ava-labs/govpool/govpool"
	"github.com/ethereum/go-ethereum/common"
)

const (
	versionKey  = "version"
	httpAddrKey = "http-addr"
	genesisKey  = "genesis"
	logLevelKey = "log-level"

	proposalTTLKey          = "proposal-ttl"
	executionDelayKey       = "execution-delay"
	maxPageLimitKey         = "max-page-limit"
	stakingTokenKey         = "staking-token"
	restrictPoolCreationKey = "restrict-pool-creation"
)

func buildFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("govpoold", flag.ContinueOnError)
	defaults := govpool.DefaultConfig()

	fs.Bool(versionKey, false, "If true, prints the version and quits")
	fs.String(httpAddrKey, "127.0.0.1:8644", "Address the HTTP server listens on")
	fs.String(genesisKey, "", "Path to the genesis JSON document")
	fs.String(logLevelKey, "info", "Log level: debug, info, warn, error")

	fs.Duration(proposalTTLKey, defaults.ProposalTTL, "Window during which a proposal can gather approvals and execute")
	fs.Duration(executionDelayKey, defaults.ExecutionDelay, "Timelock between proposal creation and earliest execution")
	fs.Uint(maxPageLimitKey, uint(defaults.MaxPageLimit), "Page size cap for list operations")
	fs.String(stakingTokenKey, "", "Token address join stakes are denominated in")
	fs.Bool(restrictPoolCreationKey, false, "Require the pool_creator role for pool creation")

	return fs
}

// getViper returns the viper environment for the daemon.
func getViper() (*viper.Viper, error) {
	v := viper.New()

	fs := buildFlagSet()
	pflag.CommandLine.AddGoFlagSet(fs)
	pflag.Parse()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	return v, nil
}

// engineConfig assembles the engine parameters from flags. Parameters
// carried by the genesis document take precedence over these.
func engineConfig(v *viper.Viper) (govpool.Config, error) {
	cfg := govpool.DefaultConfig()
	cfg.ProposalTTL = v.GetDuration(proposalTTLKey)
	cfg.ExecutionDelay = v.GetDuration(executionDelayKey)
	cfg.MaxPageLimit = v.GetUint32(maxPageLimitKey)
	cfg.RestrictPoolCreation = v.GetBool(restrictPoolCreationKey)

	if token := v.GetString(stakingTokenKey); token != "" {
		if !common.IsHexAddress(token) {
			return govpool.Config{}, errors.Errorf("invalid %s %q", stakingTokenKey, token)
		}
		cfg.StakingToken = common.HexToAddress(token)
	}
	return cfg, nil
}
