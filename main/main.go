// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	"github.com/ava-labs/avalanchego/database/manager"
	"github.com/ava-labs/avalanchego/version"
	"github.com/ava-labs/govpool/govpool"

	log "github.com/inconshreveable/log15"
)

const shutdownTimeout = 10 * time.Second

func main() {
	v, err := getViper()
	if err != nil {
		fmt.Printf("couldn't get config: %s\n", err)
		os.Exit(1)
	}
	if v.GetBool(versionKey) {
		fmt.Printf("%s@%s\n", govpool.Name, govpool.Version)
		os.Exit(0)
	}

	if err := run(v); err != nil {
		fmt.Fprintf(os.Stderr, "govpoold: %s\n", err)
		os.Exit(1)
	}
}

func run(v *viper.Viper) error {
	logLevel, err := log.LvlFromString(v.GetString(logLevelKey))
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	log.Root().SetHandler(log.LvlFilterHandler(logLevel, log.StreamHandler(os.Stderr, log.TerminalFormat())))
	logger := log.New("app", "govpoold")

	genesisPath := v.GetString(genesisKey)
	if genesisPath == "" {
		return errors.Errorf("--%s is required", genesisKey)
	}
	raw, err := os.ReadFile(genesisPath)
	if err != nil {
		return errors.Wrap(err, "reading genesis")
	}
	genesis, err := govpool.ParseGenesis(raw)
	if err != nil {
		return err
	}

	cfg, err := engineConfig(v)
	if err != nil {
		return err
	}
	if genesis.Config != nil {
		cfg = *genesis.Config
		logger.Info("using engine parameters from genesis")
	}

	dbManager := manager.NewMemDB(version.DefaultVersion1_0_0)
	db := dbManager.Current().Database

	registry := prometheus.NewRegistry()
	engine, err := govpool.New(
		cfg,
		db,
		genesis,
		nil,
		govpool.NewLogSink(logger),
		logger,
		registry,
	)
	if err != nil {
		return err
	}

	handler, err := govpool.NewHandler(engine)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Handle("/rpc", handler).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// A single-key read catches a wedged database without walking state.
		if _, err := engine.UpgradePlan(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"healthy":false,"error":%q}`, err.Error())
			return
		}
		_, _ = w.Write([]byte(`{"healthy":true}`))
	})

	srv := &http.Server{
		Addr:    v.GetString(httpAddrKey),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
