// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/paychan/chain"
	"github.com/luxfi/paychan/config"
	"github.com/luxfi/paychan/monitor"
	"github.com/luxfi/paychan/service"
	"github.com/luxfi/paychan/storage"
)

const (
	shutdownTimeout = 5 * time.Second
	dialTimeout     = 30 * time.Second
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor the channel manager and token contracts",
	Long: `Follow the channel manager and token contracts, logging every event.
Serves /health on the api port and /metrics on the metrics port.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runMonitor(cmd.Context(), cfg)
	},
}

var waitTxCmd = &cobra.Command{
	Use:   "wait-tx <tx hash>",
	Short: "Wait until a transaction is mined and print its receipt status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return runWaitTx(cmd.Context(), cfg, common.HexToHash(args[0]), timeout)
	},
}

func init() {
	monitorCmd.Flags().AddFlagSet(config.BuildFlagSet())
	waitTxCmd.Flags().AddFlagSet(config.BuildFlagSet())
	waitTxCmd.Flags().Duration("timeout", monitor.DefaultWaitTimeout, "How long to wait for the receipt")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return config.Config{}, fmt.Errorf("couldn't configure flags: %w", err)
	}
	return config.NewConfig(v)
}

// openService dials the node and opens the storage. The returned cleanup
// closes both.
func openService(ctx context.Context, cfg config.Config, logger log.Logger, registerer prometheus.Registerer) (*service.Service, func(), error) {
	client, err := chain.DialWithRetries(ctx, logger, cfg.RPCURL, dialTimeout)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.NewBadger(cfg.StorageDir)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	svcCfg := cfg.ServiceConfig()
	svcCfg.Monitor.Client = client
	svcCfg.Monitor.Storage = db
	svcCfg.Monitor.Logger = logger
	svcCfg.Monitor.Registerer = registerer
	svc, err := service.New(svcCfg)
	if err != nil {
		_ = db.Close()
		client.Close()
		return nil, nil, err
	}

	cleanup := func() {
		svc.Dispose()
		if err := db.Close(); err != nil {
			logger.Error("Failed to close storage", log.Err(err))
		}
		client.Close()
	}
	return svc, cleanup, nil
}

func runMonitor(parent context.Context, cfg config.Config) error {
	logger := log.Root()
	logger.Info("Initializing monitor", log.Stringer("channelManager", cfg.GetChannelManager()))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	svc, cleanup, err := openService(ctx, cfg, logger, registry)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, typ := range chain.AllEventTypes {
		svc.On(typ, func(ev chain.Event) {
			logger.Info(
				"Observed event",
				log.String("eventType", string(ev.Type)),
				log.Stringer("address", ev.Address),
				log.Uint64("blockNumber", ev.BlockNumber),
				log.Stringer("txHash", ev.TxHash),
			)
		})
	}
	svc.Start()
	logger.Info("Initialization complete")

	errGroup, ctx := errgroup.WithContext(ctx)

	apiMux := http.NewServeMux()
	apiMux.Handle("/health", service.HealthHandler(svc.HealthCheck))
	serve(ctx, errGroup, fmt.Sprintf(":%d", cfg.APIPort), apiMux)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	serve(ctx, errGroup, fmt.Sprintf(":%d", cfg.MetricsPort), metricsMux)

	if err := errGroup.Wait(); err != nil {
		logger.Error("Exited with error", log.Err(err))
		return err
	}
	logger.Info("Monitor stopped")
	return nil
}

// serve runs an http server in g until ctx is done
func serve(ctx context.Context, g *errgroup.Group, addr string, handler http.Handler) {
	g.Go(func() error {
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		// Handle graceful shutdown
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve %s: %w", addr, err)
		}
		return nil
	})
}

func runWaitTx(parent context.Context, cfg config.Config, txHash common.Hash, timeout time.Duration) error {
	logger := log.Root()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := openService(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer cleanup()

	receipt, err := svc.WaitForTransaction(ctx, txHash, monitor.WaitConfig{Timeout: timeout})
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, map[string]any{
		"txHash":      receipt.TxHash.Hex(),
		"status":      receipt.Status,
		"blockNumber": receipt.BlockNumber,
		"gasUsed":     receipt.GasUsed,
	})
}
