// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/vaultledger"
	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/internal/config"
	"github.com/blinklabs-io/vaultledger/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewIndexer builds an indexer from the loaded configuration
func NewIndexer(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*vaultledger.Indexer, error) {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	policy, err := vault.ParseUnderflowPolicy(cfg.UnderflowPolicy)
	if err != nil {
		return nil, err
	}
	return vaultledger.New(
		vaultledger.NewConfig(
			vaultledger.WithLogger(logger),
			vaultledger.WithDatabasePath(cfg.DatabasePath),
			vaultledger.WithBlobPlugin(cfg.BlobPlugin),
			vaultledger.WithBlobDSN(cfg.BlobDsn),
			vaultledger.WithMetadataPlugin(cfg.MetadataPlugin),
			vaultledger.WithMetadataDSN(cfg.MetadataDsn),
			vaultledger.WithUnderflowPolicy(policy),
			vaultledger.WithDisjointWriteLimit(cfg.DisjointWriteLimit),
			vaultledger.WithAutocommit(cfg.Autocommit),
			vaultledger.WithShutdownTimeout(shutdownTimeout),
			vaultledger.WithPrometheusRegistry(promRegistry),
			vaultledger.WithTracing(cfg.Tracing),
			vaultledger.WithTracingStdout(cfg.TracingStdout),
		),
	)
}

// Run ingests the feed at feedPath until it is exhausted or a termination
// signal arrives, serving metrics on the configured port meanwhile. A
// metrics port of 0 disables the listener.
func Run(cfg *config.Config, logger *slog.Logger, feedPath string) error {
	if feedPath == "" {
		feedPath = cfg.FeedPath
	}
	if feedPath == "" {
		return errors.New("no feed path specified")
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	src, err := chain.NewFileSource(feedPath)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck
	idx, err := NewIndexer(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		// Metrics and debug listener
		http.Handle("/metrics", promhttp.Handler())
		logger.Info(
			"serving prometheus metrics on "+fmt.Sprintf(
				"%s:%d",
				cfg.BindAddr,
				cfg.MetricsPort,
			),
			"component",
			"node",
		)
		metricsServer = &http.Server{
			Addr: fmt.Sprintf(
				"%s:%d",
				cfg.BindAddr,
				cfg.MetricsPort,
			),
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "node",
				)
			}
		}()
	}
	shutdownMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run indexer in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- idx.Run(signalCtx, src)
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		// Let the current block finish
		<-errChan
		shutdownMetrics()
		if err := idx.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		shutdownMetrics()
		if err == nil {
			logger.Info("feed exhausted")
			if err := idx.Stop(); err != nil {
				logger.Error("shutdown errors occurred", "error", err)
				return err
			}
			return nil
		}
		logger.Error("indexer error", "error", err)
		if stopErr := idx.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}
		return err
	}
}
