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

package vaultledger

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/vaultledger/database"
	"github.com/blinklabs-io/vaultledger/dispatch"
	"github.com/blinklabs-io/vaultledger/vault"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry       prometheus.Registerer
	logger             *slog.Logger
	registry           *dispatch.Registry
	dataDir            string
	blobPlugin         string
	blobDSN            string
	metadataPlugin     string
	metadataDSN        string
	underflowPolicy    vault.UnderflowPolicy
	disjointWriteLimit int
	shutdownTimeout    time.Duration
	autocommit         bool
	tracing            bool
	tracingStdout      bool
}

func (c *Config) validate() error {
	if _, err := vault.ParseUnderflowPolicy(string(c.underflowPolicy)); err != nil {
		return err
	}
	if c.disjointWriteLimit < 0 {
		return fmt.Errorf(
			"invalid disjoint write limit: %d",
			c.disjointWriteLimit,
		)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the indexer config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new indexer config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:             slog.New(slog.NewJSONHandler(io.Discard, nil)),
		metadataPlugin:     database.DefaultMetadataPlugin,
		underflowPolicy:    vault.UnderflowFault,
		disjointWriteLimit: database.DefaultDisjointWriteLimit,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin used for the raw block archive. The archive is disabled by default
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithBlobDSN locates the archive for remote blob plugins such as gcs
func WithBlobDSN(dsn string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobDSN = dsn
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithMetadataDSN specifies the connection string for server-backed metadata plugins
func WithMetadataDSN(dsn string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataDSN = dsn
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithRegistry specifies the dispatch registry the indexer adds its
// handlers to. Handlers for other event keys may be registered on it
// beforehand.
func WithRegistry(registry *dispatch.Registry) ConfigOptionFunc {
	return func(c *Config) {
		c.registry = registry
	}
}

// WithUnderflowPolicy specifies how vault counter underflows are handled. The default is to fail the block
func WithUnderflowPolicy(policy vault.UnderflowPolicy) ConfigOptionFunc {
	return func(c *Config) {
		c.underflowPolicy = policy
	}
}

// WithDisjointWriteLimit bounds the parallel writes made for a single event
func WithDisjointWriteLimit(limit int) ConfigOptionFunc {
	return func(c *Config) {
		c.disjointWriteLimit = limit
	}
}

// WithAutocommit writes entities as they are produced instead of committing each block in one transaction
func WithAutocommit(autocommit bool) ConfigOptionFunc {
	return func(c *Config) {
		c.autocommit = autocommit
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}
