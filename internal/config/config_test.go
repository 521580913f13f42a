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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blinklabs-io/vaultledger/database/plugin"
	"github.com/blinklabs-io/vaultledger/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), *cfg)
	assert.Same(t, cfg, GetConfig())
	timeout, err := cfg.ShutdownTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)
}

func TestLoadFlatFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
databasePath: /var/lib/vaultledger
feedPath: blocks.jsonl.zst
underflowPolicy: clamp
metricsPort: 9100
autocommit: true
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vaultledger", cfg.DatabasePath)
	assert.Equal(t, "blocks.jsonl.zst", cfg.FeedPath)
	assert.Equal(t, string(vault.UnderflowClamp), cfg.UnderflowPolicy)
	assert.Equal(t, uint(9100), cfg.MetricsPort)
	assert.True(t, cfg.Autocommit)
	// Untouched fields keep their defaults
	assert.Equal(t, "0.0.0.0", cfg.BindAddr)
	assert.Equal(t, DefaultMetadataPlugin, cfg.MetadataPlugin)
}

func TestLoadSections(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
config:
  bindAddr: 127.0.0.1
database:
  metadata:
    plugin: postgres
    dsn: host=localhost user=vaultledger dbname=vaultledger
  blob:
    plugin: ""
`))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
	assert.Equal(t, "postgres", cfg.MetadataPlugin)
	assert.Equal(t, "host=localhost user=vaultledger dbname=vaultledger", cfg.MetadataDsn)
	assert.Empty(t, cfg.BlobPlugin)
	assert.Equal(t, ".vaultledger", cfg.DatabasePath)
}

func TestLoadBlobSection(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
database:
  blob:
    plugin: gcs
    dsn: gcs://vaultledger-archive/mainnet
`))
	require.NoError(t, err)
	assert.Equal(t, "gcs", cfg.BlobPlugin)
	assert.Equal(t, "gcs://vaultledger-archive/mainnet", cfg.BlobDsn)
	assert.Equal(t, DefaultMetadataPlugin, cfg.MetadataPlugin)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VAULTLEDGER_DATABASE_PATH", "/data")
	t.Setenv("VAULTLEDGER_METADATA_PLUGIN", "mysql")
	t.Setenv("VAULTLEDGER_DISJOINT_WRITE_LIMIT", "2")
	t.Setenv("VAULTLEDGER_TRACING", "true")
	cfg, err := LoadConfig(writeConfig(t, "databasePath: /ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.DatabasePath)
	assert.Equal(t, "mysql", cfg.MetadataPlugin)
	assert.Equal(t, 2, cfg.DisjointWriteLimit)
	assert.True(t, cfg.Tracing)
}

func TestLoadValidation(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "metadataPlugin: oracle\n"))
	require.ErrorIs(t, err, plugin.ErrUnknownPlugin)

	_, err = LoadConfig(writeConfig(t, "underflowPolicy: wrap\n"))
	require.ErrorIs(t, err, vault.ErrInvalidUnderflowPolicy)

	_, err = LoadConfig(writeConfig(t, "shutdownTimeout: soon\n"))
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := &Config{DatabasePath: "x"}
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
