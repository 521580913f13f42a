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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/blinklabs-io/vaultledger/database/types"
	"github.com/blinklabs-io/vaultledger/internal/config"
	"github.com/blinklabs-io/vaultledger/internal/node"
	"github.com/blinklabs-io/vaultledger/internal/test/testutil"
	"github.com/blinklabs-io/vaultledger/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteVault(t *testing.T) {
	bannedUntil := uint64(120)
	v := &models.Vault{
		ID:               "0x01",
		CollateralAmount: types.Uint128From64(1000),
		IssuedTokens:     types.Uint128From64(50),
		BannedUntilBlock: &bannedUntil,
	}
	tests := []struct {
		height uint64
		status string
	}{
		{height: 100, status: "banned"},
		{height: 120, status: "banned"},
		{height: 121, status: "active"},
	}
	for _, test := range tests {
		var buf bytes.Buffer
		require.NoError(t, writeVault(&buf, v, test.height))
		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, test.status, got["status"])
		assert.Equal(t, "1000", got["collateralAmount"])
		assert.Equal(t, "50", got["issuedTokens"])
		assert.Equal(t, "0", got["toBeIssuedTokens"])
		assert.InDelta(t, float64(120), got["bannedUntilBlock"], 0)
		assert.NotContains(t, got, "registerDate")
	}
}

func TestWritePlugins(t *testing.T) {
	var buf bytes.Buffer
	writePlugins(&buf)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Blob archive plugins:\n"))
	assert.Contains(t, out, "\nMetadata plugins:\n")
	for _, name := range []string{"badger", "gcs", "s3", "sqlite", "postgres", "mysql"} {
		assert.Contains(t, out, "  "+name+" ")
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--blob", "s3", "--blob-dsn", "s3://archive/mainnet"}))
	cfg := &config.Config{
		MetadataPlugin:  config.DefaultMetadataPlugin,
		BlobPlugin:      config.DefaultBlobPlugin,
		UnderflowPolicy: string(vault.UnderflowFault),
	}
	require.NoError(t, applyFlags(cmd, cfg))
	assert.Equal(t, "s3", cfg.BlobPlugin)
	assert.Equal(t, "s3://archive/mainnet", cfg.BlobDsn)
	assert.Equal(t, config.DefaultMetadataPlugin, cfg.MetadataPlugin)

	// Unset flags keep the loaded values
	cmd = newRootCommand()
	require.NoError(t, cmd.ParseFlags(nil))
	cfg.MetadataPlugin = "postgres"
	require.NoError(t, applyFlags(cmd, cfg))
	assert.Equal(t, "postgres", cfg.MetadataPlugin)
	assert.Equal(t, "s3", cfg.BlobPlugin)

	cmd = newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--blob", "none"}))
	require.NoError(t, applyFlags(cmd, cfg))
	assert.Empty(t, cfg.BlobPlugin)

	cmd = newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-m", "oracle-db"}))
	require.Error(t, applyFlags(cmd, cfg))
}

func TestVaultRunNormalizesID(t *testing.T) {
	cfg := &config.Config{
		DatabasePath:    t.TempDir(),
		MetadataPlugin:  config.DefaultMetadataPlugin,
		UnderflowPolicy: string(vault.UnderflowFault),
		ShutdownTimeout: "5s",
	}
	vaultID := testutil.AccountID(0xab)
	blk := testutil.NewBlock(7, time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC))
	ext := testutil.AddExtrinsic(blk, vaultID, "vaultRegistry", "registerVault", true)
	testutil.AddEvent(
		blk, &ext, "vaultRegistry", "RegisterVault",
		testutil.Account(vaultID), testutil.Amount("Collateral", "1000"),
	)
	idx, err := node.NewIndexer(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)), nil)
	require.NoError(t, err)
	_, err = idx.ProcessBlock(context.Background(), blk)
	require.NoError(t, err)
	require.NoError(t, idx.Stop())

	// Upper case and no 0x prefix
	var buf bytes.Buffer
	arg := strings.ToUpper(strings.TrimPrefix(vaultID, "0x"))
	require.NoError(t, vaultRun(cfg, &buf, arg, 0, false))
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, vaultID, got["id"])
	assert.Equal(t, "1000", got["collateralAmount"])
	assert.InDelta(t, float64(7), got["height"], 0)

	require.ErrorIs(t, vaultRun(cfg, &buf, testutil.AccountID(0xcd), 0, false), vault.ErrVaultNotFound)
	require.Error(t, vaultRun(cfg, &buf, "0x12", 0, false))
}
