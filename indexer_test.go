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

package vaultledger_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blinklabs-io/vaultledger"
	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/dispatch"
	"github.com/blinklabs-io/vaultledger/event"
	"github.com/blinklabs-io/vaultledger/internal/test/testutil"
	"github.com/blinklabs-io/vaultledger/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blockTime = time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)

// issueBlock issues 50 tokens to vault 1, registering it first when register is set
func issueBlock(number uint64, register bool) *chain.Block {
	blk := testutil.NewBlock(
		number,
		blockTime.Add(time.Duration(number)*6*time.Second), //nolint:gosec
	)
	signer := testutil.AccountID(1)
	acct := testutil.Account(signer)
	if register {
		idx := testutil.AddExtrinsic(blk, signer, "vaultRegistry", "registerVault", true)
		testutil.AddEvent(
			blk, &idx, "vaultRegistry", "RegisterVault",
			acct, testutil.Amount("Collateral", "1000"),
		)
	}
	idx := testutil.AddExtrinsic(blk, signer, "issue", "executeIssue", true)
	testutil.AddEvent(
		blk, &idx, "balances", "Transfer",
		acct, testutil.Account(testutil.AccountID(2)), testutil.Amount("Balance", "7"),
	)
	testutil.AddEvent(
		blk, &idx, "vaultRegistry", "IssueTokens",
		acct, testutil.Amount("Wrapped", "50"),
	)
	return blk
}

func issueBlocks(from, to uint64) []*chain.Block {
	var ret []*chain.Block
	for n := from; n <= to; n++ {
		ret = append(ret, issueBlock(n, n == 1))
	}
	return ret
}

func newIndexer(
	t *testing.T,
	opts ...vaultledger.ConfigOptionFunc,
) *vaultledger.Indexer {
	t.Helper()
	idx, err := vaultledger.New(vaultledger.NewConfig(opts...))
	require.NoError(t, err)
	return idx
}

func issued(t *testing.T, idx *vaultledger.Indexer) string {
	t.Helper()
	v, err := idx.Vault(context.Background(), testutil.AccountID(1))
	require.NoError(t, err)
	return v.IssuedTokens.String()
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := vaultledger.New(vaultledger.NewConfig(
		vaultledger.WithUnderflowPolicy(vault.UnderflowPolicy("saturate")),
	))
	require.ErrorIs(t, err, vault.ErrInvalidUnderflowPolicy)

	_, err = vaultledger.New(vaultledger.NewConfig(
		vaultledger.WithDisjointWriteLimit(-1),
	))
	require.Error(t, err)

	_, err = vaultledger.New(vaultledger.NewConfig(
		vaultledger.WithMetadataPlugin("oracle-db"),
	))
	require.Error(t, err)
}

func TestRunProcessesSource(t *testing.T) {
	ctx := context.Background()
	idx := newIndexer(t, vaultledger.WithPrometheusRegistry(prometheus.NewRegistry()))
	defer idx.Stop() //nolint:errcheck

	require.NoError(t, idx.Run(ctx, chain.NewSliceSource(issueBlocks(1, 3)...)))
	assert.Equal(t, "150", issued(t, idx))

	cp, err := idx.Checkpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(3), cp.BlockNumber)
	assert.Equal(t, issueBlock(3, false).Hash, cp.BlockHash)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx := newIndexer(t, vaultledger.WithDatabasePath(dir))
	require.NoError(t, idx.Run(ctx, chain.NewSliceSource(issueBlocks(1, 2)...)))
	assert.Equal(t, "100", issued(t, idx))
	require.NoError(t, idx.Stop())

	// Blocks 1 and 2 are delivered again and must be skipped
	idx = newIndexer(t, vaultledger.WithDatabasePath(dir))
	defer idx.Stop() //nolint:errcheck
	require.NoError(t, idx.Run(ctx, chain.NewSliceSource(issueBlocks(1, 3)...)))
	assert.Equal(t, "150", issued(t, idx))
}

func TestRunStopsOnBlockError(t *testing.T) {
	ctx := context.Background()
	idx := newIndexer(t)
	defer idx.Stop() //nolint:errcheck

	bad := issueBlock(2, false)
	bad.Events[len(bad.Events)-1].Data[1] = testutil.BtcAddress("0x00")
	err := idx.Run(ctx, chain.NewSliceSource(issueBlock(1, true), bad, issueBlock(3, false)))
	var decodeErr *chain.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "50", issued(t, idx))

	cp, err := idx.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cp.BlockNumber)
}

func TestRunCancelled(t *testing.T) {
	idx := newIndexer(t)
	defer idx.Stop() //nolint:errcheck
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := idx.Run(ctx, chain.NewSliceSource(issueBlocks(1, 2)...))
	require.ErrorIs(t, err, context.Canceled)
	cp, err := idx.Checkpoint(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestEventsPublished(t *testing.T) {
	idx := newIndexer(t)
	defer idx.Stop() //nolint:errcheck

	_, blockCh := idx.EventBus().Subscribe(event.BlockProcessedEventType)
	_, vaultCh := idx.EventBus().Subscribe(event.VaultUpdatedEventType)
	blk := issueBlock(1, true)
	_, err := idx.ProcessBlock(context.Background(), blk)
	require.NoError(t, err)

	evt := testutil.RequireReceive(t, blockCh, 2*time.Second, "block processed")
	processed, ok := evt.Data.(event.BlockProcessedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(1), processed.BlockNumber)
	assert.Equal(t, blk.Hash, processed.BlockHash)
	assert.Equal(t, 2, processed.Dispatched)
	assert.True(t, blk.Timestamp().Equal(processed.BlockTime))

	evt = testutil.RequireReceive(t, vaultCh, 2*time.Second, "vault updated")
	updated, ok := evt.Data.(event.VaultUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, testutil.AccountID(1), updated.VaultID)
	testutil.RequireNoReceive(t, vaultCh, 50*time.Millisecond, "single vault")
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	idx := newIndexer(t, vaultledger.WithBlobPlugin("badger"))
	defer idx.Stop() //nolint:errcheck
	require.True(t, idx.Database().HasArchive())

	require.NoError(t, idx.Run(ctx, chain.NewSliceSource(issueBlocks(1, 3)...)))
	payload, err := idx.Database().ArchivedBlock(2)
	require.NoError(t, err)
	assert.Contains(t, string(payload), issueBlock(2, false).Hash)
	count, err := idx.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, "150", issued(t, idx))

	// The live pipeline still rejects what was already applied
	_, err = idx.ProcessBlock(ctx, issueBlock(3, false))
	require.Error(t, err)
}

func TestReplayPartialArchiveKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx := newIndexer(t, vaultledger.WithDatabasePath(dir), vaultledger.WithBlobPlugin("badger"))
	require.NoError(t, idx.Run(ctx, chain.NewSliceSource(issueBlocks(1, 3)...)))
	require.NoError(t, idx.Stop())

	// Blocks 4 and 5 are ingested without an archive
	idx = newIndexer(t, vaultledger.WithDatabasePath(dir), vaultledger.WithBlobPlugin(""))
	require.NoError(t, idx.Run(ctx, chain.NewSliceSource(issueBlocks(1, 5)...)))
	require.NoError(t, idx.Stop())

	idx = newIndexer(t, vaultledger.WithDatabasePath(dir), vaultledger.WithBlobPlugin("badger"))
	defer idx.Stop() //nolint:errcheck
	count, err := idx.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, "250", issued(t, idx))

	cp, err := idx.Checkpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(5), cp.BlockNumber)
	assert.Equal(t, issueBlock(5, false).Hash, cp.BlockHash)

	// The live pipeline resumes after block 5
	_, err = idx.ProcessBlock(ctx, issueBlock(5, false))
	require.Error(t, err)
	_, err = idx.ProcessBlock(ctx, issueBlock(6, false))
	require.NoError(t, err)
	assert.Equal(t, "300", issued(t, idx))
}

func TestReplayWithoutArchive(t *testing.T) {
	idx := newIndexer(t)
	defer idx.Stop() //nolint:errcheck
	_, err := idx.Replay(context.Background())
	require.Error(t, err)
}

func TestWithRegistryKeepsCustomHandlers(t *testing.T) {
	var transfers atomic.Int32
	reg := dispatch.NewRegistry()
	require.NoError(t, reg.Register(
		dispatch.Key{Section: "balances", Method: "Transfer"},
		dispatch.NewHandler(
			chain.Schema{chain.KindAccountID, chain.KindAccountID, chain.KindCollateral},
			func(context.Context, *dispatch.Request) error {
				transfers.Add(1)
				return nil
			},
		),
	))
	idx := newIndexer(t, vaultledger.WithRegistry(reg))
	defer idx.Stop() //nolint:errcheck

	assert.Same(t, reg, idx.Registry())
	require.NoError(t, idx.Run(
		context.Background(),
		chain.NewSliceSource(issueBlocks(1, 2)...),
	))
	assert.Equal(t, int32(2), transfers.Load())
	assert.Equal(t, "100", issued(t, idx))
}

func TestStopIdempotent(t *testing.T) {
	idx := newIndexer(t)
	require.NoError(t, idx.Stop())
	require.NoError(t, idx.Stop())
}
