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

package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/database"
	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/blinklabs-io/vaultledger/dispatch"
	"github.com/blinklabs-io/vaultledger/ingest"
	"github.com/blinklabs-io/vaultledger/internal/test/testutil"
	"github.com/blinklabs-io/vaultledger/oracle"
	"github.com/blinklabs-io/vaultledger/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blockTime = time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)

func newPipeline(
	t *testing.T,
	db *database.Database,
	autocommit bool,
) *ingest.Pipeline {
	t.Helper()
	reg := dispatch.NewRegistry()
	require.NoError(t, vault.NewLedger().Register(reg))
	require.NoError(t, oracle.NewFeed().Register(reg))
	p, err := ingest.NewPipeline(ingest.PipelineConfig{
		Database:   db,
		Registry:   reg,
		Autocommit: autocommit,
	})
	require.NoError(t, err)
	return p
}

func count(t *testing.T, db *database.Database, model any) int64 {
	t.Helper()
	var ret int64
	require.NoError(t, db.Metadata().DB().Model(model).Count(&ret).Error)
	return ret
}

// vaultBlock registers vault 1 and issues 50 tokens to it. Event 3 is an
// unhandled balances transfer.
func vaultBlock(number uint64) *chain.Block {
	blk := testutil.NewBlock(number, blockTime)
	signer := testutil.AccountID(1)
	acct := testutil.Account(signer)
	idx := testutil.AddExtrinsic(blk, signer, "vaultRegistry", "registerVault", true)
	testutil.AddEvent(
		blk, &idx, "vaultRegistry", "RegisterVault",
		acct, testutil.Amount("Collateral", "1000"),
	)
	transfer := testutil.AddEvent(
		blk, &idx, "balances", "Transfer",
		acct, testutil.Account(testutil.AccountID(2)), testutil.Amount("Balance", "7"),
	)
	transfer.Names = []string{"from", "to", "amount"}
	issue := testutil.AddExtrinsic(blk, signer, "issue", "executeIssue", true)
	testutil.AddEvent(
		blk, &issue, "vaultRegistry", "IncreaseToBeIssuedTokens",
		acct, testutil.Amount("Wrapped", "50"),
	)
	testutil.AddEvent(
		blk, &issue, "vaultRegistry", "IssueTokens",
		acct, testutil.Amount("Wrapped", "50"),
	)
	return blk
}

func TestEnsureIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "")
	blk := vaultBlock(100)

	for range 2 {
		_, err := ingest.EnsureBlock(ctx, db, blk)
		require.NoError(t, err)
		_, err = ingest.EnsureExtrinsic(ctx, db, blk.Extrinsics[1].Hash)
		require.NoError(t, err)
		evt, err := ingest.EnsureEvent(ctx, db, blk, &blk.Events[3])
		require.NoError(t, err)
		assert.Equal(t, "100-3", evt.ID)
		assert.Equal(t, blk.Hash, evt.BlockID)
		assert.Equal(t, uint64(100), evt.BlockNumber)
		_, err = vault.NewLedger().Ensure(ctx, db, testutil.AccountID(1))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), count(t, db, &models.Block{}))
	assert.Equal(t, int64(1), count(t, db, &models.Extrinsic{}))
	assert.Equal(t, int64(1), count(t, db, &models.Event{}))
	assert.Equal(t, int64(1), count(t, db, &models.Vault{}))
}

func TestEventID(t *testing.T) {
	assert.Equal(t, "100-3", ingest.EventID(100, 3))
}

func TestPopulateBlockSetOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "")
	blk := vaultBlock(12)
	rec, err := ingest.PopulateBlock(ctx, db, blk)
	require.NoError(t, err)
	assert.True(t, rec.Populated)
	assert.Equal(t, uint64(12), rec.Number)
	assert.True(t, blockTime.Equal(rec.Timestamp))

	changed := *blk
	changed.ParentHash = "0xdeadbeef"
	changed.SpecVersion = 99
	rec, err = ingest.PopulateBlock(ctx, db, &changed)
	require.NoError(t, err)
	assert.Equal(t, blk.ParentHash, rec.ParentHash)
	assert.Equal(t, uint32(1), rec.SpecVersion)
}

func TestCreateExtrinsic(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "")
	blk := testutil.NewBlock(5, blockTime)
	failed := testutil.AddExtrinsic(blk, testutil.AccountID(3), "vaultRegistry", "withdrawCollateral", false)
	blk.Extrinsics[failed].Nonce = nil
	tip := "100"
	blk.Extrinsics[failed].Tip = &tip

	rec, err := ingest.CreateExtrinsic(ctx, db, blk, int(failed))
	require.NoError(t, err)
	assert.False(t, rec.IsSuccess)
	assert.Equal(t, uint64(0), rec.Nonce)
	assert.Equal(t, testutil.AccountID(3), rec.Signer)

	ts, err := ingest.CreateExtrinsic(ctx, db, blk, 0)
	require.NoError(t, err)
	assert.True(t, ts.IsSuccess)
	assert.False(t, ts.IsSigned)

	var stored models.Extrinsic
	found, err := db.Get(ctx, blk.Extrinsics[0].Hash, &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "timestamp", stored.Section)
	assert.Equal(t, json.Number("1654041600000"), stored.Args["now"])
	assert.Equal(t, blk.Hash, stored.BlockID)

	_, err = ingest.CreateExtrinsic(ctx, db, blk, 10)
	require.Error(t, err)
}

func TestProcessBlock(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "")
	p := newPipeline(t, db, false)
	blk := vaultBlock(100)

	result, err := p.ProcessBlock(ctx, blk)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Dispatched)
	assert.Equal(t, 4, result.Ignored)
	assert.Equal(t, []string{testutil.AccountID(1)}, result.TouchedVaults)

	var v models.Vault
	found, err := db.Get(ctx, testutil.AccountID(1), &v)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1000", v.CollateralAmount.String())
	assert.Equal(t, "50", v.IssuedTokens.String())
	assert.Equal(t, "50", v.ToBeIssuedTokens.String())

	var issue models.TokenIssueEvent
	found, err = db.Get(ctx, "100-6", &issue)
	require.NoError(t, err)
	require.True(t, found)

	var env models.Event
	found, err = db.Get(ctx, "100-6", &env)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, env.ExtrinsicID)
	assert.Equal(t, blk.Extrinsics[2].Hash, *env.ExtrinsicID)
	assert.True(t, blockTime.Equal(env.Timestamp))

	cp, err := db.Checkpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(100), cp.BlockNumber)
	assert.Equal(t, blk.Hash, cp.BlockHash)
	last, ok := p.LastBlock()
	assert.True(t, ok)
	assert.Equal(t, uint64(100), last)
}

func TestUnknownEventKeepsEnvelope(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "")
	p := newPipeline(t, db, false)
	blk := testutil.NewBlock(100, blockTime)
	idx := testutil.AddExtrinsic(blk, testutil.AccountID(4), "balances", "transfer", true)
	testutil.AddEvent(blk, &idx, "balances", "Endowed")
	transfer := testutil.AddEvent(
		blk, &idx, "balances", "Transfer",
		testutil.Account(testutil.AccountID(4)),
		testutil.Account(testutil.AccountID(5)),
		testutil.Amount("Balance", "7"),
	)
	transfer.Names = []string{"from", "to", "amount"}

	_, err := p.ProcessBlock(ctx, blk)
	require.NoError(t, err)

	var env models.Event
	found, err := db.Get(ctx, "100-3", &env)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "balances", env.Section)
	assert.Equal(t, "Transfer", env.Method)
	assert.Equal(t, testutil.AccountID(4), env.Data["from"])
	assert.Equal(t, testutil.AccountID(5), env.Data["to"])
	assert.Equal(t, "7", env.Data["amount"])
	assert.Equal(t, int64(0), count(t, db, &models.Vault{}))
}

func TestOrdering(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "")
	p := newPipeline(t, db, false)
	_, err := p.ProcessBlock(ctx, vaultBlock(5))
	require.NoError(t, err)

	_, err = p.ProcessBlock(ctx, vaultBlock(5))
	require.ErrorIs(t, err, ingest.ErrBlockOutOfOrder)
	_, err = p.ProcessBlock(ctx, vaultBlock(4))
	require.ErrorIs(t, err, ingest.ErrBlockOutOfOrder)

	blk := vaultBlock(6)
	blk.Events[4].Index = blk.Events[3].Index
	_, err = p.ProcessBlock(ctx, blk)
	require.ErrorIs(t, err, ingest.ErrEventOutOfOrder)

	// Rejected blocks leave no trace
	var rec models.Block
	found, err := db.Get(ctx, blk.Hash, &rec)
	require.NoError(t, err)
	assert.False(t, found)

	p.SetLastBlock(10)
	_, err = p.ProcessBlock(ctx, vaultBlock(7))
	require.ErrorIs(t, err, ingest.ErrBlockOutOfOrder)
}

func TestReplayDoesNotDoubleApply(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "")
	blk := vaultBlock(100)
	_, err := newPipeline(t, db, false).ProcessBlock(ctx, blk)
	require.NoError(t, err)

	result, err := newPipeline(t, db, false).ProcessBlock(ctx, blk)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Dispatched)
	assert.Equal(t, len(blk.Events), result.Replayed)

	var v models.Vault
	_, err = db.Get(ctx, testutil.AccountID(1), &v)
	require.NoError(t, err)
	assert.Equal(t, "50", v.IssuedTokens.String())
	assert.Equal(t, int64(1), count(t, db, &models.TokenIssueEvent{}))
	assert.Equal(t, int64(len(blk.Events)), count(t, db, &models.Event{}))
}

func TestDecodeErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "")
	p := newPipeline(t, db, false)
	blk := vaultBlock(100)
	idx := uint32(2)
	testutil.AddEvent(
		blk, &idx, "vaultRegistry", "IssueTokens",
		testutil.Account(testutil.AccountID(1)),
	)

	_, err := p.ProcessBlock(ctx, blk)
	var decErr *chain.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "vaultRegistry/IssueTokens", decErr.Key)

	assert.Equal(t, int64(0), count(t, db, &models.Vault{}))
	assert.Equal(t, int64(0), count(t, db, &models.Event{}))
	cp, err := db.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)
	_, ok := p.LastBlock()
	assert.False(t, ok)
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "badger")
	p := newPipeline(t, db, false)
	for _, n := range []uint64{1, 2, 3} {
		_, err := p.ProcessBlock(ctx, vaultBlock(n))
		require.NoError(t, err)
	}
	var numbers []uint64
	err := db.ArchivedBlocks(func(number uint64, payload []byte) error {
		var blk chain.Block
		if err := json.Unmarshal(payload, &blk); err != nil {
			return err
		}
		assert.Equal(t, number, blk.Number)
		assert.Len(t, blk.Events, 7)
		numbers = append(numbers, number)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, numbers)
}

func TestAutocommit(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDatabase(t, "")
	p := newPipeline(t, db, true)
	blk := testutil.NewBlock(42, blockTime)
	origin := testutil.AccountID(9)
	idx := testutil.AddExtrinsic(blk, origin, "oracle", "feedValues", true)
	testutil.AddEvent(
		blk, &idx, oracle.Section, oracle.MethodFeedValues,
		testutil.Account(origin),
		testutil.OracleValues(
			testutil.ExchangeRate("DOT", "1500000000000000000000"),
			testutil.ExchangeRate("KSM", "1234567890000000000"),
		),
	)
	result, err := p.ProcessBlock(ctx, blk)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dispatched)
	assert.Empty(t, result.TouchedVaults)

	var rate models.OracleExchangeRate
	found, err := db.Get(ctx, "42-2-1", &rate)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0.012346", rate.Value.String())
	assert.Equal(t, origin, rate.Origin)

	cp, err := db.Checkpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(42), cp.BlockNumber)
}

func TestNewPipelineRequiresCollaborators(t *testing.T) {
	_, err := ingest.NewPipeline(ingest.PipelineConfig{})
	require.ErrorIs(t, err, ingest.ErrNilRegistry)
	_, err = ingest.NewPipeline(ingest.PipelineConfig{Registry: dispatch.NewRegistry()})
	require.ErrorIs(t, err, ingest.ErrNilDatabase)
}
