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

package chain_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/internal/test/testutil"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountID(t *testing.T) {
	upper := "0x" + "AB" + testutil.AccountID(0xcd)[4:]
	v := testutil.Account(upper)
	id, err := v.AccountID()
	require.NoError(t, err)
	assert.Equal(t, "0xab"+testutil.AccountID(0xcd)[4:], id)

	short := testutil.Account("0x1234")
	_, err = short.AccountID()
	require.Error(t, err)

	notString := chain.Value{Type: "AccountId", Raw: json.RawMessage(`42`)}
	_, err = notString.AccountID()
	require.Error(t, err)
}

func TestAmount(t *testing.T) {
	testDefs := []struct {
		raw      string
		expected string
		wantErr  bool
	}{
		{raw: `"1000"`, expected: "1000"},
		{raw: `1000`, expected: "1000"},
		{raw: `"0x3e8"`, expected: "1000"},
		{raw: `"340282366920938463463374607431768211455"`, expected: "340282366920938463463374607431768211455"},
		{raw: `"340282366920938463463374607431768211456"`, wantErr: true},
		{raw: `"-1"`, wantErr: true},
		{raw: `"abc"`, wantErr: true},
	}
	for _, testDef := range testDefs {
		v := chain.Value{Type: "Balance", Raw: json.RawMessage(testDef.raw)}
		amount, err := v.Amount()
		if testDef.wantErr {
			assert.Error(t, err, testDef.raw)
			continue
		}
		require.NoError(t, err, testDef.raw)
		assert.Equal(t, testDef.expected, amount.String())
	}
}

func TestBlockNumberAndBtcAddress(t *testing.T) {
	num, err := testutil.Number("BlockNumber", 1234).BlockNumber()
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), num)

	addr, err := testutil.BtcAddress("00AABB").BtcAddress()
	require.NoError(t, err)
	assert.Equal(t, "0x00aabb", addr)

	_, err = testutil.BtcAddress("0xzz").BtcAddress()
	require.Error(t, err)
}

func TestOracleValues(t *testing.T) {
	v := testutil.OracleValues(
		testutil.ExchangeRate("DOT", "1500000000000000000000"),
		testutil.FeeEstimation("12"),
	)
	values, err := v.OracleValues()
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, chain.OracleKeyExchangeRate, values[0].Kind)
	assert.Equal(t, "DOT", values[0].Key)
	assert.Equal(t, "1500000000000000000000", values[0].Raw.String())
	assert.Equal(t, chain.OracleKeyFeeEstimation, values[1].Kind)

	// Lower case variant names and structured keys
	lower := chain.Value{
		Type: "Vec<(OracleKey, UnsignedFixedPoint)>",
		Raw:  json.RawMessage(`[[{"exchangeRate":{"Token":"KSM"}},"0x10"]]`),
	}
	values, err = lower.OracleValues()
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, chain.OracleKeyExchangeRate, values[0].Kind)
	assert.Equal(t, `{"Token":"KSM"}`, values[0].Key)
	assert.Equal(t, int64(16), values[0].Raw.Int64())

	// Bare unit variants are matched case-insensitively too
	unit := chain.Value{
		Type: "Vec<(OracleKey,UnsignedFixedPoint)>",
		Raw:  json.RawMessage(`[["exchangeRate","1"],["feeestimation","2"],["Other","3"]]`),
	}
	values, err = unit.OracleValues()
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, chain.OracleKeyExchangeRate, values[0].Kind)
	assert.Empty(t, values[0].Key)
	assert.Equal(t, chain.OracleKeyFeeEstimation, values[1].Kind)
	assert.Equal(t, "Other", values[2].Kind)

	bad := chain.Value{
		Type: "Vec<(OracleKey,UnsignedFixedPoint)>",
		Raw:  json.RawMessage(`[["ExchangeRate"]]`),
	}
	_, err = bad.OracleValues()
	require.Error(t, err)
}

func TestSchemaValidate(t *testing.T) {
	schema := chain.Schema{chain.KindAccountID, chain.KindWrapped}
	ok := []chain.Value{
		testutil.Account(testutil.AccountID(1)),
		testutil.Amount("Wrapped", "5"),
	}
	require.NoError(t, schema.Validate("vaultRegistry/IssueTokens", ok))

	err := schema.Validate("vaultRegistry/IssueTokens", ok[:1])
	var decErr *chain.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, -1, decErr.Position)
	assert.Equal(t, "vaultRegistry/IssueTokens", decErr.Key)

	wrongType := []chain.Value{
		testutil.Account(testutil.AccountID(1)),
		testutil.BtcAddress("0x00"),
	}
	err = schema.Validate("vaultRegistry/IssueTokens", wrongType)
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, 1, decErr.Position)
	assert.Equal(t, "Wrapped", decErr.Want)
	assert.Equal(t, "BtcAddress", decErr.Got)
}

func TestArgErrorUnwraps(t *testing.T) {
	_, cause := testutil.BtcAddress("0xzz").BtcAddress()
	require.Error(t, cause)
	err := chain.ArgError("vaultRegistry/RegisterAddress", 1, chain.KindBtcAddress, cause)
	require.ErrorIs(t, err, cause)
	var decErr *chain.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, 1, decErr.Position)
	assert.Equal(t, cause.Error(), decErr.Got)

	sentinel := errors.New("out of range")
	wrapped := chain.ArgError("k/m", 0, chain.KindWrapped, fmt.Errorf("amount: %w", sentinel))
	assert.ErrorIs(t, wrapped, sentinel)
}

func TestKVData(t *testing.T) {
	values := []chain.Value{
		testutil.Account(testutil.AccountID(2)),
		testutil.Number("u128", 77),
	}
	named := chain.KVData(values, []string{"who", "amount"})
	assert.Equal(t, testutil.AccountID(2), named["who"])
	assert.Equal(t, json.Number("77"), named["amount"])

	positional := chain.KVData(values, nil)
	assert.Contains(t, positional, "0")
	assert.Contains(t, positional, "1")
}

func TestBlockTimestampAndSuccess(t *testing.T) {
	ts := time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)
	blk := testutil.NewBlock(10, ts)
	assert.True(t, ts.Equal(blk.Timestamp()))

	ok := testutil.AddExtrinsic(blk, testutil.AccountID(1), "vaultRegistry", "registerVault", true)
	failed := testutil.AddExtrinsic(blk, testutil.AccountID(1), "vaultRegistry", "withdrawCollateral", false)
	assert.True(t, blk.ExtrinsicSucceeded(int(ok)))
	assert.False(t, blk.ExtrinsicSucceeded(int(failed)))
	assert.False(t, blk.ExtrinsicSucceeded(99))

	empty := &chain.Block{Number: 1}
	assert.True(t, empty.Timestamp().IsZero())
}

func TestExtrinsicFor(t *testing.T) {
	blk := testutil.NewBlock(1, time.Unix(0, 0))
	idx := testutil.AddExtrinsic(blk, testutil.AccountID(3), "oracle", "feedValues", true)
	evt := testutil.AddEvent(blk, &idx, "oracle", "FeedValues")
	ext := blk.ExtrinsicFor(evt)
	require.NotNil(t, ext)
	assert.Equal(t, "feedValues", ext.Method)
	assert.Nil(t, blk.ExtrinsicFor(&chain.Event{}))
	bogus := uint32(50)
	assert.Nil(t, blk.ExtrinsicFor(&chain.Event{ExtrinsicIndex: &bogus}))
}

func writeFeed(t *testing.T, w io.Writer, blocks ...*chain.Block) {
	t.Helper()
	enc := json.NewEncoder(w)
	for _, blk := range blocks {
		require.NoError(t, enc.Encode(blk))
	}
}

func drain(t *testing.T, src chain.Source) []uint64 {
	t.Helper()
	var ret []uint64
	for {
		blk, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return ret
		}
		require.NoError(t, err)
		ret = append(ret, blk.Number)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	ts := time.Unix(1_650_000_000, 0)

	plainPath := filepath.Join(dir, "feed.jsonl")
	f, err := os.Create(plainPath)
	require.NoError(t, err)
	writeFeed(t, f, testutil.NewBlock(1, ts), testutil.NewBlock(2, ts))
	require.NoError(t, f.Close())

	src, err := chain.NewFileSource(plainPath)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, drain(t, src))
	require.NoError(t, src.Close())

	zstPath := filepath.Join(dir, "feed.jsonl.zst")
	zf, err := os.Create(zstPath)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(zf)
	require.NoError(t, err)
	writeFeed(t, zw, testutil.NewBlock(7, ts), testutil.NewBlock(8, ts), testutil.NewBlock(9, ts))
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	zsrc, err := chain.NewFileSource(zstPath)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 8, 9}, drain(t, zsrc))
	require.NoError(t, zsrc.Close())
}

func TestFileSourceMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"number": "x"}`), 0o600))
	src, err := chain.NewFileSource(path)
	require.NoError(t, err)
	defer src.Close()
	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestSliceSourceHonorsContext(t *testing.T) {
	src := chain.NewSliceSource(testutil.NewBlock(1, time.Unix(0, 0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []uint64{1}, drain(t, src))
}
