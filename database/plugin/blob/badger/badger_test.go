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

package badger

import (
	"errors"
	"testing"

	"github.com/blinklabs-io/vaultledger/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetIterate(t *testing.T) {
	store, err := New(WithPromRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer store.Close()

	txn := store.NewTransaction(true)
	for _, num := range []uint64{300, 2, 17} {
		require.NoError(
			t,
			store.Set(txn, types.BlockBlobKey(num), []byte{byte(num)}),
		)
	}
	require.NoError(t, store.Set(txn, []byte("other"), []byte("x")))
	require.NoError(t, txn.Commit())

	readTxn := store.NewTransaction(false)
	defer readTxn.Rollback() //nolint:errcheck
	val, err := store.Get(readTxn, types.BlockBlobKey(17))
	require.NoError(t, err)
	assert.Equal(t, []byte{17}, val)
	_, err = store.Get(readTxn, types.BlockBlobKey(18))
	assert.True(t, errors.Is(err, types.ErrBlobKeyNotFound))

	var seen []uint64
	err = store.Iterate(
		readTxn,
		[]byte(types.BlockBlobKeyPrefix),
		func(key, _ []byte) error {
			num, ok := types.BlockNumberFromBlobKey(key)
			require.True(t, ok)
			seen = append(seen, num)
			return nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 17, 300}, seen)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store, err := New()
	require.NoError(t, err)
	defer store.Close()
	txn := store.NewTransaction(true)
	require.NoError(t, store.Set(txn, []byte("k"), []byte("v")))
	require.NoError(t, txn.Rollback())
	// Finished transactions are rejected
	require.Error(t, store.Set(txn, []byte("k"), []byte("v")))

	readTxn := store.NewTransaction(false)
	defer readTxn.Rollback() //nolint:errcheck
	_, err = store.Get(readTxn, []byte("k"))
	assert.True(t, errors.Is(err, types.ErrBlobKeyNotFound))
}

func TestCommitTimestamp(t *testing.T) {
	store, err := New()
	require.NoError(t, err)
	defer store.Close()
	_, err = store.GetCommitTimestamp()
	assert.True(t, errors.Is(err, types.ErrBlobKeyNotFound))
	txn := store.NewTransaction(true)
	require.NoError(t, store.SetCommitTimestamp(1700000000000, txn))
	require.NoError(t, txn.Commit())
	ts, err := store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), ts)
}

func TestOptions(t *testing.T) {
	b := &BlobStoreBadger{}
	WithDataDir("/tmp/test")(b)
	WithBlockCacheSize(123456789)(b)
	WithIndexCacheSize(987654321)(b)
	WithGc(false)(b)
	assert.Equal(t, "/tmp/test", b.dataDir)
	assert.Equal(t, uint64(123456789), b.blockCacheSize)
	assert.Equal(t, uint64(987654321), b.indexCacheSize)
	assert.False(t, b.gcEnabled)
}
