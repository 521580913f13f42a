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

package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/dispatch"
	"github.com/blinklabs-io/vaultledger/internal/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issueKey = dispatch.Key{Section: "vaultRegistry", Method: "IssueTokens"}

func TestRegistryDispatch(t *testing.T) {
	reg := dispatch.NewRegistry()
	var calls int
	err := reg.Register(
		issueKey,
		dispatch.NewHandler(
			chain.Schema{chain.KindAccountID, chain.KindWrapped},
			func(_ context.Context, req *dispatch.Request) error {
				calls++
				id, err := req.Args[0].AccountID()
				if err != nil {
					return err
				}
				req.MarkVault(id)
				req.MarkVault(id)
				return nil
			},
		),
	)
	require.NoError(t, err)

	req := &dispatch.Request{
		Key: issueKey,
		Args: []chain.Value{
			testutil.Account(testutil.AccountID(1)),
			testutil.Amount("Wrapped", "50"),
		},
	}
	handled, err := reg.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{testutil.AccountID(1)}, req.TouchedVaults())
}

func TestRegistryUnknownKey(t *testing.T) {
	reg := dispatch.NewRegistry()
	handled, err := reg.Dispatch(
		context.Background(),
		&dispatch.Request{Key: dispatch.Key{Section: "balances", Method: "Transfer"}},
	)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRegistryDuplicate(t *testing.T) {
	reg := dispatch.NewRegistry()
	h := dispatch.NewHandler(nil, func(context.Context, *dispatch.Request) error { return nil })
	require.NoError(t, reg.Register(issueKey, h))
	err := reg.Register(issueKey, h)
	require.ErrorIs(t, err, dispatch.ErrDuplicateHandler)

	err = reg.Register(dispatch.Key{Section: "vaultRegistry"}, h)
	require.ErrorIs(t, err, dispatch.ErrInvalidKey)
}

func TestRegistrySchemaMismatch(t *testing.T) {
	reg := dispatch.NewRegistry()
	var called bool
	require.NoError(t, reg.Register(
		issueKey,
		dispatch.NewHandler(
			chain.Schema{chain.KindAccountID, chain.KindWrapped},
			func(context.Context, *dispatch.Request) error {
				called = true
				return nil
			},
		),
	))
	_, err := reg.Dispatch(context.Background(), &dispatch.Request{
		Key:  issueKey,
		Args: []chain.Value{testutil.Account(testutil.AccountID(1))},
	})
	var decErr *chain.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "vaultRegistry/IssueTokens", decErr.Key)
	assert.False(t, called)
}

func TestRegistryApplyError(t *testing.T) {
	reg := dispatch.NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, reg.Register(
		issueKey,
		dispatch.NewHandler(nil, func(context.Context, *dispatch.Request) error {
			return boom
		}),
	))
	handled, err := reg.Dispatch(context.Background(), &dispatch.Request{Key: issueKey})
	require.ErrorIs(t, err, boom)
	assert.False(t, handled)
	assert.Contains(t, err.Error(), "apply vaultRegistry/IssueTokens")
}

func TestKeys(t *testing.T) {
	reg := dispatch.NewRegistry()
	h := dispatch.NewHandler(nil, func(context.Context, *dispatch.Request) error { return nil })
	for _, s := range []string{"vaultRegistry/RegisterVault", "oracle/FeedValues", "vaultRegistry/BanVault"} {
		key, err := dispatch.ParseKey(s)
		require.NoError(t, err)
		require.NoError(t, reg.Register(key, h))
	}
	keys := reg.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, "oracle/FeedValues", keys[0].String())
	assert.Equal(t, "vaultRegistry/BanVault", keys[1].String())

	_, err := dispatch.ParseKey("noslash")
	require.ErrorIs(t, err, dispatch.ErrInvalidKey)
}
