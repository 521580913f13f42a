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

package testutil

import (
	"testing"

	"github.com/blinklabs-io/vaultledger/database"
	"github.com/stretchr/testify/require"
)

// NewDatabase opens an in-memory database that is closed when the test ends.
// An empty blobPlugin disables the block archive.
func NewDatabase(t *testing.T, blobPlugin string) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{BlobPlugin: blobPlugin})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
