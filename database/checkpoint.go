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

package database

import (
	"context"
	"time"

	"github.com/blinklabs-io/vaultledger/database/models"
)

// Checkpoint returns the last committed block, or nil if nothing was committed yet
func (d *Database) Checkpoint(ctx context.Context) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	found, err := d.Get(ctx, models.IngestCheckpointID, &cp)
	if err != nil || !found {
		return nil, err
	}
	return &cp, nil
}

// SaveCheckpoint records number and hash as the last committed block. The
// checkpoint only moves forward: a number at or below the stored one is
// ignored.
func SaveCheckpoint(
	ctx context.Context,
	store EntityStore,
	number uint64,
	hash string,
) error {
	var cp models.Checkpoint
	found, err := store.Get(ctx, models.IngestCheckpointID, &cp)
	if err != nil {
		return err
	}
	if found && number <= cp.BlockNumber {
		return nil
	}
	return store.Save(ctx, &models.Checkpoint{
		ID:          models.IngestCheckpointID,
		BlockNumber: number,
		BlockHash:   hash,
		UpdatedAt:   time.Now().UTC(),
	})
}
