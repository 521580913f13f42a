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
	"errors"
	"fmt"

	"github.com/blinklabs-io/vaultledger/database/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultDisjointWriteLimit bounds the fan-out of SaveDisjoint
const DefaultDisjointWriteLimit = 8

// ErrOverlappingBatch is returned when a disjoint batch names the same entity twice
var ErrOverlappingBatch = errors.New("batch entities are not disjoint")

// EntityStore is the persistence contract used by the ledger components.
// Get reports whether a row with the id exists and loads it into dst.
// Save creates or fully replaces the row with the entity's id.
type EntityStore interface {
	Get(ctx context.Context, id string, dst models.Entity) (bool, error)
	Save(ctx context.Context, entity models.Entity) error
}

// ConcurrentStore is implemented by stores that accept parallel writes
type ConcurrentStore interface {
	Concurrent() bool
}

func saveEntity(db *gorm.DB, entity models.Entity) error {
	result := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(entity)
	if result.Error != nil {
		return fmt.Errorf(
			"save %s %q: %w",
			entity.TableName(),
			entity.EntityID(),
			result.Error,
		)
	}
	return nil
}

// SaveDisjoint writes a batch of entities that must not share a key. The
// writes run in parallel when the store allows it and in order otherwise.
func SaveDisjoint(
	ctx context.Context,
	store EntityStore,
	entities []models.Entity,
	limit int,
) error {
	seen := make(map[string]struct{}, len(entities))
	for _, entity := range entities {
		key := entity.TableName() + "/" + entity.EntityID()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s", ErrOverlappingBatch, key)
		}
		seen[key] = struct{}{}
	}
	cs, ok := store.(ConcurrentStore)
	if !ok || !cs.Concurrent() || len(entities) < 2 {
		for _, entity := range entities {
			if err := store.Save(ctx, entity); err != nil {
				return err
			}
		}
		return nil
	}
	if limit <= 0 {
		limit = DefaultDisjointWriteLimit
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, entity := range entities {
		g.Go(func() error {
			return store.Save(gctx, entity)
		})
	}
	return g.Wait()
}
