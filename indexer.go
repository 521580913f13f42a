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

package vaultledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/database"
	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/blinklabs-io/vaultledger/dispatch"
	"github.com/blinklabs-io/vaultledger/event"
	"github.com/blinklabs-io/vaultledger/ingest"
	"github.com/blinklabs-io/vaultledger/oracle"
	"github.com/blinklabs-io/vaultledger/vault"
)

const defaultShutdownTimeout = 30 * time.Second

// Indexer wires the entity store, the dispatch registry and the ingest
// pipeline together and drives blocks from a chain.Source through them
type Indexer struct {
	config        Config
	logger        *slog.Logger
	db            *database.Database
	registry      *dispatch.Registry
	ledger        *vault.Ledger
	feed          *oracle.Feed
	pipeline      *ingest.Pipeline
	eventBus      *event.EventBus
	shutdownFuncs []func(context.Context) error
	stopErr       error
	stopOnce      sync.Once
}

func New(cfg Config) (*Indexer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	i := &Indexer{
		config: cfg,
		logger: cfg.logger.With("component", "indexer"),
	}
	if err := i.setupTracing(); err != nil {
		return nil, err
	}
	db, err := database.New(&database.Config{
		Logger:         cfg.logger,
		PromRegistry:   cfg.promRegistry,
		DataDir:        cfg.dataDir,
		MetadataPlugin: cfg.metadataPlugin,
		MetadataDSN:    cfg.metadataDSN,
		BlobPlugin:     cfg.blobPlugin,
		BlobDSN:        cfg.blobDSN,
	})
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, errors.Join(
			fmt.Errorf("failed to open database: %w", err),
			i.shutdown(),
		)
	}
	i.db = db
	if err := i.init(); err != nil {
		return nil, errors.Join(err, i.Stop())
	}
	return i, nil
}

func (i *Indexer) init() error {
	i.registry = i.config.registry
	if i.registry == nil {
		i.registry = dispatch.NewRegistry()
	}
	i.ledger = vault.NewLedger(
		vault.WithLogger(i.config.logger),
		vault.WithUnderflowPolicy(i.config.underflowPolicy),
	)
	if err := i.ledger.Register(i.registry); err != nil {
		return fmt.Errorf("failed to register vault handlers: %w", err)
	}
	i.feed = oracle.NewFeed(
		oracle.WithLogger(i.config.logger),
		oracle.WithWriteLimit(i.config.disjointWriteLimit),
	)
	if err := i.feed.Register(i.registry); err != nil {
		return fmt.Errorf("failed to register oracle handlers: %w", err)
	}
	pipeline, err := ingest.NewPipeline(ingest.PipelineConfig{
		Logger:       i.config.logger,
		Database:     i.db,
		Registry:     i.registry,
		PromRegistry: i.config.promRegistry,
		Autocommit:   i.config.autocommit,
	})
	if err != nil {
		return err
	}
	i.pipeline = pipeline
	i.eventBus = event.NewEventBus(i.config.promRegistry, i.config.logger)
	// Resume after the last committed block
	cp, err := i.db.Checkpoint(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp != nil {
		i.pipeline.SetLastBlock(cp.BlockNumber)
		i.logger.Info(
			"resuming from checkpoint",
			"number", cp.BlockNumber,
			"hash", cp.BlockHash,
		)
	}
	return nil
}

// Run processes blocks from src until it is exhausted or ctx is done. Blocks
// at or below the last committed block are skipped.
func (i *Indexer) Run(ctx context.Context, src chain.Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		blk, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if last, ok := i.pipeline.LastBlock(); ok && blk.Number <= last {
			i.logger.Debug(
				"skipping already committed block",
				"number", blk.Number,
				"hash", blk.Hash,
			)
			continue
		}
		if _, err := i.ProcessBlock(ctx, blk); err != nil {
			return err
		}
	}
}

// ProcessBlock applies a single block and announces the result on the event bus
func (i *Indexer) ProcessBlock(
	ctx context.Context,
	blk *chain.Block,
) (*ingest.BlockResult, error) {
	result, err := i.pipeline.ProcessBlock(ctx, blk)
	if err != nil {
		return nil, err
	}
	i.eventBus.PublishAsync(
		event.BlockProcessedEventType,
		event.NewEvent(
			event.BlockProcessedEventType,
			event.BlockProcessedEvent{
				BlockTime:   blk.Timestamp(),
				BlockHash:   result.Hash,
				BlockNumber: result.Number,
				Dispatched:  result.Dispatched,
				Ignored:     result.Ignored,
				Replayed:    result.Replayed,
			},
		),
	)
	for _, id := range result.TouchedVaults {
		i.eventBus.PublishAsync(
			event.VaultUpdatedEventType,
			event.NewEvent(
				event.VaultUpdatedEventType,
				event.VaultUpdatedEvent{
					VaultID:     id,
					BlockHash:   result.Hash,
					BlockNumber: result.Number,
				},
			),
		)
	}
	return result, nil
}

// Replay re-applies every archived block in block order and returns the
// number of blocks processed. Events already written are not dispatched
// again, so replaying over an intact store leaves every vault unchanged.
func (i *Indexer) Replay(ctx context.Context) (int, error) {
	if !i.db.HasArchive() {
		return 0, errors.New("no block archive configured")
	}
	pipeline, err := ingest.NewPipeline(ingest.PipelineConfig{
		Logger:     i.config.logger,
		Database:   i.db,
		Registry:   i.registry,
		Autocommit: i.config.autocommit,
	})
	if err != nil {
		return 0, err
	}
	count := 0
	err = i.db.ArchivedBlocks(func(number uint64, payload []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var blk chain.Block
		if err := json.Unmarshal(payload, &blk); err != nil {
			return fmt.Errorf("decode archived block %d: %w", number, err)
		}
		if _, err := pipeline.ProcessBlock(ctx, &blk); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	if last, ok := pipeline.LastBlock(); ok {
		if cur, ok := i.pipeline.LastBlock(); !ok || last > cur {
			i.pipeline.SetLastBlock(last)
		}
	}
	i.logger.Info("replay complete", "blocks", count)
	return count, nil
}

// Vault returns the stored state of the vault with the given account id
func (i *Indexer) Vault(ctx context.Context, id string) (*models.Vault, error) {
	return i.ledger.Get(ctx, i.db, id)
}

// Checkpoint returns the last committed block, or nil before the first block
func (i *Indexer) Checkpoint(ctx context.Context) (*models.Checkpoint, error) {
	return i.db.Checkpoint(ctx)
}

// EventBus returns the bus on which committed blocks are announced
func (i *Indexer) EventBus() *event.EventBus {
	return i.eventBus
}

func (i *Indexer) Database() *database.Database {
	return i.db
}

func (i *Indexer) Registry() *dispatch.Registry {
	return i.registry
}

// Stop releases the indexer's resources. It is safe to call more than once.
func (i *Indexer) Stop() error {
	i.stopOnce.Do(func() {
		i.logger.Debug("shutting down indexer")
		var errs []error
		if i.eventBus != nil {
			i.eventBus.Stop()
		}
		if i.db != nil {
			if err := i.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("database close: %w", err))
			}
		}
		if err := i.shutdown(); err != nil {
			errs = append(errs, err)
		}
		i.stopErr = errors.Join(errs...)
	})
	return i.stopErr
}

func (i *Indexer) shutdown() error {
	timeout := i.config.shutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var errs []error
	for _, fn := range i.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	i.shutdownFuncs = nil
	return errors.Join(errs...)
}
