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

// Package ingest materializes blocks, extrinsics and events into the entity
// store and feeds each event through the dispatch registry
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/database"
	"github.com/blinklabs-io/vaultledger/dispatch"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrBlockOutOfOrder = errors.New("block out of order")
	ErrEventOutOfOrder = errors.New("event out of order")
	ErrNilRegistry     = errors.New("dispatch registry is required")
	ErrNilDatabase     = errors.New("database is required")
)

type PipelineConfig struct {
	Logger       *slog.Logger
	Database     *database.Database
	Registry     *dispatch.Registry
	PromRegistry prometheus.Registerer
	// Autocommit writes each entity as it is produced instead of committing
	// the block in one transaction
	Autocommit bool
}

// BlockResult summarizes the effect of one processed block
type BlockResult struct {
	Hash          string
	TouchedVaults []string
	Number        uint64
	Dispatched    int
	Ignored       int
	Replayed      int
}

// Pipeline applies blocks in chain order. It is safe for concurrent use but
// blocks are processed one at a time.
type Pipeline struct {
	config    PipelineConfig
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   pipelineMetrics
	lastBlock *uint64
	mu        sync.Mutex
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Registry == nil {
		return nil, ErrNilRegistry
	}
	if cfg.Database == nil {
		return nil, ErrNilDatabase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	p := &Pipeline{
		config: cfg,
		logger: cfg.Logger.With("component", "ingest"),
		tracer: otel.Tracer("github.com/blinklabs-io/vaultledger/ingest"),
	}
	p.metrics.init(cfg.PromRegistry)
	return p, nil
}

// SetLastBlock records number as already applied, so that only later blocks
// are accepted
func (p *Pipeline) SetLastBlock(number uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastBlock = &number
}

// LastBlock returns the number of the last applied block
func (p *Pipeline) LastBlock() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastBlock == nil {
		return 0, false
	}
	return *p.lastBlock, true
}

func (p *Pipeline) checkOrder(blk *chain.Block) error {
	if p.lastBlock != nil && blk.Number <= *p.lastBlock {
		return fmt.Errorf(
			"%w: block %d after %d",
			ErrBlockOutOfOrder,
			blk.Number,
			*p.lastBlock,
		)
	}
	for i := 1; i < len(blk.Events); i++ {
		if blk.Events[i].Index <= blk.Events[i-1].Index {
			return fmt.Errorf(
				"%w: block %d event index %d after %d",
				ErrEventOutOfOrder,
				blk.Number,
				blk.Events[i].Index,
				blk.Events[i-1].Index,
			)
		}
	}
	return nil
}

// ProcessBlock writes the block, its extrinsics and its events, dispatching
// each event in index order, and advances the checkpoint
func (p *Pipeline) ProcessBlock(
	ctx context.Context,
	blk *chain.Block,
) (*BlockResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, span := p.tracer.Start(
		ctx,
		"ingest.ProcessBlock",
		trace.WithAttributes(
			attribute.Int64("block.number", int64(blk.Number)), //nolint:gosec
			attribute.String("block.hash", blk.Hash),
			attribute.Int("block.events", len(blk.Events)),
		),
	)
	defer span.End()
	start := time.Now()
	result, err := p.processBlock(ctx, blk)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error(
			"failed to process block",
			"number", blk.Number,
			"hash", blk.Hash,
			"error", err,
		)
		return nil, err
	}
	number := blk.Number
	p.lastBlock = &number
	p.metrics.blockNum.Set(float64(blk.Number))
	p.metrics.blocksProcessed.Inc()
	p.metrics.blockLatency.Observe(time.Since(start).Seconds())
	p.metrics.events.WithLabelValues(OutcomeDispatched.String()).
		Add(float64(result.Dispatched))
	p.metrics.events.WithLabelValues(OutcomeIgnored.String()).
		Add(float64(result.Ignored))
	p.metrics.events.WithLabelValues(OutcomeReplayed.String()).
		Add(float64(result.Replayed))
	p.metrics.vaultsTouched.Add(float64(len(result.TouchedVaults)))
	p.logger.Debug(
		"processed block",
		"number", result.Number,
		"hash", result.Hash,
		"dispatched", result.Dispatched,
		"ignored", result.Ignored,
		"replayed", result.Replayed,
	)
	return result, nil
}

func (p *Pipeline) processBlock(
	ctx context.Context,
	blk *chain.Block,
) (*BlockResult, error) {
	if err := p.checkOrder(blk); err != nil {
		return nil, err
	}
	db := p.config.Database
	var payload []byte
	if db.HasArchive() {
		var err error
		payload, err = json.Marshal(blk)
		if err != nil {
			return nil, fmt.Errorf("encode block %d: %w", blk.Number, err)
		}
	}
	if p.config.Autocommit {
		result, err := p.apply(ctx, db, blk)
		if err != nil {
			return nil, err
		}
		txn := db.Transaction(true)
		err = txn.Do(func(txn *database.Txn) error {
			if err := txn.ArchiveBlock(blk.Number, payload); err != nil {
				return err
			}
			return database.SaveCheckpoint(ctx, txn, blk.Number, blk.Hash)
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	var result *BlockResult
	txn := db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		var err error
		result, err = p.apply(ctx, txn, blk)
		if err != nil {
			return err
		}
		if payload != nil {
			if err := txn.ArchiveBlock(blk.Number, payload); err != nil {
				return err
			}
		}
		return database.SaveCheckpoint(ctx, txn, blk.Number, blk.Hash)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) apply(
	ctx context.Context,
	store database.EntityStore,
	blk *chain.Block,
) (*BlockResult, error) {
	result := &BlockResult{
		Number: blk.Number,
		Hash:   blk.Hash,
	}
	if _, err := PopulateBlock(ctx, store, blk); err != nil {
		return nil, fmt.Errorf("block %d: %w", blk.Number, err)
	}
	for i := range blk.Extrinsics {
		if _, err := CreateExtrinsic(ctx, store, blk, i); err != nil {
			return nil, fmt.Errorf(
				"block %d extrinsic %d: %w",
				blk.Number,
				i,
				err,
			)
		}
	}
	for i := range blk.Events {
		outcome, touched, err := HandleEvent(
			ctx,
			store,
			p.config.Registry,
			blk,
			&blk.Events[i],
		)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", blk.Number, err)
		}
		switch outcome {
		case OutcomeDispatched:
			result.Dispatched++
		case OutcomeIgnored:
			result.Ignored++
		case OutcomeReplayed:
			result.Replayed++
		}
		for _, id := range touched {
			if !slices.Contains(result.TouchedVaults, id) {
				result.TouchedVaults = append(result.TouchedVaults, id)
			}
		}
	}
	return result, nil
}
