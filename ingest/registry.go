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

package ingest

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/vaultledger/chain"
	"github.com/blinklabs-io/vaultledger/database"
	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/blinklabs-io/vaultledger/dispatch"
)

// EnsureBlock returns the stored block with the descriptor's hash, creating
// an empty row when none exists
func EnsureBlock(
	ctx context.Context,
	store database.EntityStore,
	blk *chain.Block,
) (*models.Block, error) {
	rec := &models.Block{}
	found, err := store.Get(ctx, blk.Hash, rec)
	if err != nil {
		return nil, err
	}
	if found {
		return rec, nil
	}
	rec = &models.Block{ID: blk.Hash}
	if err := store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PopulateBlock fills in the header fields of the block row. The fields
// are written once; a block that was already populated is left untouched.
func PopulateBlock(
	ctx context.Context,
	store database.EntityStore,
	blk *chain.Block,
) (*models.Block, error) {
	rec, err := EnsureBlock(ctx, store, blk)
	if err != nil {
		return nil, err
	}
	if rec.Populated {
		return rec, nil
	}
	rec.Number = blk.Number
	rec.ParentHash = blk.ParentHash
	rec.StateRoot = blk.StateRoot
	rec.ExtrinsicRoot = blk.ExtrinsicsRoot
	rec.SpecVersion = blk.SpecVersion
	rec.Timestamp = blk.Timestamp()
	rec.Populated = true
	if err := store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// EnsureExtrinsic returns the extrinsic row with the given hash, creating
// an empty one when none exists
func EnsureExtrinsic(
	ctx context.Context,
	store database.EntityStore,
	hash string,
) (*models.Extrinsic, error) {
	rec := &models.Extrinsic{}
	found, err := store.Get(ctx, hash, rec)
	if err != nil {
		return nil, err
	}
	if found {
		return rec, nil
	}
	rec = &models.Extrinsic{ID: hash}
	if err := store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateExtrinsic writes the decoded form of the extrinsic at idx
func CreateExtrinsic(
	ctx context.Context,
	store database.EntityStore,
	blk *chain.Block,
	idx int,
) (*models.Extrinsic, error) {
	if idx < 0 || idx >= len(blk.Extrinsics) {
		return nil, fmt.Errorf(
			"extrinsic %d out of range in block %d",
			idx,
			blk.Number,
		)
	}
	ext := &blk.Extrinsics[idx]
	rec, err := EnsureExtrinsic(ctx, store, ext.Hash)
	if err != nil {
		return nil, err
	}
	rec.BlockID = blk.Hash
	rec.Section = ext.Section
	rec.Method = ext.Method
	rec.Signer = ext.Signer
	rec.Args = chain.KVData(ext.Args, ext.ArgNames)
	rec.Nonce = 0
	if ext.Nonce != nil {
		rec.Nonce = *ext.Nonce
	}
	rec.IsSigned = ext.IsSigned
	rec.Signature = ext.Signature
	rec.Tip = ext.Tip
	rec.Timestamp = blk.Timestamp()
	rec.IsSuccess = blk.ExtrinsicSucceeded(idx)
	if err := store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// EventID is the deterministic id of the event at index within a block
func EventID(blockNumber uint64, index uint32) string {
	return fmt.Sprintf("%d-%d", blockNumber, index)
}

// EnsureEvent returns the envelope of evt, creating it seeded with the
// owning block when it does not exist
func EnsureEvent(
	ctx context.Context,
	store database.EntityStore,
	blk *chain.Block,
	evt *chain.Event,
) (*models.Event, error) {
	id := EventID(blk.Number, evt.Index)
	rec := &models.Event{}
	found, err := store.Get(ctx, id, rec)
	if err != nil {
		return nil, err
	}
	if found {
		return rec, nil
	}
	rec = &models.Event{
		ID:          id,
		Index:       evt.Index,
		BlockID:     blk.Hash,
		BlockNumber: blk.Number,
		Timestamp:   blk.Timestamp(),
	}
	if err := store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Outcome describes what happened to a single event
type Outcome int

const (
	// OutcomeIgnored means no handler exists for the event key
	OutcomeIgnored Outcome = iota
	// OutcomeDispatched means a handler applied the event
	OutcomeDispatched
	// OutcomeReplayed means the envelope was already written by an earlier run
	OutcomeReplayed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeReplayed:
		return "replayed"
	default:
		return "unknown"
	}
}

// HandleEvent records the envelope of evt, dispatches it, and saves the
// enriched envelope last. It returns the vaults the handler modified.
func HandleEvent(
	ctx context.Context,
	store database.EntityStore,
	registry *dispatch.Registry,
	blk *chain.Block,
	evt *chain.Event,
) (Outcome, []string, error) {
	env, err := EnsureEvent(ctx, store, blk, evt)
	if err != nil {
		return OutcomeIgnored, nil, err
	}
	if env.Applied() {
		return OutcomeReplayed, nil, nil
	}
	var origin string
	if ext := blk.ExtrinsicFor(evt); ext != nil {
		extRec, err := EnsureExtrinsic(ctx, store, ext.Hash)
		if err != nil {
			return OutcomeIgnored, nil, err
		}
		env.ExtrinsicID = &extRec.ID
		origin = ext.Signer
	}
	env.Section = evt.Section
	env.Method = evt.Method
	env.Data = chain.KVData(evt.Data, evt.Names)
	req := &dispatch.Request{
		Store:    store,
		Envelope: env,
		Origin:   origin,
		Args:     evt.Data,
		Key:      dispatch.Key{Section: evt.Section, Method: evt.Method},
	}
	handled, err := registry.Dispatch(ctx, req)
	if err != nil {
		return OutcomeIgnored, nil, fmt.Errorf("event %s: %w", env.ID, err)
	}
	if err := store.Save(ctx, env); err != nil {
		return OutcomeIgnored, nil, err
	}
	if !handled {
		return OutcomeIgnored, nil, nil
	}
	return OutcomeDispatched, req.TouchedVaults(), nil
}
