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
	"fmt"
	"sync"

	"github.com/blinklabs-io/vaultledger/database/types"
	"github.com/klauspost/compress/zstd"
)

var (
	archiveEncoder   *zstd.Encoder
	archiveDecoder   *zstd.Decoder
	archiveCodecOnce sync.Once
	archiveCodecErr  error
)

func archiveCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	archiveCodecOnce.Do(func() {
		archiveEncoder, archiveCodecErr = zstd.NewWriter(
			nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
		)
		if archiveCodecErr != nil {
			return
		}
		archiveDecoder, archiveCodecErr = zstd.NewReader(nil)
	})
	return archiveEncoder, archiveDecoder, archiveCodecErr
}

// HasArchive reports whether a blob store is configured for raw blocks
func (d *Database) HasArchive() bool {
	return d.blob != nil
}

// ArchiveBlock stores the raw block payload as part of the transaction.
// It is a no-op when no blob store is configured.
func (t *Txn) ArchiveBlock(number uint64, payload []byte) error {
	if t.blobTxn == nil {
		return nil
	}
	enc, _, err := archiveCodec()
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(payload, nil)
	if err := t.db.blob.Set(t.blobTxn, types.BlockBlobKey(number), compressed); err != nil {
		return fmt.Errorf("archive block %d: %w", number, err)
	}
	return nil
}

// ArchivedBlock returns the raw payload stored for a block number
func (d *Database) ArchivedBlock(number uint64) ([]byte, error) {
	if d.blob == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	_, dec, err := archiveCodec()
	if err != nil {
		return nil, err
	}
	txn := d.blob.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	val, err := d.blob.Get(txn, types.BlockBlobKey(number))
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(val, nil)
}

// ArchivedBlocks calls fn for each archived block in ascending block order
func (d *Database) ArchivedBlocks(
	fn func(number uint64, payload []byte) error,
) error {
	if d.blob == nil {
		return types.ErrBlobStoreUnavailable
	}
	_, dec, err := archiveCodec()
	if err != nil {
		return err
	}
	txn := d.blob.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	return d.blob.Iterate(
		txn,
		[]byte(types.BlockBlobKeyPrefix),
		func(key, val []byte) error {
			number, ok := types.BlockNumberFromBlobKey(key)
			if !ok {
				return nil
			}
			payload, err := dec.DecodeAll(val, nil)
			if err != nil {
				return fmt.Errorf("decode archived block %d: %w", number, err)
			}
			return fn(number, payload)
		},
	)
}
