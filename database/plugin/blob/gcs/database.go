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

package gcs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/blinklabs-io/vaultledger/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const DefaultOpTimeout = 30 * time.Second

type pendingWrite struct {
	val     []byte
	deleted bool
}

// gcsTxn buffers writes until Commit. Objects are written one by one, so a
// failed commit may leave a subset of them in the bucket.
type gcsTxn struct {
	store     *BlobStoreGCS
	writes    map[string]pendingWrite
	readWrite bool
	finished  bool
}

func (t *gcsTxn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if !t.readWrite || len(t.writes) == 0 {
		return nil
	}
	names := make([]string, 0, len(t.writes))
	for name := range t.writes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		w := t.writes[name]
		var err error
		if w.deleted {
			err = t.store.deleteObject(name)
		} else {
			err = t.store.writeObject(name, w.val)
		}
		if err != nil {
			return fmt.Errorf("gcs blob: commit %s: %w", name, err)
		}
	}
	return nil
}

func (t *gcsTxn) Rollback() error {
	t.finished = true
	t.writes = nil
	return nil
}

// BlobStoreGCS keeps the block archive in a Google Cloud Storage bucket.
// Binary keys are hex encoded into object names, which preserves their order.
type BlobStoreGCS struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	client          *storage.Client
	bucket          *storage.BucketHandle
	metrics         *blobMetrics
	bucketName      string
	prefix          string
	credentialsFile string
	opTimeout       time.Duration
}

// New creates a GCS blob store. The bucket client is created by Start.
func New(opts ...BlobStoreGCSOptionFunc) (*BlobStoreGCS, error) {
	d := &BlobStoreGCS{
		opTimeout: DefaultOpTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	d.logger = d.logger.With("component", "database", "plugin", "gcs")
	if d.bucketName == "" {
		return nil, errors.New("gcs blob: bucket not set")
	}
	return d, nil
}

// ValidateCredentials checks that a configured key file exists
func ValidateCredentials(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("GCS credentials file does not exist: %s", path)
		}
		return fmt.Errorf("failed to access GCS credentials file: %w", err)
	}
	return nil
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreGCS) Start() error {
	if err := ValidateCredentials(d.credentialsFile); err != nil {
		return err
	}
	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if d.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(d.credentialsFile),
		)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.opTimeout)
	defer cancel()
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("gcs blob: failed to create storage client: %w", err)
	}
	d.client = client
	d.bucket = client.Bucket(d.bucketName)
	if d.promRegistry != nil {
		d.metrics = newBlobMetrics(d.promRegistry)
	}
	d.logger.Debug(
		"opened bucket",
		"bucket", d.bucketName,
		"prefix", d.prefix,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreGCS) Stop() error {
	return d.Close()
}

func (d *BlobStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	d.bucket = nil
	return err
}

func (d *BlobStoreGCS) objectName(key []byte) string {
	return d.prefix + hex.EncodeToString(key)
}

func (d *BlobStoreGCS) keyFromObject(name string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(name, d.prefix))
}

func (d *BlobStoreGCS) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.opTimeout)
}

func (d *BlobStoreGCS) readObject(name string) ([]byte, error) {
	if d.bucket == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext()
	defer cancel()
	r, err := d.bucket.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	defer r.Close()
	val, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	d.metrics.observe("get", len(val))
	return val, nil
}

func (d *BlobStoreGCS) writeObject(name string, val []byte) error {
	if d.bucket == nil {
		return types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext()
	defer cancel()
	w := d.bucket.Object(name).NewWriter(ctx)
	if _, err := w.Write(val); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	d.metrics.observe("set", len(val))
	return nil
}

func (d *BlobStoreGCS) deleteObject(name string) error {
	if d.bucket == nil {
		return types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext()
	defer cancel()
	err := d.bucket.Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	d.metrics.observe("delete", 0)
	return nil
}

// NewTransaction creates a transaction that buffers writes until Commit
func (d *BlobStoreGCS) NewTransaction(update bool) types.Txn {
	return &gcsTxn{
		store:     d,
		writes:    make(map[string]pendingWrite),
		readWrite: update,
	}
}

func (d *BlobStoreGCS) validateTxn(txn types.Txn) (*gcsTxn, error) {
	if txn == nil {
		return nil, types.ErrNilTxn
	}
	gt, ok := txn.(*gcsTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if gt.store != d {
		return nil, errors.New("transaction from different store")
	}
	if gt.finished {
		return nil, errors.New("transaction already finished")
	}
	return gt, nil
}

// Get returns the value for key, seeing writes buffered in txn
func (d *BlobStoreGCS) Get(txn types.Txn, key []byte) ([]byte, error) {
	gt, err := d.validateTxn(txn)
	if err != nil {
		return nil, err
	}
	name := d.objectName(key)
	if w, ok := gt.writes[name]; ok {
		if w.deleted {
			return nil, types.ErrBlobKeyNotFound
		}
		return slices.Clone(w.val), nil
	}
	return d.readObject(name)
}

func (d *BlobStoreGCS) Set(txn types.Txn, key, val []byte) error {
	gt, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if !gt.readWrite {
		return errors.New("gcs blob: write in read-only transaction")
	}
	gt.writes[d.objectName(key)] = pendingWrite{val: slices.Clone(val)}
	return nil
}

func (d *BlobStoreGCS) Delete(txn types.Txn, key []byte) error {
	gt, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if !gt.readWrite {
		return errors.New("gcs blob: delete in read-only transaction")
	}
	gt.writes[d.objectName(key)] = pendingWrite{deleted: true}
	return nil
}

// Iterate walks the committed objects whose keys start with prefix, in key
// order. Writes buffered in txn are not visible.
func (d *BlobStoreGCS) Iterate(
	txn types.Txn,
	prefix []byte,
	fn func(key, val []byte) error,
) error {
	if _, err := d.validateTxn(txn); err != nil {
		return err
	}
	if d.bucket == nil {
		return types.ErrBlobStoreUnavailable
	}
	ctx := context.Background()
	it := d.bucket.Objects(ctx, &storage.Query{
		Prefix:     d.objectName(prefix),
		Projection: storage.ProjectionNoACL,
	})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		key, err := d.keyFromObject(attrs.Name)
		if err != nil {
			// Not one of ours
			continue
		}
		val, err := d.readObject(attrs.Name)
		if err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
}
