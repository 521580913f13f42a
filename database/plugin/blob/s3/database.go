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

package s3

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/blinklabs-io/vaultledger/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultOpTimeout = 60 * time.Second

type pendingWrite struct {
	val     []byte
	deleted bool
}

// s3Txn buffers writes until Commit. S3 has no multi-object transactions, so
// a failed commit may leave a subset of the objects written.
type s3Txn struct {
	store     *BlobStoreS3
	writes    map[string]pendingWrite
	readWrite bool
	finished  bool
}

func (t *s3Txn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if !t.readWrite || len(t.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.writes))
	for key := range t.writes {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		w := t.writes[key]
		var err error
		if w.deleted {
			err = t.store.deleteObject(key)
		} else {
			err = t.store.putObject(key, w.val)
		}
		if err != nil {
			return fmt.Errorf("s3 blob: commit %s: %w", key, err)
		}
	}
	return nil
}

func (t *s3Txn) Rollback() error {
	t.finished = true
	t.writes = nil
	return nil
}

// BlobStoreS3 keeps the block archive in an AWS S3 bucket, or any service
// speaking the S3 API. Binary keys are hex encoded into object keys, which
// preserves their order in listings.
type BlobStoreS3 struct {
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	client       *s3.Client
	metrics      *blobMetrics
	bucket       string
	prefix       string
	region       string
	endpoint     string
	opTimeout    time.Duration
}

// New creates an S3 blob store. The AWS config is loaded by Start.
func New(opts ...BlobStoreS3OptionFunc) (*BlobStoreS3, error) {
	d := &BlobStoreS3{
		opTimeout: DefaultOpTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	d.logger = d.logger.With("component", "database", "plugin", "s3")
	if d.bucket == "" {
		return nil, errors.New("s3 blob: bucket not set")
	}
	return d, nil
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreS3) Start() error {
	ctx, cancel := d.opContext()
	defer cancel()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("s3 blob: load default AWS config: %w", err)
	}
	if d.region != "" {
		awsCfg.Region = d.region
	}
	d.client = s3.NewFromConfig(awsCfg, d.clientOptions)
	if d.promRegistry != nil {
		d.metrics = newBlobMetrics(d.promRegistry)
	}
	d.logger.Debug(
		"opened bucket",
		"bucket", d.bucket,
		"prefix", d.prefix,
		"region", awsCfg.Region,
	)
	return nil
}

func (d *BlobStoreS3) clientOptions(o *s3.Options) {
	if d.endpoint == "" {
		return
	}
	o.BaseEndpoint = aws.String(d.endpoint)
	o.UsePathStyle = true
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreS3) Stop() error {
	return d.Close()
}

// Close drops the client. The S3 client holds no connections that need closing.
func (d *BlobStoreS3) Close() error {
	d.client = nil
	return nil
}

func (d *BlobStoreS3) objectKey(key []byte) string {
	return d.prefix + hex.EncodeToString(key)
}

func (d *BlobStoreS3) keyFromObject(name string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(name, d.prefix))
}

func (d *BlobStoreS3) opContext() (context.Context, context.CancelFunc) {
	timeout := d.opTimeout
	if timeout == 0 {
		timeout = DefaultOpTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &noSuchKey)
}

func (d *BlobStoreS3) getObject(name string) ([]byte, error) {
	if d.client == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext()
	defer cancel()
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	val, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	d.metrics.observe("get", len(val))
	return val, nil
}

func (d *BlobStoreS3) putObject(name string, val []byte) error {
	if d.client == nil {
		return types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext()
	defer cancel()
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(val),
	})
	if err != nil {
		return err
	}
	d.metrics.observe("set", len(val))
	return nil
}

func (d *BlobStoreS3) deleteObject(name string) error {
	if d.client == nil {
		return types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext()
	defer cancel()
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(name),
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	d.metrics.observe("delete", 0)
	return nil
}

// NewTransaction creates a transaction that buffers writes until Commit
func (d *BlobStoreS3) NewTransaction(update bool) types.Txn {
	return &s3Txn{
		store:     d,
		writes:    make(map[string]pendingWrite),
		readWrite: update,
	}
}

func (d *BlobStoreS3) validateTxn(txn types.Txn) (*s3Txn, error) {
	if txn == nil {
		return nil, types.ErrNilTxn
	}
	t, ok := txn.(*s3Txn)
	if !ok || t.store != d {
		return nil, types.ErrTxnWrongType
	}
	if t.finished {
		return nil, errors.New("transaction already finished")
	}
	return t, nil
}

// Get returns the value for key, seeing writes buffered in txn
func (d *BlobStoreS3) Get(txn types.Txn, key []byte) ([]byte, error) {
	t, err := d.validateTxn(txn)
	if err != nil {
		return nil, err
	}
	name := d.objectKey(key)
	if w, ok := t.writes[name]; ok {
		if w.deleted {
			return nil, types.ErrBlobKeyNotFound
		}
		return slices.Clone(w.val), nil
	}
	return d.getObject(name)
}

func (d *BlobStoreS3) Set(txn types.Txn, key, val []byte) error {
	t, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if !t.readWrite {
		return errors.New("s3 blob: write in read-only transaction")
	}
	t.writes[d.objectKey(key)] = pendingWrite{val: slices.Clone(val)}
	return nil
}

func (d *BlobStoreS3) Delete(txn types.Txn, key []byte) error {
	t, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if !t.readWrite {
		return errors.New("s3 blob: delete in read-only transaction")
	}
	t.writes[d.objectKey(key)] = pendingWrite{deleted: true}
	return nil
}

func (d *BlobStoreS3) listKeys(prefix []byte) ([]string, error) {
	ctx, cancel := d.opContext()
	defer cancel()
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.objectKey(prefix)),
	})
	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			names = append(names, aws.ToString(obj.Key))
		}
	}
	slices.Sort(names)
	return names, nil
}

// Iterate walks the committed objects whose keys start with prefix, in key
// order. Writes buffered in txn are not visible.
func (d *BlobStoreS3) Iterate(
	txn types.Txn,
	prefix []byte,
	fn func(key, val []byte) error,
) error {
	if _, err := d.validateTxn(txn); err != nil {
		return err
	}
	if d.client == nil {
		return types.ErrBlobStoreUnavailable
	}
	names, err := d.listKeys(prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		key, err := d.keyFromObject(name)
		if err != nil {
			// Not one of ours
			continue
		}
		val, err := d.getObject(name)
		if err != nil {
			if errors.Is(err, types.ErrBlobKeyNotFound) {
				// Deleted since the listing
				continue
			}
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}
