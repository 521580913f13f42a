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
	"io"
	"log/slog"

	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/blinklabs-io/vaultledger/database/plugin"
	"github.com/blinklabs-io/vaultledger/database/plugin/blob"
	"github.com/blinklabs-io/vaultledger/database/plugin/metadata"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const DefaultMetadataPlugin = "sqlite"

// Config holds the database configuration
type Config struct {
	PromRegistry   prometheus.Registerer
	Logger         *slog.Logger
	DataDir        string
	MetadataPlugin string
	MetadataDSN    string
	// BlobPlugin selects the raw block archive. An empty value disables it.
	BlobPlugin string
	BlobDSN    string
}

// Database pairs the relational entity store with an optional raw block archive
type Database struct {
	logger   *slog.Logger
	blob     blob.BlobStore
	metadata metadata.MetadataStore
	config   Config
}

// Blob returns the underling blob store instance, which may be nil
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Get loads the entity with the given id into dst
func (d *Database) Get(
	ctx context.Context,
	id string,
	dst models.Entity,
) (bool, error) {
	return getEntity(d.metadata.DB().WithContext(ctx), id, dst)
}

// Save upserts the entity outside of any transaction
func (d *Database) Save(ctx context.Context, entity models.Entity) error {
	return saveEntity(d.metadata.DB().WithContext(ctx), entity)
}

// Concurrent reports that autocommit writes may be issued in parallel
func (d *Database) Concurrent() bool {
	return true
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

func (d *Database) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Check commit timestamp
	if err := d.checkCommitTimestamp(); err != nil {
		return err
	}
	return nil
}

// New creates a new database instance with optional persistence using the provided data directory
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	if cfg.MetadataPlugin == "" {
		cfg.MetadataPlugin = DefaultMetadataPlugin
	}
	pluginOpts := plugin.Options{
		Logger:       cfg.Logger,
		PromRegistry: cfg.PromRegistry,
		DataDir:      cfg.DataDir,
		DSN:          cfg.MetadataDSN,
	}
	metadataDb, err := metadata.New(cfg.MetadataPlugin, pluginOpts)
	if err != nil {
		return nil, err
	}
	var blobDb blob.BlobStore
	if cfg.BlobPlugin != "" {
		blobOpts := pluginOpts
		blobOpts.DSN = cfg.BlobDSN
		blobDb, err = blob.New(cfg.BlobPlugin, blobOpts)
		if err != nil {
			_ = metadataDb.Close()
			return nil, err
		}
	}
	db := &Database{
		logger:   cfg.Logger,
		blob:     blobDb,
		metadata: metadataDb,
		config:   cfg,
	}
	if err := db.init(); err != nil {
		// Database is available for recovery, so return it with error
		return db, err
	}
	return db, nil
}

// NewFromStores wraps already opened stores. blobStore may be nil.
func NewFromStores(
	logger *slog.Logger,
	metadataStore metadata.MetadataStore,
	blobStore blob.BlobStore,
) (*Database, error) {
	if metadataStore == nil {
		return nil, errors.New("metadata store is required")
	}
	db := &Database{
		logger:   logger,
		blob:     blobStore,
		metadata: metadataStore,
	}
	if err := db.init(); err != nil {
		return db, err
	}
	return db, nil
}

func getEntity(db *gorm.DB, id string, dst models.Entity) (bool, error) {
	result := db.Where("id = ?", id).First(dst)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf(
			"get %s %q: %w",
			dst.TableName(),
			id,
			result.Error,
		)
	}
	return true, nil
}
