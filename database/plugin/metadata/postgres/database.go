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

package postgres

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/blinklabs-io/vaultledger/database/plugin/metadata/gormstore"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MetadataStorePostgres stores metadata in a PostgreSQL database
type MetadataStorePostgres struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	conn         *sql.DB
	dsn          string
	skipMigrate  bool
}

// New opens a PostgreSQL metadata store from a DSN or an existing connection
func New(opts ...PostgresOptionFunc) (*MetadataStorePostgres, error) {
	d := &MetadataStorePostgres{}
	for _, opt := range opts {
		opt(d)
	}
	var dialector gorm.Dialector
	switch {
	case d.conn != nil:
		dialector = postgres.New(postgres.Config{
			Conn:       d.conn,
			DriverName: "postgres",
		})
	case d.dsn != "":
		dialector = postgres.Open(d.dsn)
	default:
		return nil, errors.New("postgres metadata store requires a DSN")
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}
	store, err := gormstore.New(
		db,
		d.logger,
		d.promRegistry,
		"metadata_postgres",
		d.skipMigrate,
	)
	if store == nil {
		return nil, err
	}
	d.Store = store
	return d, err
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}
