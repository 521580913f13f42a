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

// Package gormstore holds the parts of a metadata store that are shared by
// every gorm-backed plugin
package gormstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/vaultledger/database/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

const commitTimestampRowID = 1

// Store wraps a gorm handle and implements the dialect-independent part of
// the metadata store contract
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New configures tracing and pool metrics on db and applies schema migrations
// unless skipMigrate is set
func New(
	db *gorm.DB,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
	dbName string,
	skipMigrate bool,
) (*Store, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{
		db:     db,
		logger: logger,
	}
	// Configure tracing for GORM
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	if promRegistry != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get database handle: %w", err)
		}
		collector := collectors.NewDBStatsCollector(sqlDB, dbName)
		if err := promRegistry.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}
	if !skipMigrate {
		for _, model := range models.MigrateModels {
			s.logger.Debug(
				fmt.Sprintf("creating table: %T", model),
				"component", "database",
			)
			if err := db.AutoMigrate(model); err != nil {
				return s, err
			}
		}
	}
	return s, nil
}

// DB returns the underlying GORM database handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction creates a new database transaction.
func (s *Store) Transaction() *gorm.DB {
	return s.db.Begin()
}

// AutoMigrate creates or updates database schema for the given models.
func (s *Store) AutoMigrate(dst ...any) error {
	return s.db.AutoMigrate(dst...)
}

// GetCommitTimestamp returns the last commit marker, or 0 if none was written
func (s *Store) GetCommitTimestamp() (int64, error) {
	var tmp models.CommitTimestamp
	result := s.db.Where("id = ?", commitTimestampRowID).Limit(1).Find(&tmp)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}
	return tmp.Timestamp, nil
}

// SetCommitTimestamp writes the commit marker using txn
func (s *Store) SetCommitTimestamp(txn *gorm.DB, timestamp int64) error {
	db := txn
	if db == nil {
		db = s.db
	}
	tmp := models.CommitTimestamp{
		ID:        commitTimestampRowID,
		Timestamp: timestamp,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp"}),
	}).Create(&tmp)
	return result.Error
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	// get DB handle from gorm.DB
	db, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return db.Close()
}
