/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"
	"reward-ledger-go/internal/units"
	"reward-ledger-go/internal/voucher"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.RewardStore.
var _ store.RewardStore = (*Service)(nil)

type Service struct {
	db        *sql.DB
	subledger *SubledgerService
	catalog   *units.Catalog
	coder     *voucher.Coder
	now       func() time.Time
}

func NewService(ctx context.Context, cfg models.DatabaseConfig, catalog *units.Catalog, coder *voucher.Coder) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}
	if catalog == nil || coder == nil {
		return nil, fmt.Errorf("unit catalog and redemption coder are required")
	}

	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", dsn(cfg.Path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := newService(db, catalog, coder)
	if err := service.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func newService(db *sql.DB, catalog *units.Catalog, coder *voucher.Coder) *Service {
	return &Service{
		db:        db,
		subledger: NewSubledgerService(db),
		catalog:   catalog,
		coder:     coder,
		now:       time.Now,
	}
}

// dsn enables WAL and makes every BEGIN take the write lock up front, so
// read-check-write sequences inside a transaction are serialised.
func dsn(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=on",
		path, busyTimeout.Milliseconds())
}

// SetClock replaces the time source. Used by tests and the CLI tools.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the current time of the service clock.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := `
	-- Instruments: one grant of value to one owner
	CREATE TABLE IF NOT EXISTS instruments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		face_amount TEXT NOT NULL,
		face_unit TEXT NOT NULL,
		source_label TEXT NOT NULL DEFAULT '',
		valid_from INTEGER,
		valid_until INTEGER,
		required_rank INTEGER NOT NULL DEFAULT 0,
		pool_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		redeemed_at INTEGER,
		proof_code TEXT,
		proof_channel TEXT,
		payment_ref TEXT UNIQUE,
		version INTEGER NOT NULL DEFAULT 1,
		issued_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_instruments_owner ON instruments(owner_id, issued_at DESC, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_instruments_due ON instruments(state, valid_until);
	CREATE INDEX IF NOT EXISTS idx_instruments_pool ON instruments(pool_id);

	-- Pools and their entries
	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		total_units TEXT NOT NULL DEFAULT '0',
		pool_amount TEXT NOT NULL,
		pool_unit TEXT NOT NULL,
		milestone_target TEXT NOT NULL DEFAULT '0',
		milestone_reached_at INTEGER,
		settled INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pool_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		pool_id TEXT NOT NULL REFERENCES pools(id),
		owner_id TEXT NOT NULL,
		instrument_id TEXT NOT NULL,
		units TEXT NOT NULL,
		side TEXT NOT NULL DEFAULT '',
		odds TEXT NOT NULL DEFAULT '0',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pool_entries_pool ON pool_entries(pool_id, seq);

	-- One row per settled pool; the primary key makes settlement happen once
	CREATE TABLE IF NOT EXISTS pool_settlements (
		pool_id TEXT PRIMARY KEY REFERENCES pools(id),
		metric TEXT NOT NULL,
		distributed TEXT NOT NULL,
		retained TEXT NOT NULL,
		settled_at INTEGER NOT NULL
	);

	-- Outbox: domain events written in the same transaction as the change
	CREATE TABLE IF NOT EXISTS outbox_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		delivered_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_events(delivered_at, seq);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return s.subledger.InitSchema(ctx)
}

// rowsAffected returns ErrConcurrencyConflict when a guarded update matched
// nothing.
func rowsAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrConcurrencyConflict)
	}
	return nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		zap.L().Warn("Failed to roll back transaction", zap.Error(err))
	}
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
