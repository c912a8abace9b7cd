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
)

// SubledgerService handles the append-only ledger and its balance projection
type SubledgerService struct {
	db *sql.DB
}

func NewSubledgerService(db *sql.DB) *SubledgerService {
	return &SubledgerService{
		db: db,
	}
}

func (s *SubledgerService) InitSchema(ctx context.Context) error {
	schema := `
	-- Account Balances Table (Projection - Hot Data)
	CREATE TABLE IF NOT EXISTS account_balances (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		last_transaction_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at INTEGER NOT NULL,
		UNIQUE(account_id, currency)
	);

	-- Ledger Transactions Table (Source of Truth - Cold Data)
	CREATE TABLE IF NOT EXISTS ledger_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		reason TEXT NOT NULL,
		related_instrument_id TEXT NOT NULL DEFAULT '',
		related_pool_id TEXT NOT NULL DEFAULT '',
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	-- Performance Indexes for Ledger Transactions
	CREATE INDEX IF NOT EXISTS idx_ledger_account_currency ON ledger_transactions(account_id, currency, seq);
	CREATE INDEX IF NOT EXISTS idx_ledger_instrument ON ledger_transactions(related_instrument_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_pool ON ledger_transactions(related_pool_id);

	-- The log is append-only
	CREATE TRIGGER IF NOT EXISTS ledger_transactions_no_update
	BEFORE UPDATE ON ledger_transactions
	BEGIN
		SELECT RAISE(ABORT, 'ledger transactions are append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS ledger_transactions_no_delete
	BEFORE DELETE ON ledger_transactions
	BEGIN
		SELECT RAISE(ABORT, 'ledger transactions are append-only');
	END;

	-- Journal Entries for Double-Entry Bookkeeping
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		account_type TEXT NOT NULL,
		account_id TEXT NOT NULL,
		debit_amount TEXT NOT NULL DEFAULT '0',
		credit_amount TEXT NOT NULL DEFAULT '0',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_transaction_id ON journal_entries(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_journal_account ON journal_entries(account_type, account_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
