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

const instrumentColumns = `id, owner_id, kind, face_amount, face_unit, source_label, valid_from, valid_until,
		       required_rank, pool_id, state, redeemed_at, proof_code, proof_channel, version, issued_at, seq`

const poolColumns = `id, subject_id, kind, total_units, pool_amount, pool_unit, milestone_target,
		       milestone_reached_at, settled, version, created_at`

const ledgerColumns = `id, account_id, amount, currency, reason, related_instrument_id, related_pool_id,
		       balance_before, balance_after, created_at`

const (
	// Instrument queries
	queryInsertInstrument = `
		INSERT INTO instruments (
			id, owner_id, kind, face_amount, face_unit, source_label, valid_from, valid_until,
			required_rank, pool_id, state, payment_ref, version, issued_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`

	queryGetInstrument = `
		SELECT ` + instrumentColumns + `
		FROM instruments
		WHERE id = ?`

	queryGetInstrumentByPaymentRef = `
		SELECT id FROM instruments WHERE payment_ref = ? LIMIT 1`

	// Keyset pagination: (issued_at, seq) strictly below the cursor.
	queryListOwnerInstruments = `
		SELECT ` + instrumentColumns + `
		FROM instruments
		WHERE owner_id = ? AND (issued_at < ? OR (issued_at = ? AND seq < ?))
		ORDER BY issued_at DESC, seq DESC
		LIMIT ?`

	queryListOwnerRedeemed = `
		SELECT ` + instrumentColumns + `
		FROM instruments
		WHERE owner_id = ? AND state = 'redeemed' AND (issued_at < ? OR (issued_at = ? AND seq < ?))
		ORDER BY issued_at DESC, seq DESC
		LIMIT ?`

	queryListOwnerActive = `
		SELECT ` + instrumentColumns + `
		FROM instruments
		WHERE owner_id = ? AND state = 'issued'
		  AND (valid_from IS NULL OR valid_from <= ?)
		  AND (valid_until IS NULL OR valid_until >= ?)
		  AND (issued_at < ? OR (issued_at = ? AND seq < ?))
		ORDER BY issued_at DESC, seq DESC
		LIMIT ?`

	queryRedeemInstrument = `
		UPDATE instruments
		SET state = 'redeemed', redeemed_at = ?, proof_code = ?, proof_channel = ?, version = version + 1
		WHERE id = ? AND version = ? AND state = 'issued'`

	queryTransitionInstrument = `
		UPDATE instruments
		SET state = ?, version = version + 1
		WHERE id = ? AND version = ? AND state = 'issued'`

	querySelectDueExpiries = `
		SELECT ` + instrumentColumns + `
		FROM instruments
		WHERE state = 'issued' AND valid_until IS NOT NULL AND valid_until < ?
		ORDER BY valid_until
		LIMIT ?`

	queryListPoolInstruments = `
		SELECT ` + instrumentColumns + `
		FROM instruments
		WHERE pool_id = ? AND state = 'issued'`

	// Pool queries
	queryInsertPool = `
		INSERT INTO pools (id, subject_id, kind, total_units, pool_amount, pool_unit, milestone_target, settled, version, created_at)
		VALUES (?, ?, ?, '0', ?, ?, ?, 0, 1, ?)`

	queryGetPool = `
		SELECT ` + poolColumns + `
		FROM pools
		WHERE id = ?`

	queryUpdatePoolUnits = `
		UPDATE pools
		SET total_units = ?, pool_amount = ?, version = version + 1
		WHERE id = ? AND version = ? AND settled = 0`

	queryMarkPoolSettled = `
		UPDATE pools
		SET settled = 1, milestone_reached_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND settled = 0`

	queryInsertPoolEntry = `
		INSERT INTO pool_entries (id, pool_id, owner_id, instrument_id, units, side, odds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryListPoolEntries = `
		SELECT id, pool_id, owner_id, instrument_id, units, side, odds, created_at
		FROM pool_entries
		WHERE pool_id = ?
		ORDER BY seq`

	queryInsertSettlementMarker = `
		INSERT INTO pool_settlements (pool_id, metric, distributed, retained, settled_at)
		VALUES (?, ?, ?, ?, ?)`

	// Balance queries
	queryGetBalance = `
		SELECT balance
		FROM account_balances
		WHERE account_id = ? AND currency = ?`

	queryGetAllAccountBalances = `
		SELECT id, account_id, currency, balance, last_transaction_id, version, updated_at
		FROM account_balances
		WHERE account_id = ? AND balance != '0'
		ORDER BY currency`

	queryListAccountAmounts = `
		SELECT amount
		FROM ledger_transactions
		WHERE account_id = ? AND currency = ?`

	queryGetAccountBalance = `
		SELECT id, balance, version
		FROM account_balances
		WHERE account_id = ? AND currency = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, account_id, currency, balance, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, last_transaction_id = ?, version = version + 1, updated_at = ?
		WHERE account_id = ? AND currency = ? AND version = ?`

	queryOverwriteAccountBalance = `
		UPDATE account_balances
		SET balance = ?, version = version + 1, updated_at = ?
		WHERE account_id = ? AND currency = ?`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO ledger_transactions (
			id, account_id, amount, currency, reason, related_instrument_id, related_pool_id,
			balance_before, balance_after, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT ` + ledgerColumns + `
		FROM ledger_transactions
		WHERE account_id = ? AND currency = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`

	// Outbox queries
	queryInsertEvent = `
		INSERT INTO outbox_events (event_type, aggregate_id, payload, created_at)
		VALUES (?, ?, ?, ?)`

	queryPendingEvents = `
		SELECT seq, event_type, aggregate_id, payload, created_at
		FROM outbox_events
		WHERE delivered_at IS NULL
		ORDER BY seq
		LIMIT ?`

	queryMarkEventDelivered = `
		UPDATE outbox_events SET delivered_at = ? WHERE seq = ? AND delivered_at IS NULL`
)
