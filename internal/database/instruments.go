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
	"iter"
	"math"
	"strings"
	"time"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// listPageSize bounds how many rows ListByOwner holds per query
const listPageSize = 100

type rowScanner interface {
	Scan(dest ...any) error
}

// Issue creates an instrument in the issued state. Monetary face values are
// credited to the owner in the same transaction.
func (s *Service) Issue(ctx context.Context, params store.IssueParams) (*models.Instrument, error) {
	if err := s.validateIssue(params); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	paymentRef := sql.NullString{String: params.PaymentRef, Valid: params.PaymentRef != ""}
	if paymentRef.Valid {
		var existingId string
		err := tx.QueryRowContext(ctx, queryGetInstrumentByPaymentRef, params.PaymentRef).Scan(&existingId)
		if err == nil {
			return nil, fmt.Errorf("%w: payment %s already issued instrument %s", store.ErrDuplicatePurchase, params.PaymentRef, existingId)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to check payment reference: %w", err)
		}
	}

	now := s.Now()
	inst := &models.Instrument{
		Id:           uuid.New().String(),
		OwnerId:      params.OwnerId,
		Kind:         params.Kind,
		FaceValue:    models.Money{Amount: params.FaceValue.Amount, Unit: strings.ToUpper(params.FaceValue.Unit)},
		SourceLabel:  params.SourceLabel,
		ValidFrom:    utcPtr(params.ValidFrom),
		ValidUntil:   utcPtr(params.ValidUntil),
		RequiredRank: params.RequiredRank,
		State:        models.StateIssued,
		Version:      1,
		IssuedAt:     now,
	}

	if err := insertInstrument(ctx, tx, inst, paymentRef); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: payment %s", store.ErrDuplicatePurchase, params.PaymentRef)
		}
		return nil, err
	}

	if s.catalog.IsMonetary(inst.FaceValue.Unit) {
		_, err := s.subledger.appendInTx(ctx, tx, store.AppendParams{
			AccountId:           inst.OwnerId,
			Amount:              inst.FaceValue.Amount,
			Currency:            inst.FaceValue.Unit,
			Reason:              models.ReasonIssue,
			RelatedInstrumentId: inst.Id,
		}, now)
		if err != nil {
			return nil, fmt.Errorf("error crediting issued instrument: %w", err)
		}
	}

	if err := insertEvent(ctx, tx, models.EventInstrumentIssued, inst.Id, instrumentPayload(inst, "", now), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit issue: %w", err)
	}

	zap.L().Info("Instrument issued",
		zap.String("instrument_id", inst.Id),
		zap.String("owner_id", inst.OwnerId),
		zap.String("kind", string(inst.Kind)),
		zap.String("face_value", inst.FaceValue.String()),
		zap.String("source", inst.SourceLabel))
	return inst, nil
}

func (s *Service) validateIssue(params store.IssueParams) error {
	if params.OwnerId == "" {
		return fmt.Errorf("%w: owner id is required", store.ErrInvalidValue)
	}
	if !params.Kind.Valid() {
		return fmt.Errorf("%w: unknown instrument kind %q", store.ErrInvalidValue, params.Kind)
	}
	if params.Kind.PoolBacked() {
		return fmt.Errorf("%w: %s instruments are created by acquiring pool units", store.ErrInvalidValue, params.Kind)
	}
	if _, ok := s.catalog.Lookup(params.FaceValue.Unit); !ok {
		return fmt.Errorf("%w: unknown unit %q", store.ErrInvalidValue, params.FaceValue.Unit)
	}
	if !params.FaceValue.Amount.IsPositive() {
		return fmt.Errorf("%w: face value must be positive, got %s", store.ErrInvalidValue, params.FaceValue.Amount)
	}
	if err := s.checkPrecision(params.FaceValue.Amount, params.FaceValue.Unit); err != nil {
		return err
	}
	if params.RequiredRank < 0 {
		return fmt.Errorf("%w: required rank cannot be negative", store.ErrInvalidValue)
	}
	if params.ValidFrom != nil && params.ValidUntil != nil && !params.ValidUntil.After(*params.ValidFrom) {
		return fmt.Errorf("%w: validUntil %s is not after validFrom %s", store.ErrInvalidWindow,
			params.ValidUntil.Format(time.RFC3339), params.ValidFrom.Format(time.RFC3339))
	}
	return nil
}

func insertInstrument(ctx context.Context, tx *sql.Tx, inst *models.Instrument, paymentRef sql.NullString) error {
	_, err := tx.ExecContext(ctx, queryInsertInstrument,
		inst.Id, inst.OwnerId, string(inst.Kind), inst.FaceValue.Amount.String(), inst.FaceValue.Unit,
		inst.SourceLabel, nullNanos(inst.ValidFrom), nullNanos(inst.ValidUntil), inst.RequiredRank,
		inst.PoolId, string(inst.State), paymentRef, toNanos(inst.IssuedAt))
	if err != nil {
		return fmt.Errorf("failed to insert instrument: %w", err)
	}
	return nil
}

// Get returns the instrument with its effective state: an issued
// instrument whose window has closed reads as expired before the expiry is
// persisted.
func (s *Service) Get(ctx context.Context, id string) (*models.Instrument, error) {
	inst, err := getInstrument(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	inst.State = inst.EffectiveState(s.Now())
	return inst, nil
}

func getInstrument(ctx context.Context, q querier, id string) (*models.Instrument, error) {
	inst, _, err := scanInstrument(q.QueryRowContext(ctx, queryGetInstrument, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: instrument %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// ListByOwner yields the owner's instruments newest first. Each range over
// the returned sequence runs a fresh keyset-paginated scan.
func (s *Service) ListByOwner(ctx context.Context, ownerId string, filter store.ListFilter) iter.Seq2[models.Instrument, error] {
	return func(yield func(models.Instrument, error) bool) {
		if filter == "" {
			filter = store.FilterAll
		}
		if !filter.Valid() {
			yield(models.Instrument{}, fmt.Errorf("%w: unknown filter %q", store.ErrInvalidValue, filter))
			return
		}

		now := toNanos(s.Now())
		cursorAt, cursorSeq := int64(math.MaxInt64), int64(math.MaxInt64)
		for {
			page, lastSeq, err := s.listPage(ctx, ownerId, filter, now, cursorAt, cursorSeq)
			if err != nil {
				yield(models.Instrument{}, err)
				return
			}
			for _, inst := range page {
				if !yield(inst, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}
			cursorAt, cursorSeq = toNanos(page[len(page)-1].IssuedAt), lastSeq
		}
	}
}

func (s *Service) listPage(ctx context.Context, ownerId string, filter store.ListFilter, now, cursorAt, cursorSeq int64) ([]models.Instrument, int64, error) {
	var rows *sql.Rows
	var err error
	switch filter {
	case store.FilterActive:
		rows, err = s.db.QueryContext(ctx, queryListOwnerActive, ownerId, now, now, cursorAt, cursorAt, cursorSeq, listPageSize)
	case store.FilterUsed:
		rows, err = s.db.QueryContext(ctx, queryListOwnerRedeemed, ownerId, cursorAt, cursorAt, cursorSeq, listPageSize)
	default:
		rows, err = s.db.QueryContext(ctx, queryListOwnerInstruments, ownerId, cursorAt, cursorAt, cursorSeq, listPageSize)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer closeRows(rows)

	page := make([]models.Instrument, 0, listPageSize)
	var lastSeq int64
	for rows.Next() {
		inst, seq, err := scanInstrument(rows)
		if err != nil {
			return nil, 0, err
		}
		page = append(page, *inst)
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating instrument rows: %w", err)
	}
	return page, lastSeq, nil
}

// listInstruments runs a query and collects every instrument row.
func listInstruments(ctx context.Context, q querier, query string, args ...any) ([]models.Instrument, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer closeRows(rows)

	var out []models.Instrument
	for rows.Next() {
		inst, _, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument rows: %w", err)
	}
	return out, nil
}

func scanInstrument(row rowScanner) (*models.Instrument, int64, error) {
	var inst models.Instrument
	var kind, state, amountStr string
	var validFrom, validUntil, redeemedAt sql.NullInt64
	var proofCode, proofChannel sql.NullString
	var issuedAt, seq int64

	err := row.Scan(&inst.Id, &inst.OwnerId, &kind, &amountStr, &inst.FaceValue.Unit, &inst.SourceLabel,
		&validFrom, &validUntil, &inst.RequiredRank, &inst.PoolId, &state, &redeemedAt,
		&proofCode, &proofChannel, &inst.Version, &issuedAt, &seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("failed to scan instrument: %w", err)
	}

	inst.FaceValue.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse face value '%s': %w", amountStr, err)
	}
	inst.Kind = models.InstrumentKind(kind)
	inst.State = models.InstrumentState(state)
	inst.ValidFrom = timePtr(validFrom)
	inst.ValidUntil = timePtr(validUntil)
	inst.RedeemedAt = timePtr(redeemedAt)
	inst.IssuedAt = fromNanos(issuedAt)
	if proofCode.Valid {
		inst.RedemptionProof = &models.RedemptionProof{Code: proofCode.String, Channel: proofChannel.String}
	}
	return &inst, seq, nil
}

func instrumentPayload(inst *models.Instrument, channel string, now time.Time) models.InstrumentEventPayload {
	return models.InstrumentEventPayload{
		InstrumentId: inst.Id,
		OwnerId:      inst.OwnerId,
		Kind:         inst.Kind,
		FaceValue:    inst.FaceValue,
		State:        inst.State,
		Channel:      channel,
		OccurredAt:   now,
	}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
