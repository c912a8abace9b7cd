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
	"strings"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/settlement"
	"reward-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreatePool launches a content-share or forecast pool. For forecast pools
// the milestone target is the over/under line and the value starts at zero.
func (s *Service) CreatePool(ctx context.Context, params store.CreatePoolParams) (*models.Pool, error) {
	if params.SubjectId == "" {
		return nil, fmt.Errorf("%w: subject id is required", store.ErrInvalidValue)
	}
	if !params.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown pool kind %q", store.ErrInvalidValue, params.Kind)
	}
	unit := strings.ToUpper(params.PoolValue.Unit)
	if !s.catalog.IsMonetary(unit) {
		return nil, fmt.Errorf("%w: pool unit %q is not monetary", store.ErrInvalidValue, params.PoolValue.Unit)
	}
	if params.PoolValue.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: pool value cannot be negative", store.ErrInvalidValue)
	}
	if params.Kind == models.PoolContentShare && !params.PoolValue.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: content-share pool value must be positive", store.ErrInvalidValue)
	}
	// Forecast pools hold only the stakes debited from participants.
	if params.Kind == models.PoolForecast && !params.PoolValue.Amount.IsZero() {
		return nil, fmt.Errorf("%w: forecast pools start empty and are funded by stakes", store.ErrInvalidValue)
	}
	if err := s.checkPrecision(params.PoolValue.Amount, unit); err != nil {
		return nil, err
	}
	if params.MilestoneTarget.IsNegative() {
		return nil, fmt.Errorf("%w: milestone target cannot be negative", store.ErrInvalidValue)
	}

	now := s.Now()
	pool := &models.Pool{
		Id:              uuid.New().String(),
		SubjectId:       params.SubjectId,
		Kind:            params.Kind,
		TotalUnits:      decimal.Zero,
		PoolValue:       models.Money{Amount: params.PoolValue.Amount, Unit: unit},
		MilestoneTarget: params.MilestoneTarget,
		Version:         1,
		CreatedAt:       now,
	}

	_, err := s.db.ExecContext(ctx, queryInsertPool,
		pool.Id, pool.SubjectId, string(pool.Kind), pool.PoolValue.Amount.String(), pool.PoolValue.Unit,
		pool.MilestoneTarget.String(), toNanos(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert pool: %w", err)
	}

	zap.L().Info("Pool created",
		zap.String("pool_id", pool.Id),
		zap.String("subject_id", pool.SubjectId),
		zap.String("kind", string(pool.Kind)),
		zap.String("pool_value", pool.PoolValue.String()))
	return pool, nil
}

func (s *Service) GetPool(ctx context.Context, id string) (*models.Pool, error) {
	return getPool(ctx, s.db, id)
}

func getPool(ctx context.Context, q querier, id string) (*models.Pool, error) {
	var pool models.Pool
	var kind, totalStr, amountStr, targetStr string
	var reachedAt sql.NullInt64
	var settled int
	var createdAt int64

	err := q.QueryRowContext(ctx, queryGetPool, id).Scan(&pool.Id, &pool.SubjectId, &kind, &totalStr,
		&amountStr, &pool.PoolValue.Unit, &targetStr, &reachedAt, &settled, &pool.Version, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pool %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}

	pool.Kind = models.PoolKind(kind)
	pool.Settled = settled != 0
	pool.MilestoneReachedAt = timePtr(reachedAt)
	pool.CreatedAt = fromNanos(createdAt)
	if pool.TotalUnits, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("failed to parse total units '%s': %w", totalStr, err)
	}
	if pool.PoolValue.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse pool value '%s': %w", amountStr, err)
	}
	if pool.MilestoneTarget, err = decimal.NewFromString(targetStr); err != nil {
		return nil, fmt.Errorf("failed to parse milestone target '%s': %w", targetStr, err)
	}
	return &pool, nil
}

func (s *Service) ListPoolEntries(ctx context.Context, poolId string) ([]models.PoolEntry, error) {
	if _, err := getPool(ctx, s.db, poolId); err != nil {
		return nil, err
	}
	return listPoolEntries(ctx, s.db, poolId)
}

func listPoolEntries(ctx context.Context, q querier, poolId string) ([]models.PoolEntry, error) {
	rows, err := q.QueryContext(ctx, queryListPoolEntries, poolId)
	if err != nil {
		return nil, fmt.Errorf("failed to list pool entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.PoolEntry
	for rows.Next() {
		var e models.PoolEntry
		var side, unitsStr, oddsStr string
		var createdAt int64
		if err := rows.Scan(&e.Id, &e.PoolId, &e.OwnerId, &e.InstrumentId, &unitsStr, &side, &oddsStr, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pool entry: %w", err)
		}
		e.Side = models.ForecastSide(side)
		e.CreatedAt = fromNanos(createdAt)
		if e.Units, err = decimal.NewFromString(unitsStr); err != nil {
			return nil, fmt.Errorf("failed to parse units '%s': %w", unitsStr, err)
		}
		if e.Odds, err = decimal.NewFromString(oddsStr); err != nil {
			return nil, fmt.Errorf("failed to parse odds '%s': %w", oddsStr, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pool entry rows: %w", err)
	}
	return entries, nil
}

// AcquireUnits records a share grant or forecast stake against an open pool
// and issues the backing instrument. Stakes are debited from the owner and
// added to the pool value.
func (s *Service) AcquireUnits(ctx context.Context, params store.AcquireParams) (*models.PoolEntry, error) {
	if params.OwnerId == "" {
		return nil, fmt.Errorf("%w: owner id is required", store.ErrInvalidValue)
	}
	if !params.Units.IsPositive() {
		return nil, fmt.Errorf("%w: units must be positive, got %s", store.ErrInvalidValue, params.Units)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	pool, err := getPool(ctx, tx, params.PoolId)
	if err != nil {
		return nil, err
	}
	if pool.Settled {
		return nil, fmt.Errorf("%w: pool %s", store.ErrPoolSettled, pool.Id)
	}

	entry := &models.PoolEntry{
		Id:      uuid.New().String(),
		PoolId:  pool.Id,
		OwnerId: params.OwnerId,
		Units:   params.Units,
		Odds:    decimal.Zero,
	}

	now := s.Now()
	inst := &models.Instrument{
		Id:       uuid.New().String(),
		OwnerId:  params.OwnerId,
		Kind:     pool.Kind.InstrumentKind(),
		PoolId:   pool.Id,
		State:    models.StateIssued,
		Version:  1,
		IssuedAt: now,
	}

	newValue := pool.PoolValue.Amount
	switch pool.Kind {
	case models.PoolForecast:
		if !params.Side.Valid() {
			return nil, fmt.Errorf("%w: forecast side must be over or under", store.ErrInvalidValue)
		}
		if !params.Odds.IsPositive() {
			return nil, fmt.Errorf("%w: odds must be positive", store.ErrInvalidValue)
		}
		if err := s.checkPrecision(params.Units, pool.PoolValue.Unit); err != nil {
			return nil, err
		}
		balance, err := getBalance(ctx, tx, params.OwnerId, pool.PoolValue.Unit)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(params.Units) {
			return nil, fmt.Errorf("%w: stake %s %s exceeds balance %s", store.ErrInsufficientBalance,
				params.Units, pool.PoolValue.Unit, balance)
		}
		entry.Side = params.Side
		entry.Odds = params.Odds
		inst.FaceValue = models.Money{Amount: params.Units, Unit: pool.PoolValue.Unit}
		inst.SourceLabel = fmt.Sprintf("forecast %s %s", pool.SubjectId, params.Side)
		newValue = newValue.Add(params.Units)
	default:
		inst.FaceValue = models.Money{Amount: params.Units, Unit: "SHARES"}
		inst.SourceLabel = fmt.Sprintf("content %s", pool.SubjectId)
	}
	entry.InstrumentId = inst.Id
	entry.CreatedAt = now

	if err := insertInstrument(ctx, tx, inst, sql.NullString{}); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, queryInsertPoolEntry, entry.Id, entry.PoolId, entry.OwnerId, entry.InstrumentId,
		entry.Units.String(), string(entry.Side), entry.Odds.String(), toNanos(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert pool entry: %w", err)
	}

	res, err := tx.ExecContext(ctx, queryUpdatePoolUnits, pool.TotalUnits.Add(params.Units).String(), newValue.String(), pool.Id, pool.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update pool: %w", err)
	}
	if err := rowsAffected(res, "pool "+pool.Id+" changed during acquisition"); err != nil {
		return nil, err
	}

	if pool.Kind == models.PoolForecast {
		_, err := s.subledger.appendInTx(ctx, tx, store.AppendParams{
			AccountId:           params.OwnerId,
			Amount:              params.Units.Neg(),
			Currency:            pool.PoolValue.Unit,
			Reason:              models.ReasonStake,
			RelatedInstrumentId: inst.Id,
			RelatedPoolId:       pool.Id,
		}, now)
		if err != nil {
			return nil, fmt.Errorf("error debiting stake: %w", err)
		}
	}

	if err := insertEvent(ctx, tx, models.EventInstrumentIssued, inst.Id, instrumentPayload(inst, "", now), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acquisition: %w", err)
	}

	zap.L().Info("Pool units acquired",
		zap.String("pool_id", pool.Id),
		zap.String("owner_id", entry.OwnerId),
		zap.String("units", entry.Units.String()),
		zap.String("side", string(entry.Side)))
	return entry, nil
}

// Settle distributes a pool exactly once. The settlement marker, the pool
// version guard and every payout commit together or not at all.
func (s *Service) Settle(ctx context.Context, poolId string, actualMetric decimal.Decimal) (*models.SettlementResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	pool, err := getPool(ctx, tx, poolId)
	if err != nil {
		return nil, err
	}
	if pool.Settled {
		return nil, fmt.Errorf("%w: pool %s", store.ErrAlreadySettled, pool.Id)
	}

	entries, err := listPoolEntries(ctx, tx, pool.Id)
	if err != nil {
		return nil, err
	}
	participants := settlement.FromEntries(entries)
	precision := s.catalog.Precision(pool.PoolValue.Unit)

	var plan *settlement.Plan
	switch pool.Kind {
	case models.PoolForecast:
		plan, err = settlement.Forecast(pool.PoolValue.Amount, pool.MilestoneTarget, actualMetric, precision, participants)
	default:
		if actualMetric.LessThan(pool.MilestoneTarget) {
			return nil, fmt.Errorf("%w: metric %s below target %s", store.ErrMilestoneNotReached, actualMetric, pool.MilestoneTarget)
		}
		plan, err = settlement.ContentShare(pool.PoolValue.Amount, pool.TotalUnits, precision, participants)
	}
	if err != nil {
		if errors.Is(err, store.ErrLedgerInvariant) {
			zap.L().Error("Settlement invariant violated", zap.String("pool_id", pool.Id), zap.Error(err))
		}
		return nil, err
	}

	now := s.Now()
	_, err = tx.ExecContext(ctx, queryInsertSettlementMarker, pool.Id, actualMetric.String(),
		plan.Distributed.String(), plan.Retained.String(), toNanos(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: pool %s", store.ErrAlreadySettled, pool.Id)
		}
		return nil, fmt.Errorf("failed to record settlement: %w", err)
	}

	res, err := tx.ExecContext(ctx, queryMarkPoolSettled, toNanos(now), pool.Id, pool.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to mark pool settled: %w", err)
	}
	if err := rowsAffected(res, "pool "+pool.Id+" changed during settlement"); err != nil {
		return nil, err
	}

	result := &models.SettlementResult{
		PoolId:             pool.Id,
		Distributed:        plan.Distributed,
		Retained:           plan.Retained,
		MilestoneReachedAt: now,
	}

	for _, payout := range plan.Payouts {
		if !payout.Amount.IsPositive() {
			continue
		}
		t, err := s.subledger.appendInTx(ctx, tx, store.AppendParams{
			AccountId:           payout.OwnerId,
			Amount:              payout.Amount,
			Currency:            pool.PoolValue.Unit,
			Reason:              models.ReasonSettle,
			RelatedInstrumentId: payout.InstrumentId,
			RelatedPoolId:       pool.Id,
		}, now)
		if err != nil {
			return nil, fmt.Errorf("error crediting payout for entry %s: %w", payout.EntryId, err)
		}
		result.Transactions = append(result.Transactions, *t)
	}

	// Pool instruments are consumed by settlement
	backing, err := listInstruments(ctx, tx, queryListPoolInstruments, pool.Id)
	if err != nil {
		return nil, err
	}
	for i := range backing {
		inst := &backing[i]
		res, err := tx.ExecContext(ctx, queryRedeemInstrument, toNanos(now), s.coder.Code(inst.Id), "settlement", inst.Id, inst.Version)
		if err != nil {
			return nil, fmt.Errorf("failed to settle instrument %s: %w", inst.Id, err)
		}
		if err := rowsAffected(res, "instrument "+inst.Id+" changed during settlement"); err != nil {
			return nil, err
		}
		result.SettledInstrumentIds = append(result.SettledInstrumentIds, inst.Id)
	}

	err = insertEvent(ctx, tx, models.EventPoolSettled, pool.Id, models.PoolSettledPayload{
		PoolId:       pool.Id,
		SubjectId:    pool.SubjectId,
		PoolValue:    pool.PoolValue,
		Distributed:  plan.Distributed.String(),
		Retained:     plan.Retained.String(),
		Participants: len(entries),
		OccurredAt:   now,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	zap.L().Info("Pool settled",
		zap.String("pool_id", pool.Id),
		zap.String("metric", actualMetric.String()),
		zap.String("distributed", plan.Distributed.String()),
		zap.String("retained", plan.Retained.String()),
		zap.Int("payouts", len(result.Transactions)))
	return result, nil
}
