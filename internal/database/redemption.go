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
	"fmt"
	"time"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"
	"reward-ledger-go/internal/voucher"

	"go.uber.org/zap"
)

// Redeem moves an instrument from issued to redeemed exactly once. The
// transaction holds the SQLite write lock from BEGIN, and the update is
// guarded by the version read inside it.
func (s *Service) Redeem(ctx context.Context, params store.RedeemParams) (*models.Instrument, error) {
	if params.InstrumentId == "" {
		return nil, fmt.Errorf("%w: instrument id is required", store.ErrInvalidValue)
	}
	if params.Channel == "" {
		return nil, fmt.Errorf("%w: redemption channel is required", store.ErrInvalidValue)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	inst, err := getInstrument(ctx, tx, params.InstrumentId)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	if err := checkTerminal(inst); err != nil {
		return nil, err
	}

	if inst.ValidUntil != nil && now.After(*inst.ValidUntil) {
		// The expiry is persisted even though the redemption fails.
		if err := s.expireInTx(ctx, tx, inst, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit expiry: %w", err)
		}
		zap.L().Info("Redemption attempted after window closed, instrument expired",
			zap.String("instrument_id", inst.Id),
			zap.Time("valid_until", *inst.ValidUntil))
		return nil, fmt.Errorf("%w: instrument %s closed at %s", store.ErrExpired, inst.Id, inst.ValidUntil.Format(time.RFC3339))
	}

	if inst.ValidFrom != nil && now.Before(*inst.ValidFrom) {
		return nil, fmt.Errorf("%w: instrument %s opens at %s", store.ErrNotYetValid, inst.Id, inst.ValidFrom.Format(time.RFC3339))
	}

	if inst.Kind.PoolBacked() {
		return nil, fmt.Errorf("%w: %s instruments are settled with their pool", store.ErrInvalidTransition, inst.Kind)
	}

	if !s.coder.Matches(inst.Id, params.PresentedCode) {
		zap.L().Warn("Redemption code mismatch", zap.String("instrument_id", inst.Id), zap.String("channel", params.Channel))
		return nil, fmt.Errorf("%w: instrument %s", store.ErrCodeMismatch, inst.Id)
	}

	code := voucher.NormalizeCode(params.PresentedCode)
	res, err := tx.ExecContext(ctx, queryRedeemInstrument, toNanos(now), code, params.Channel, inst.Id, inst.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to redeem instrument: %w", err)
	}
	if err := rowsAffected(res, "instrument "+inst.Id+" changed during redemption"); err != nil {
		return nil, err
	}

	inst.State = models.StateRedeemed
	inst.RedeemedAt = &now
	inst.RedemptionProof = &models.RedemptionProof{Code: code, Channel: params.Channel}
	inst.Version++

	if s.catalog.IsMonetary(inst.FaceValue.Unit) {
		_, err := s.subledger.appendInTx(ctx, tx, store.AppendParams{
			AccountId:           inst.OwnerId,
			Amount:              inst.FaceValue.Amount.Neg(),
			Currency:            inst.FaceValue.Unit,
			Reason:              models.ReasonRedeem,
			RelatedInstrumentId: inst.Id,
		}, now)
		if err != nil {
			return nil, fmt.Errorf("error debiting redeemed instrument: %w", err)
		}
	}

	if err := insertEvent(ctx, tx, models.EventInstrumentRedeemed, inst.Id, instrumentPayload(inst, params.Channel, now), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}

	zap.L().Info("Instrument redeemed",
		zap.String("instrument_id", inst.Id),
		zap.String("owner_id", inst.OwnerId),
		zap.String("channel", params.Channel),
		zap.String("face_value", inst.FaceValue.String()))
	return inst, nil
}

// Void is the administrative reversal of an issued instrument.
func (s *Service) Void(ctx context.Context, id, reason string) (*models.Instrument, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	inst, err := getInstrument(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if inst.State != models.StateIssued {
		return nil, fmt.Errorf("%w: instrument %s is %s", store.ErrInvalidTransition, inst.Id, inst.State)
	}
	if inst.Kind.PoolBacked() {
		return nil, fmt.Errorf("%w: %s instruments are settled with their pool", store.ErrInvalidTransition, inst.Kind)
	}

	now := s.Now()
	if inst.ValidUntil != nil && now.After(*inst.ValidUntil) {
		if err := s.expireInTx(ctx, tx, inst, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit expiry: %w", err)
		}
		return nil, fmt.Errorf("%w: instrument %s", store.ErrExpired, inst.Id)
	}

	res, err := tx.ExecContext(ctx, queryTransitionInstrument, string(models.StateVoided), inst.Id, inst.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to void instrument: %w", err)
	}
	if err := rowsAffected(res, "instrument "+inst.Id+" changed during void"); err != nil {
		return nil, err
	}
	inst.State = models.StateVoided
	inst.Version++

	if s.catalog.IsMonetary(inst.FaceValue.Unit) {
		_, err := s.subledger.appendInTx(ctx, tx, store.AppendParams{
			AccountId:           inst.OwnerId,
			Amount:              inst.FaceValue.Amount.Neg(),
			Currency:            inst.FaceValue.Unit,
			Reason:              models.ReasonVoid,
			RelatedInstrumentId: inst.Id,
		}, now)
		if err != nil {
			return nil, fmt.Errorf("error reversing voided instrument: %w", err)
		}
	}

	payload := instrumentPayload(inst, "", now)
	payload.Reason = reason
	if err := insertEvent(ctx, tx, models.EventInstrumentVoided, inst.Id, payload, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit void: %w", err)
	}

	zap.L().Info("Instrument voided",
		zap.String("instrument_id", inst.Id),
		zap.String("owner_id", inst.OwnerId),
		zap.String("reason", reason))
	return inst, nil
}

// ExpireDue persists the expired transition for instruments whose window
// closed before now.
func (s *Service) ExpireDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", store.ErrInvalidValue)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	due, err := listInstruments(ctx, tx, querySelectDueExpiries, toNanos(now), limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(due))
	for i := range due {
		if err := s.expireInTx(ctx, tx, &due[i], now.UTC()); err != nil {
			return nil, err
		}
		ids = append(ids, due[i].Id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiry sweep: %w", err)
	}

	if len(ids) > 0 {
		zap.L().Info("Expired instruments past their window", zap.Int("count", len(ids)))
	}
	return ids, nil
}

// expireInTx transitions inst to expired. A monetary face value that was
// credited at issue is reversed.
func (s *Service) expireInTx(ctx context.Context, tx *sql.Tx, inst *models.Instrument, now time.Time) error {
	res, err := tx.ExecContext(ctx, queryTransitionInstrument, string(models.StateExpired), inst.Id, inst.Version)
	if err != nil {
		return fmt.Errorf("failed to expire instrument: %w", err)
	}
	if err := rowsAffected(res, "instrument "+inst.Id+" changed during expiry"); err != nil {
		return err
	}
	inst.State = models.StateExpired
	inst.Version++

	if s.catalog.IsMonetary(inst.FaceValue.Unit) && !inst.Kind.PoolBacked() {
		_, err := s.subledger.appendInTx(ctx, tx, store.AppendParams{
			AccountId:           inst.OwnerId,
			Amount:              inst.FaceValue.Amount.Neg(),
			Currency:            inst.FaceValue.Unit,
			Reason:              models.ReasonExpire,
			RelatedInstrumentId: inst.Id,
		}, now)
		if err != nil {
			return fmt.Errorf("error reversing expired instrument: %w", err)
		}
	}

	return insertEvent(ctx, tx, models.EventInstrumentExpired, inst.Id, instrumentPayload(inst, "", now), now)
}

func checkTerminal(inst *models.Instrument) error {
	switch inst.State {
	case models.StateRedeemed:
		return fmt.Errorf("%w: instrument %s", store.ErrAlreadyRedeemed, inst.Id)
	case models.StateExpired:
		return fmt.Errorf("%w: instrument %s", store.ErrExpired, inst.Id)
	case models.StateVoided:
		return fmt.Errorf("%w: instrument %s is voided", store.ErrInvalidTransition, inst.Id)
	case models.StateIssued:
	}
	return nil
}
