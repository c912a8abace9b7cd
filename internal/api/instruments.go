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

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reward-ledger-go/internal/availability"
	"reward-ledger-go/internal/metrics"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"
	"reward-ledger-go/internal/voucher"

	"go.uber.org/zap"
)

const maxListLimit = 200

// PurchaseParams is a purchase confirmed out-of-band by the payment gateway
type PurchaseParams struct {
	OwnerId    string
	Amount     models.Money
	PaymentRef string
}

// IssueInstrument issues a coupon or ticket and returns the owner's view.
func (s *RewardService) IssueInstrument(ctx context.Context, params store.IssueParams) (*models.InstrumentView, error) {
	inst, err := s.store.Issue(ctx, params)
	if err != nil {
		if errors.Is(err, store.ErrDuplicatePurchase) {
			zap.L().Info("Duplicate purchase ignored", zap.String("payment_ref", params.PaymentRef))
		} else {
			zap.L().Warn("Issue rejected",
				zap.String("owner_id", params.OwnerId),
				zap.String("kind", string(params.Kind)),
				zap.Error(err))
		}
		return nil, err
	}
	metrics.RecordIssued(string(inst.Kind))

	view := s.view(ctx, inst)
	return &view, nil
}

// RecordPurchase issues the instrument for a confirmed payment. The payment
// reference makes it idempotent.
func (s *RewardService) RecordPurchase(ctx context.Context, params PurchaseParams) (*models.InstrumentView, error) {
	if params.PaymentRef == "" {
		return nil, fmt.Errorf("%w: payment reference is required", store.ErrInvalidValue)
	}
	if !s.catalog.IsMonetary(params.Amount.Unit) {
		return nil, fmt.Errorf("%w: purchases must be in a monetary unit, got %q", store.ErrInvalidValue, params.Amount.Unit)
	}

	return s.IssueInstrument(ctx, store.IssueParams{
		OwnerId:     params.OwnerId,
		Kind:        models.KindCoupon,
		FaceValue:   params.Amount,
		SourceLabel: "purchase:" + params.PaymentRef,
		PaymentRef:  params.PaymentRef,
	})
}

// GetInstrument returns the requester's view of an instrument, served from
// the read-through cache.
func (s *RewardService) GetInstrument(ctx context.Context, id string) (*models.InstrumentView, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: instrument id is required", store.ErrInvalidValue)
	}

	inst, err := s.cache.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	view := s.view(ctx, inst)
	return &view, nil
}

// ListInstruments returns up to limit instrument views for an owner, newest
// first.
func (s *RewardService) ListInstruments(ctx context.Context, ownerId string, filter store.ListFilter, limit int) ([]models.InstrumentView, error) {
	if ownerId == "" {
		return nil, fmt.Errorf("%w: owner id is required", store.ErrInvalidValue)
	}
	if limit <= 0 || limit > maxListLimit {
		limit = 50
	}

	views := make([]models.InstrumentView, 0)
	for inst, err := range s.store.ListByOwner(ctx, ownerId, filter) {
		if err != nil {
			zap.L().Error("Failed to list instruments", zap.String("owner_id", ownerId), zap.Error(err))
			return nil, err
		}
		views = append(views, s.view(ctx, &inst))
		if len(views) == limit {
			break
		}
	}
	return views, nil
}

// Redeem redeems an instrument with a presented code. Conflicts are retried
// a bounded number of times before surfacing as ErrTransient.
func (s *RewardService) Redeem(ctx context.Context, params store.RedeemParams) (*models.InstrumentView, error) {
	if params.InstrumentId == "" {
		return nil, fmt.Errorf("%w: instrument id is required", store.ErrInvalidValue)
	}
	if err := s.guard.allow(params.InstrumentId, s.now()); err != nil {
		err = s.throttled(ctx, params.InstrumentId, err)
		metrics.RecordRedemption(outcome(err))
		zap.L().Warn("Redemption throttled", zap.String("instrument_id", params.InstrumentId), zap.Error(err))
		return nil, err
	}

	release := s.guard.begin(params.InstrumentId)
	defer release()

	var inst *models.Instrument
	err := s.withRetry(ctx, "redeem", func() error {
		var err error
		inst, err = s.store.Redeem(ctx, params)
		return err
	})
	// Failed redemptions may still persist an expiry.
	s.cache.Invalidate(params.InstrumentId)
	if errors.Is(err, store.ErrCodeMismatch) {
		s.guard.fail(params.InstrumentId, s.now())
	}
	metrics.RecordRedemption(outcome(err))
	if err != nil {
		zap.L().Info("Redemption refused",
			zap.String("instrument_id", params.InstrumentId),
			zap.String("channel", params.Channel),
			zap.String("outcome", outcome(err)),
			zap.Error(err))
		return nil, err
	}

	view := s.viewState(ctx, inst, false)
	return &view, nil
}

// throttled keeps a repeat of a completed redemption reporting
// ErrAlreadyRedeemed while the instrument's attempts are exhausted.
func (s *RewardService) throttled(ctx context.Context, instrumentId string, err error) error {
	inst, getErr := s.store.Get(ctx, instrumentId)
	if getErr != nil {
		return err
	}
	if inst.State == models.StateRedeemed {
		return fmt.Errorf("%w: instrument %s", store.ErrAlreadyRedeemed, instrumentId)
	}
	return err
}

// RedeemScan redeems from a point-of-sale scan payload.
func (s *RewardService) RedeemScan(ctx context.Context, payload, channel string) (*models.InstrumentView, error) {
	scan, err := voucher.DecodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidValue, err)
	}

	inst, err := s.cache.Get(ctx, scan.InstrumentId)
	if err != nil {
		return nil, err
	}
	if inst.Kind != scan.Type {
		s.guard.fail(scan.InstrumentId, s.now())
		return nil, fmt.Errorf("%w: payload type %q does not match instrument kind %q", store.ErrCodeMismatch, scan.Type, inst.Kind)
	}

	return s.Redeem(ctx, store.RedeemParams{
		InstrumentId:  scan.InstrumentId,
		PresentedCode: scan.Code,
		Channel:       channel,
	})
}

// VoidInstrument administratively reverses an issued instrument.
func (s *RewardService) VoidInstrument(ctx context.Context, id, reason string) (*models.InstrumentView, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: a void reason is required", store.ErrInvalidValue)
	}

	var inst *models.Instrument
	err := s.withRetry(ctx, "void", func() error {
		var err error
		inst, err = s.store.Void(ctx, id, reason)
		return err
	})
	s.cache.Invalidate(id)
	if err != nil {
		return nil, err
	}

	view := s.viewState(ctx, inst, false)
	return &view, nil
}

// ExpireDue persists expiries for instruments whose windows have closed.
func (s *RewardService) ExpireDue(ctx context.Context, limit int) ([]string, error) {
	ids, err := s.store.ExpireDue(ctx, s.now(), limit)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ids...)
	return ids, nil
}

// ContentVisibility evaluates gated drop content for the requester.
func (s *RewardService) ContentVisibility(ctx context.Context, content *models.GatedContent) models.Visibility {
	requester, _ := models.GetRequester(ctx)
	return availability.Evaluate(availability.ForContent(content), requester.Rank, s.now())
}

func (s *RewardService) view(ctx context.Context, inst *models.Instrument) models.InstrumentView {
	return s.viewState(ctx, inst, s.guard.isPending(inst.Id))
}

// viewState shapes inst for the requester in ctx. The redemption code is
// only revealed to the owner or to trusted in-process callers.
func (s *RewardService) viewState(ctx context.Context, inst *models.Instrument, pending bool) models.InstrumentView {
	now := s.now()
	requester, identified := models.GetRequester(ctx)
	gate := availability.ForInstrument(inst)

	state := inst.EffectiveState(now)
	view := models.InstrumentView{
		Id:          inst.Id,
		OwnerId:     inst.OwnerId,
		Kind:        inst.Kind,
		FaceValue:   inst.FaceValue,
		SourceLabel: inst.SourceLabel,
		ValidFrom:   inst.ValidFrom,
		ValidUntil:  inst.ValidUntil,
		State:       state,
		Visibility:  availability.Evaluate(gate, requester.Rank, now),
		Pending:     pending && state == models.StateIssued,
		RedeemedAt:  inst.RedeemedAt,
		IssuedAt:    inst.IssuedAt,
	}
	if inst.RedemptionProof != nil {
		view.Channel = inst.RedemptionProof.Channel
	}
	if state == models.StateIssued {
		view.TimeRemaining = availability.TimeRemaining(gate, now)
	}

	if !inst.Kind.PoolBacked() && (!identified || requester.Id == inst.OwnerId) {
		view.Code = s.coder.Code(inst.Id)
		if payload, err := s.coder.EncodePayload(inst.Kind, inst.Id); err == nil {
			view.ScanPayload = payload
		}
	}
	return view
}
