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
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type issueRequest struct {
	OwnerId      string                `json:"owner_id"`
	Kind         models.InstrumentKind `json:"kind"`
	FaceValue    models.Money          `json:"face_value"`
	ValidFrom    *time.Time            `json:"valid_from,omitempty"`
	ValidUntil   *time.Time            `json:"valid_until,omitempty"`
	SourceLabel  string                `json:"source_label"`
	RequiredRank int                   `json:"required_rank"`
}

type purchaseRequest struct {
	OwnerId    string       `json:"owner_id"`
	Amount     models.Money `json:"amount"`
	PaymentRef string       `json:"payment_ref"`
}

type redeemRequest struct {
	Code    string `json:"code"`
	Channel string `json:"channel"`
}

type scanRedeemRequest struct {
	Payload string `json:"payload"`
	Channel string `json:"channel"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}

type createPoolRequest struct {
	SubjectId       string          `json:"subject_id"`
	Kind            models.PoolKind `json:"kind"`
	PoolValue       models.Money    `json:"pool_value"`
	MilestoneTarget decimal.Decimal `json:"milestone_target"`
}

type acquireRequest struct {
	OwnerId string              `json:"owner_id"`
	Units   decimal.Decimal     `json:"units"`
	Side    models.ForecastSide `json:"side,omitempty"`
	Odds    decimal.Decimal     `json:"odds"`
}

type settleRequest struct {
	ActualMetric decimal.Decimal `json:"actual_metric"`
}

type balanceResponse struct {
	AccountId string          `json:"account_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", store.ErrInvalidValue, key)
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := s.service.IssueInstrument(r.Context(), store.IssueParams{
		OwnerId:      req.OwnerId,
		Kind:         req.Kind,
		FaceValue:    req.FaceValue,
		ValidFrom:    req.ValidFrom,
		ValidUntil:   req.ValidUntil,
		SourceLabel:  req.SourceLabel,
		RequiredRank: req.RequiredRank,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := s.service.RecordPurchase(r.Context(), PurchaseParams(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetInstrument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = store.FilterAll
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views, err := s.service.ListInstruments(r.Context(), chi.URLParam(r, "ownerId"), filter, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instruments": views})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := s.service.Redeem(r.Context(), store.RedeemParams{
		InstrumentId:  chi.URLParam(r, "id"),
		PresentedCode: req.Code,
		Channel:       req.Channel,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleScanRedeem(w http.ResponseWriter, r *http.Request) {
	var req scanRedeemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := s.service.RedeemScan(r.Context(), req.Payload, req.Channel)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleVoid(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := s.service.VoidInstrument(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pool, err := s.service.CreatePool(r.Context(), store.CreatePoolParams(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.service.GetPool(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleAcquireUnits(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entry, err := s.service.AcquireUnits(r.Context(), store.AcquireParams{
		PoolId:  chi.URLParam(r, "id"),
		OwnerId: req.OwnerId,
		Units:   req.Units,
		Side:    req.Side,
		Odds:    req.Odds,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.service.SettlePool(r.Context(), chi.URLParam(r, "id"), req.ActualMetric)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	accountId := chi.URLParam(r, "accountId")
	currency := chi.URLParam(r, "currency")

	balance, err := s.service.GetBalance(r.Context(), accountId, currency)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountId: accountId, Currency: currency, Balance: balance})
}

func (s *Server) handleListBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.service.GetBalances(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	txs, err := s.service.GetTransactionHistory(r.Context(), chi.URLParam(r, "accountId"), r.URL.Query().Get("currency"), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}
