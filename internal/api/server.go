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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"reward-ledger-go/internal/metrics"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	headerRequesterId   = "X-Requester-Id"
	headerRequesterRank = "X-Requester-Rank"

	defaultRequestTimeout  = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Server is the reward ledger HTTP API server.
type Server struct {
	service *RewardService
	cfg     models.ServerConfig
}

// NewServer creates a new API server.
func NewServer(service *RewardService, cfg models.ServerConfig) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Server{service: service, cfg: cfg}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(func(next http.Handler) http.Handler {
		return metrics.InstrumentHandler(routePattern, next)
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(requesterMiddleware)

		r.Post("/instruments", s.handleIssue)
		r.Post("/purchases", s.handlePurchase)
		r.Get("/instruments/{id}", s.handleGetInstrument)
		r.Post("/instruments/{id}/redeem", s.handleRedeem)
		r.Post("/instruments/{id}/void", s.handleVoid)
		r.Post("/scan/redeem", s.handleScanRedeem)
		r.Get("/owners/{ownerId}/instruments", s.handleListInstruments)

		r.Post("/pools", s.handleCreatePool)
		r.Get("/pools/{id}", s.handleGetPool)
		r.Post("/pools/{id}/units", s.handleAcquireUnits)
		r.Post("/pools/{id}/settle", s.handleSettle)

		r.Get("/accounts/{accountId}/balances", s.handleListBalances)
		r.Get("/accounts/{accountId}/balances/{currency}", s.handleGetBalance)
		r.Get("/accounts/{accountId}/transactions", s.handleTransactions)
	})

	return r
}

// Run serves on cfg.Addr until ctx is cancelled, then drains in-flight
// requests for up to ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	zap.L().Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// requesterMiddleware attaches the identity asserted by the upstream proxy.
func requesterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequesterId)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		requester := models.Requester{Id: id}
		if raw := r.Header.Get(headerRequesterRank); raw != "" {
			rank, err := strconv.Atoi(raw)
			if err != nil || rank < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+headerRequesterRank+" header")
				return
			}
			requester.Rank = rank
		}

		next.ServeHTTP(w, r.WithContext(models.WithRequester(r.Context(), requester)))
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("Failed to write response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"status":  status,
		},
	})
}

// writeServiceError maps a service error onto its HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.String("route", routePattern(r)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		msg = http.StatusText(status)
	}
	writeError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidValue), errors.Is(err, store.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrCodeMismatch):
		return http.StatusForbidden
	case errors.Is(err, store.ErrExpired):
		return http.StatusGone
	case errors.Is(err, store.ErrAlreadyRedeemed),
		errors.Is(err, store.ErrAlreadySettled),
		errors.Is(err, store.ErrPoolSettled),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicatePurchase),
		errors.Is(err, store.ErrNotYetValid):
		return http.StatusConflict
	case errors.Is(err, store.ErrMilestoneNotReached), errors.Is(err, store.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrTransient), errors.Is(err, store.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
