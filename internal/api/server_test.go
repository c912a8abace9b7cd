package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"reward-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (http.Handler, *testEnv) {
	t.Helper()
	env := setupTestEnv(t, models.RedemptionConfig{MaxRetries: 3}, nil)
	return NewServer(env.service, models.ServerConfig{}).Handler(), env
}

func doRequest(t *testing.T, h http.Handler, method, path, requester string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if requester != "" {
		req.Header.Set(headerRequesterId, requester)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) models.InstrumentView {
	t.Helper()
	var view models.InstrumentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reward_ledger_")
}

func TestInstrumentLifecycleOverHTTP(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/instruments", "", map[string]any{
		"owner_id":     "alice",
		"kind":         "coupon",
		"face_value":   map[string]any{"amount": "25", "unit": "PERCENT_OFF"},
		"valid_from":   "2025-01-01T00:00:00Z",
		"valid_until":  "2025-01-31T23:59:59Z",
		"source_label": "new-year-promo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := decodeView(t, rec)
	require.NotEmpty(t, issued.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/instruments/"+issued.Id, "mallory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeView(t, rec).Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/owners/alice/instruments?filter=active", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Instruments []models.InstrumentView `json:"instruments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Instruments, 1)

	path := "/v1/instruments/" + issued.Id + "/redeem"
	rec = doRequest(t, h, http.MethodPost, path, "", map[string]string{"code": "ZZZZZZZZ", "channel": "web"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, http.MethodPost, path, "", map[string]string{"code": issued.Code, "channel": "web"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StateRedeemed, decodeView(t, rec).State)

	rec = doRequest(t, h, http.MethodPost, path, "", map[string]string{"code": issued.Code, "channel": "web"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/owners/alice/instruments?filter=used", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Instruments, 1)
}

func TestHTTPErrorMapping(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/v1/instruments/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Error struct {
			Message string `json:"message"`
			Status  int    `json:"status"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Error.Status)

	rec = doRequest(t, h, http.MethodPost, "/v1/instruments", "", map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/owners/alice/instruments?filter=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/instruments/missing", nil)
	req.Header.Set(headerRequesterId, "alice")
	req.Header.Set(headerRequesterRank, "gold")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPoolSettlementOverHTTP(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/pools", "", map[string]any{
		"subject_id":       "track-42",
		"kind":             "content_share",
		"pool_value":       map[string]any{"amount": "5000", "unit": "USD"},
		"milestone_target": "1000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var pool models.Pool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pool))

	for owner, units := range map[string]string{"alice": "100", "bob": "900"} {
		rec = doRequest(t, h, http.MethodPost, "/v1/pools/"+pool.Id+"/units", "", map[string]any{
			"owner_id": owner,
			"units":    units,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/pools/"+pool.Id+"/settle", "", map[string]any{"actual_metric": "500"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/v1/pools/"+pool.Id+"/settle", "", map[string]any{"actual_metric": "1200"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/v1/accounts/alice/balances/USD", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.True(t, balance.Balance.Equal(dec("500")), "balance = %s", balance.Balance)

	rec = doRequest(t, h, http.MethodPost, "/v1/pools/"+pool.Id+"/units", "", map[string]any{
		"owner_id": "carol",
		"units":    "10",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
