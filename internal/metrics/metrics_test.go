package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(redemptions.WithLabelValues("success"))
	RecordRedemption("success")
	if got := testutil.ToFloat64(redemptions.WithLabelValues("success")); got != before+1 {
		t.Errorf("Expected redemption counter %v, got %v", before+1, got)
	}

	hits := testutil.ToFloat64(cacheRequests.WithLabelValues("hit"))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	if got := testutil.ToFloat64(cacheRequests.WithLabelValues("hit")); got != hits+1 {
		t.Errorf("Expected cache hits %v, got %v", hits+1, got)
	}

	expired := testutil.ToFloat64(sweepExpired)
	RecordSweep(3, 0, true)
	if got := testutil.ToFloat64(sweepExpired); got != expired+3 {
		t.Errorf("Expected expired counter %v, got %v", expired+3, got)
	}

	// Should not panic
	RecordIssued("coupon")
	RecordConflictRetry("redeem")
	RecordSettlement("success")
	RecordOutboxDelivery("InstrumentIssued")
	RecordOutboxFailure()
	RecordSweep(0, 5*time.Millisecond, false)
}

func TestInstrumentHandler(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := InstrumentHandler(func(*http.Request) string { return "/v1/instruments/{id}" }, next)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/v1/instruments/{id}", "418"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/instruments/abc", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("Expected status 418, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/v1/instruments/{id}", "418")); got != before+1 {
		t.Errorf("Expected request counter %v, got %v", before+1, got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	RecordIssued("ticket")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "reward_ledger_instruments_issued_total") {
		t.Error("Expected issued counter in metrics output")
	}
}
