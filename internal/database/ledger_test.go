package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"
)

func TestBalance_RebuildRestoresLedgerAuthority(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	for _, amount := range []string{"10.25", "4.75", "-3.00"} {
		if _, err := service.AppendTransaction(ctx, store.AppendParams{
			AccountId: "user1", Amount: dec(amount), Currency: "USD", Reason: models.ReasonIssue,
		}); err != nil {
			t.Fatalf("AppendTransaction(%s) failed: %v", amount, err)
		}
	}

	if err := service.ReconcileBalance(ctx, "user1", "USD"); err != nil {
		t.Fatalf("ReconcileBalance failed: %v", err)
	}

	// Corrupt the projection directly
	if _, err := service.db.Exec("UPDATE account_balances SET balance = '999' WHERE account_id = 'user1'"); err != nil {
		t.Fatalf("Failed to corrupt projection: %v", err)
	}
	if err := service.ReconcileBalance(ctx, "user1", "USD"); !errors.Is(err, store.ErrLedgerInvariant) {
		t.Fatalf("Expected ErrLedgerInvariant, got %v", err)
	}

	rebuilt, err := service.RebuildBalance(ctx, "user1", "USD")
	if err != nil {
		t.Fatalf("RebuildBalance failed: %v", err)
	}
	if !rebuilt.Equal(dec("12")) {
		t.Errorf("Expected rebuilt balance 12, got %s", rebuilt)
	}
	balance, _ := service.BalanceOf(ctx, "user1", "USD")
	if !balance.Equal(rebuilt) {
		t.Errorf("Projection %s does not match rebuilt %s", balance, rebuilt)
	}
	if err := service.ReconcileBalance(ctx, "user1", "USD"); err != nil {
		t.Errorf("ReconcileBalance after rebuild failed: %v", err)
	}
}

func TestLedger_IsAppendOnly(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	tx, err := service.AppendTransaction(ctx, store.AppendParams{
		AccountId: "user1", Amount: dec("5"), Currency: "GEMS", Reason: models.ReasonIssue,
	})
	if err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}

	if _, err := service.db.Exec("UPDATE ledger_transactions SET amount = '500' WHERE id = ?", tx.Id); err == nil {
		t.Error("Expected update of a ledger row to be rejected")
	}
	if _, err := service.db.Exec("DELETE FROM ledger_transactions WHERE id = ?", tx.Id); err == nil {
		t.Error("Expected delete of a ledger row to be rejected")
	}
}

func TestAppendTransaction_Validation(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()

	tests := []struct {
		name   string
		params store.AppendParams
	}{
		{"zero amount", store.AppendParams{AccountId: "u", Amount: dec("0"), Currency: "USD", Reason: models.ReasonIssue}},
		{"non-monetary", store.AppendParams{AccountId: "u", Amount: dec("1"), Currency: "FREE_ITEM", Reason: models.ReasonIssue}},
		{"unknown reason", store.AppendParams{AccountId: "u", Amount: dec("1"), Currency: "USD", Reason: "gift"}},
		{"too precise", store.AppendParams{AccountId: "u", Amount: dec("0.001"), Currency: "USD", Reason: models.ReasonIssue}},
		{"missing account", store.AppendParams{Amount: dec("1"), Currency: "USD", Reason: models.ReasonIssue}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.AppendTransaction(context.Background(), tt.params); !errors.Is(err, store.ErrInvalidValue) {
				t.Errorf("Expected ErrInvalidValue, got %v", err)
			}
		})
	}
}

func TestOutbox_EventsFollowCommits(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	inst, err := service.Issue(ctx, store.IssueParams{OwnerId: "user1", Kind: models.KindCoupon, FaceValue: money("3", "USD")})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := service.Redeem(ctx, store.RedeemParams{InstrumentId: inst.Id,
		PresentedCode: service.coder.Code(inst.Id), Channel: "pos"}); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	// A failed redemption writes nothing
	_, _ = service.Redeem(ctx, store.RedeemParams{InstrumentId: inst.Id, PresentedCode: "x", Channel: "pos"})

	events, err := service.PendingEvents(ctx, 100)
	if err != nil {
		t.Fatalf("PendingEvents failed: %v", err)
	}
	var types []models.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := []models.EventType{
		models.EventLedgerAppended, models.EventInstrumentIssued,
		models.EventLedgerAppended, models.EventInstrumentRedeemed,
	}
	if len(types) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], types[i])
		}
	}

	var payload models.InstrumentEventPayload
	if err := json.Unmarshal(events[3].Payload, &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if payload.InstrumentId != inst.Id || payload.Channel != "pos" || payload.State != models.StateRedeemed {
		t.Errorf("Unexpected redeemed payload %+v", payload)
	}

	seqs := make([]int64, len(events))
	for i, e := range events {
		seqs[i] = e.Seq
	}
	if err := service.MarkEventsDelivered(ctx, seqs); err != nil {
		t.Fatalf("MarkEventsDelivered failed: %v", err)
	}
	remaining, err := service.PendingEvents(ctx, 100)
	if err != nil {
		t.Fatalf("PendingEvents failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Expected no pending events, got %d", len(remaining))
	}
}
