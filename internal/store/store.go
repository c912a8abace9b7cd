package store

import (
	"context"
	"errors"
	"iter"
	"time"

	"reward-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidValue        = errors.New("invalid value")
	ErrInvalidWindow       = errors.New("invalid validity window")
	ErrAlreadyRedeemed     = errors.New("instrument already redeemed")
	ErrExpired             = errors.New("instrument expired")
	ErrNotYetValid         = errors.New("instrument not yet valid")
	ErrCodeMismatch        = errors.New("redemption code mismatch")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrPoolSettled         = errors.New("pool already settled, no further entries accepted")
	ErrAlreadySettled      = errors.New("pool already settled")
	ErrMilestoneNotReached = errors.New("pool milestone not reached")
	ErrConcurrencyConflict = errors.New("concurrent modification detected")
	ErrLedgerInvariant     = errors.New("ledger invariant violation")
	ErrDuplicatePurchase   = errors.New("duplicate purchase")
	ErrTooManyAttempts     = errors.New("too many redemption attempts")
	ErrTransient           = errors.New("transient failure, retry later")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// ListFilter narrows ListByOwner results
type ListFilter string

const (
	FilterAll    ListFilter = "all"
	FilterActive ListFilter = "active"
	FilterUsed   ListFilter = "used"
)

func (f ListFilter) Valid() bool {
	switch f {
	case FilterAll, FilterActive, FilterUsed:
		return true
	}
	return false
}

// IssueParams contains the parameters for issuing an instrument.
type IssueParams struct {
	OwnerId      string
	Kind         models.InstrumentKind
	FaceValue    models.Money
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	SourceLabel  string
	RequiredRank int
	// PaymentRef makes issuance idempotent for purchases confirmed by the
	// PaymentGateway. Empty for earned instruments.
	PaymentRef string
}

// RedeemParams contains the credentials presented for a redemption.
type RedeemParams struct {
	InstrumentId  string
	PresentedCode string
	Channel       string
}

// CreatePoolParams contains the parameters for launching a pool.
type CreatePoolParams struct {
	SubjectId       string
	Kind            models.PoolKind
	PoolValue       models.Money
	MilestoneTarget decimal.Decimal
}

// AcquireParams contains the parameters for acquiring pool units.
// Side and Odds apply to forecast pools only.
type AcquireParams struct {
	PoolId  string
	OwnerId string
	Units   decimal.Decimal
	Side    models.ForecastSide
	Odds    decimal.Decimal
}

// AppendParams contains the parameters for a ledger append.
type AppendParams struct {
	AccountId           string
	Amount              decimal.Decimal
	Currency            string
	Reason              models.LedgerReason
	RelatedInstrumentId string
	RelatedPoolId       string
}

// InstrumentStore is the durable record of issued instruments.
type InstrumentStore interface {
	Issue(ctx context.Context, params IssueParams) (*models.Instrument, error)
	Get(ctx context.Context, id string) (*models.Instrument, error)
	ListByOwner(ctx context.Context, ownerId string, filter ListFilter) iter.Seq2[models.Instrument, error]
	Redeem(ctx context.Context, params RedeemParams) (*models.Instrument, error)
	Void(ctx context.Context, id, reason string) (*models.Instrument, error)
	// ExpireDue persists the expired transition for up to limit instruments
	// whose window closed before now and returns their ids.
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// PoolStore holds pools and runs settlement.
type PoolStore interface {
	CreatePool(ctx context.Context, params CreatePoolParams) (*models.Pool, error)
	GetPool(ctx context.Context, id string) (*models.Pool, error)
	ListPoolEntries(ctx context.Context, poolId string) ([]models.PoolEntry, error)
	AcquireUnits(ctx context.Context, params AcquireParams) (*models.PoolEntry, error)
	Settle(ctx context.Context, poolId string, actualMetric decimal.Decimal) (*models.SettlementResult, error)
}

// LedgerStore is the append-only ledger and its balance projection.
type LedgerStore interface {
	AppendTransaction(ctx context.Context, params AppendParams) (*models.LedgerTransaction, error)
	BalanceOf(ctx context.Context, accountId, currency string) (decimal.Decimal, error)
	GetAllBalances(ctx context.Context, accountId string) ([]models.AccountBalance, error)
	GetTransactionHistory(ctx context.Context, accountId, currency string, limit, offset int) ([]models.LedgerTransaction, error)
	ReconcileBalance(ctx context.Context, accountId, currency string) error
	RebuildBalance(ctx context.Context, accountId, currency string) (decimal.Decimal, error)
}

// OutboxStore exposes undelivered domain events to the relay.
type OutboxStore interface {
	PendingEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventsDelivered(ctx context.Context, seqs []int64) error
}

// RewardStore is the contract every backend must satisfy.
type RewardStore interface {
	InstrumentStore
	PoolStore
	LedgerStore
	OutboxStore

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
