package formance

import (
	"context"
	"fmt"

	"reward-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Credits flow from @world into the account; debits flow back. Debits may
// overdraw the mirror when it was enabled after the account was funded.
const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $account_id
  string $transaction_id
  string $reason
  string $related_instrument_id
  string $related_pool_id
  string $amount_human
}

send [$asset $amount] (
  source = @world
  destination = @users:$account_id
)

set_tx_meta("event_type", "reward_credit")
set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("reason", $reason)
set_tx_meta("related_instrument_id", $related_instrument_id)
set_tx_meta("related_pool_id", $related_pool_id)
set_tx_meta("amount_human", $amount_human)
`

const numscriptDebit = `vars {
  asset $asset
  number $amount
  account $account_id
  string $transaction_id
  string $reason
  string $related_instrument_id
  string $related_pool_id
  string $amount_human
}

send [$asset $amount] (
  source = @users:$account_id allowing unbounded overdraft
  destination = @world
)

set_tx_meta("event_type", "reward_debit")
set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("reason", $reason)
set_tx_meta("related_instrument_id", $related_instrument_id)
set_tx_meta("related_pool_id", $related_pool_id)
set_tx_meta("amount_human", $amount_human)
`

// MirrorTransaction posts one committed ledger transaction. The local
// transaction id is the Formance reference, so a conflict means the
// transaction was mirrored on an earlier delivery.
func (s *Service) MirrorTransaction(ctx context.Context, tx models.LedgerAppendedPayload) error {
	postTx, err := buildPostTransaction(tx, s.catalog.Precision(tx.Currency))
	if err != nil {
		return err
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Transaction already mirrored", zap.String("transaction_id", tx.TransactionId))
			return nil
		}
		return fmt.Errorf("error mirroring transaction %s: %w", tx.TransactionId, err)
	}

	zap.L().Info("Transaction mirrored to Formance",
		zap.String("transaction_id", tx.TransactionId),
		zap.String("account_id", tx.AccountId),
		zap.String("currency", tx.Currency),
		zap.String("amount", tx.Amount),
		zap.String("reason", string(tx.Reason)))
	return nil
}

func buildPostTransaction(tx models.LedgerAppendedPayload, precision int32) (shared.V2PostTransaction, error) {
	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		return shared.V2PostTransaction{}, fmt.Errorf("invalid amount %q on transaction %s: %w", tx.Amount, tx.TransactionId, err)
	}
	if amount.IsZero() {
		return shared.V2PostTransaction{}, fmt.Errorf("zero amount on transaction %s", tx.TransactionId)
	}

	script := numscriptCredit
	if amount.IsNegative() {
		script = numscriptDebit
	}

	smallest, err := toSmallestUnits(amount.Abs(), precision)
	if err != nil {
		return shared.V2PostTransaction{}, fmt.Errorf("transaction %s: %w", tx.TransactionId, err)
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(tx.TransactionId),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars: map[string]string{
				"asset":                 formanceAsset(tx.Currency, precision),
				"amount":                smallest,
				"account_id":            tx.AccountId,
				"transaction_id":        tx.TransactionId,
				"reason":                string(tx.Reason),
				"related_instrument_id": tx.RelatedInstrumentId,
				"related_pool_id":       tx.RelatedPoolId,
				"amount_human":          amount.String(),
			},
		},
	}
	if !tx.CreatedAt.IsZero() {
		createdAt := tx.CreatedAt
		postTx.Timestamp = &createdAt
	}
	return postTx, nil
}

// toSmallestUnits renders a non-negative amount as an integer count of the
// unit's smallest denomination.
func toSmallestUnits(amount decimal.Decimal, precision int32) (string, error) {
	shifted := amount.Shift(precision)
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", fmt.Errorf("amount %s exceeds precision %d", amount, precision)
	}
	return shifted.BigInt().String(), nil
}

func strPtr(s string) *string { return &s }
