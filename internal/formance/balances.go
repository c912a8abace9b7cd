package formance

import (
	"context"
	"fmt"
	"math/big"

	"reward-ledger-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MirroredBalance returns the mirrored balance for an account and currency.
func (s *Service) MirroredBalance(ctx context.Context, accountId, currency string) (decimal.Decimal, error) {
	zap.L().Debug("Getting mirrored balance from Formance",
		zap.String("account_id", accountId), zap.String("currency", currency))

	vols, err := s.getAccountVolumes(ctx, userAccount(accountId))
	if err != nil {
		return decimal.Zero, err
	}

	precision := s.catalog.Precision(currency)
	if bal := volumeBalance(vols, formanceAsset(currency, precision)); bal != nil {
		return bigIntToDecimal(bal, precision), nil
	}
	return decimal.Zero, nil
}

// MirroredBalances returns all non-zero mirrored balances for an account.
func (s *Service) MirroredBalances(ctx context.Context, accountId string) ([]models.BalanceRecord, error) {
	vols, err := s.getAccountVolumes(ctx, userAccount(accountId))
	if err != nil {
		return nil, err
	}

	var balances []models.BalanceRecord
	for fAsset := range vols {
		bal := volumeBalance(vols, fAsset)
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		symbol, precision := parseAsset(fAsset)
		balances = append(balances, models.BalanceRecord{
			AccountId: accountId,
			Currency:  symbol,
			Balance:   bigIntToDecimal(bal, precision),
		})
	}
	return balances, nil
}

// ---------- helpers ----------

// getAccountVolumes fetches volumes for a single account via GetAccount.
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account volumes for %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, precision int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -precision)
}

// parseAsset splits a Formance asset like "USD/2" into symbol and precision.
func parseAsset(fAsset string) (string, int32) {
	for i, c := range fAsset {
		if c == '/' {
			var p int32
			if _, err := fmt.Sscanf(fAsset[i+1:], "%d", &p); err != nil {
				return fAsset[:i], 0
			}
			return fAsset[:i], p
		}
	}
	return fAsset, 0
}
