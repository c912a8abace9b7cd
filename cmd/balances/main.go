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

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"reward-ledger-go/internal/common"
	"reward-ledger-go/internal/config"
	"reward-ledger-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts        int
	totalBalances        int
	accountsWithBalances int
	rebuilt              int
	mirrorMismatches     int
}

func formatTransactionId(txId string) string {
	if txId == "" {
		return "none"
	}
	if len(txId) > 8 {
		return txId[:8] + "..."
	}
	return txId
}

func printAccountHeader(accountId string, balanceCount int) {
	fmt.Printf("\n┌─ Account: %s\n", accountId)
	fmt.Printf("│  Currencies: %d\n", balanceCount)
	fmt.Println("├" + strings.Repeat("─", 78))
}

// processAccount prints one account's balances. With audit set every
// projection is reconciled against the log first; with the mirror set the
// Formance balance is shown alongside.
func processAccount(ctx context.Context, services *common.Services, accountId string, audit bool, stats *balanceStats) error {
	balances, err := services.Rewards.GetBalances(ctx, accountId)
	if err != nil {
		return fmt.Errorf("failed to get balances: %w", err)
	}
	if len(balances) == 0 {
		return nil
	}

	printAccountHeader(accountId, len(balances))
	for i, balance := range balances {
		isLast := i == len(balances)-1
		line := fmt.Sprintf("%s %-12s: %20s", common.BoxPrefix(isLast), balance.Currency, balance.Balance.String())

		if audit {
			audited, err := services.Rewards.AuditBalance(ctx, accountId, balance.Currency)
			if err != nil {
				return fmt.Errorf("failed to audit %s: %w", balance.Currency, err)
			}
			if !audited.Equal(balance.Balance) {
				stats.rebuilt++
				line += fmt.Sprintf("  REBUILT -> %s", audited.String())
			} else {
				line += "  ok"
			}
		}

		if services.Mirror != nil {
			mirrored, err := services.Mirror.MirroredBalance(ctx, accountId, balance.Currency)
			switch {
			case err != nil:
				line += "  mirror: unavailable"
			case mirrored.Equal(balance.Balance):
				line += "  mirror: in sync"
			default:
				stats.mirrorMismatches++
				line += fmt.Sprintf("  mirror: %s", mirrored.String())
			}
		}
		fmt.Println(line)
	}

	history, err := services.Rewards.GetTransactionHistory(ctx, accountId, balances[0].Currency, 1, 0)
	if err == nil && len(history) > 0 {
		printLastTransaction(history[0])
	}

	stats.accountsWithBalances++
	stats.totalBalances += len(balances)
	return nil
}

func printLastTransaction(tx models.TransactionRecord) {
	fmt.Printf("   last tx %s: %s %s %s (%s)\n",
		formatTransactionId(tx.Id),
		tx.Reason,
		tx.Amount.String(),
		tx.Currency,
		tx.CreatedAt.Format("2006-01-02 15:04:05"))
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	accountsFlag := flag.String("accounts", "", "Comma-separated account ids (required)")
	auditFlag := flag.Bool("audit", false, "Reconcile each projection against the ledger and rebuild on divergence")
	flag.Parse()

	if *accountsFlag == "" {
		logger.Fatal("--accounts is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, accountId := range strings.Split(*accountsFlag, ",") {
		accountId = strings.TrimSpace(accountId)
		if accountId == "" {
			continue
		}
		stats.totalAccounts++

		if err := processAccount(ctx, services, accountId, *auditFlag, &stats); err != nil {
			logger.Error("Failed to process account",
				zap.String("account_id", accountId),
				zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts with balances (%d balances across %d accounts queried)",
		stats.accountsWithBalances, stats.totalBalances, stats.totalAccounts)
	if *auditFlag {
		summary += fmt.Sprintf(", %d rebuilt", stats.rebuilt)
	}
	if services.Mirror != nil {
		summary += fmt.Sprintf(", %d mirror mismatches", stats.mirrorMismatches)
	}
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts_queried", stats.totalAccounts),
		zap.Int("accounts_with_balances", stats.accountsWithBalances),
		zap.Int("total_balances", stats.totalBalances))
}
