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
	"os"
	"strings"

	"reward-ledger-go/internal/common"
	"reward-ledger-go/internal/config"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func parseDecimal(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return d, nil
}

func createPool(ctx context.Context, services *common.Services, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	subject := fs.String("subject", "", "Subject the pool is attached to (required)")
	kind := fs.String("kind", string(models.PoolContentShare), "Pool kind: content_share or forecast")
	value := fs.String("value", "", "Pool value amount (required for content_share; forecast pools start at 0)")
	unit := fs.String("unit", "USD", "Pool value unit")
	target := fs.String("target", "", "Milestone target, or the line for forecast pools (required)")
	_ = fs.Parse(args)

	if *value == "" && models.PoolKind(strings.ToLower(*kind)) == models.PoolForecast {
		*value = "0"
	}
	if *subject == "" || *value == "" || *target == "" {
		return fmt.Errorf("--subject, --value and --target are required")
	}
	amount, err := parseDecimal("value", *value)
	if err != nil {
		return err
	}
	milestone, err := parseDecimal("target", *target)
	if err != nil {
		return err
	}

	pool, err := services.Rewards.CreatePool(ctx, store.CreatePoolParams{
		SubjectId:       *subject,
		Kind:            models.PoolKind(strings.ToLower(*kind)),
		PoolValue:       models.Money{Amount: amount, Unit: strings.ToUpper(*unit)},
		MilestoneTarget: milestone,
	})
	if err != nil {
		return err
	}

	common.PrintHeader("POOL CREATED", common.DefaultWidth)
	printPool(pool)
	return nil
}

func acquireUnits(ctx context.Context, services *common.Services, args []string) error {
	fs := flag.NewFlagSet("acquire", flag.ExitOnError)
	pool := fs.String("pool", "", "Pool id (required)")
	owner := fs.String("owner", "", "Owner id (required)")
	units := fs.String("units", "", "Units to acquire, or the stake for forecast pools (required)")
	side := fs.String("side", "", "Forecast side: over or under")
	odds := fs.String("odds", "", "Forecast odds multiplier")
	_ = fs.Parse(args)

	if *pool == "" || *owner == "" || *units == "" {
		return fmt.Errorf("--pool, --owner and --units are required")
	}
	amount, err := parseDecimal("units", *units)
	if err != nil {
		return err
	}
	multiplier, err := parseDecimal("odds", *odds)
	if err != nil {
		return err
	}

	entry, err := services.Rewards.AcquireUnits(ctx, store.AcquireParams{
		PoolId:  *pool,
		OwnerId: *owner,
		Units:   amount,
		Side:    models.ForecastSide(strings.ToLower(*side)),
		Odds:    multiplier,
	})
	if err != nil {
		return err
	}

	common.PrintHeader("UNITS ACQUIRED", common.DefaultWidth)
	fmt.Printf("Entry:      %s\n", entry.Id)
	fmt.Printf("Instrument: %s\n", entry.InstrumentId)
	fmt.Printf("Units:      %s\n", entry.Units)
	if entry.Side != models.SideNone {
		fmt.Printf("Side:       %s @ %s\n", entry.Side, entry.Odds)
	}
	return nil
}

func settlePool(ctx context.Context, services *common.Services, args []string) error {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	pool := fs.String("pool", "", "Pool id (required)")
	metric := fs.String("metric", "", "Observed metric value (required)")
	_ = fs.Parse(args)

	if *pool == "" || *metric == "" {
		return fmt.Errorf("--pool and --metric are required")
	}
	actual, err := parseDecimal("metric", *metric)
	if err != nil {
		return err
	}

	result, err := services.Rewards.SettlePool(ctx, *pool, actual)
	if err != nil {
		return err
	}

	common.PrintHeader("POOL SETTLED", common.DefaultWidth)
	for i, tx := range result.Transactions {
		isLast := i == len(result.Transactions)-1
		fmt.Printf("%s%-20s %15s %s\n", common.BoxPrefix(isLast), tx.AccountId, tx.Amount, tx.Currency)
	}
	common.PrintFooter(fmt.Sprintf("Distributed %s, retained %s across %d payouts",
		result.Distributed, result.Retained, len(result.Transactions)), common.DefaultWidth)
	return nil
}

func printPool(pool *models.Pool) {
	fmt.Printf("Pool:      %s (%s)\n", pool.Id, pool.Kind)
	fmt.Printf("Subject:   %s\n", pool.SubjectId)
	fmt.Printf("Value:     %s\n", pool.PoolValue)
	fmt.Printf("Target:    %s\n", pool.MilestoneTarget)
	fmt.Printf("Units:     %s\n", pool.TotalUnits)
	fmt.Printf("Settled:   %t\n", pool.Settled)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if len(os.Args) < 2 {
		fmt.Println("usage: pools <create|acquire|settle|show> [flags]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	args := os.Args[2:]
	switch os.Args[1] {
	case "create":
		err = createPool(ctx, services, args)
	case "acquire":
		err = acquireUnits(ctx, services, args)
	case "settle":
		err = settlePool(ctx, services, args)
	case "show":
		if len(args) != 1 {
			err = fmt.Errorf("usage: pools show <pool-id>")
			break
		}
		var pool *models.Pool
		pool, err = services.Rewards.GetPool(ctx, args[0])
		if err == nil {
			printPool(pool)
		}
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		zap.L().Fatal("Pool command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}
