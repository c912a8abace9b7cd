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
	"time"

	"reward-ledger-go/internal/common"
	"reward-ledger-go/internal/config"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func parseTime(flagName, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s, expected RFC3339 (e.g. 2025-01-31T23:59:59Z): %w", flagName, err)
	}
	return &t, nil
}

func parseAndValidateFlags() (store.IssueParams, error) {
	ownerFlag := flag.String("owner", "", "Owner id (required)")
	kindFlag := flag.String("kind", "coupon", "Instrument kind: coupon or ticket")
	amountFlag := flag.String("amount", "", "Face value amount (required)")
	unitFlag := flag.String("unit", "", "Face value unit, e.g. USD, GEMS, PERCENT_OFF (required)")
	fromFlag := flag.String("from", "", "Valid from, RFC3339 (optional)")
	untilFlag := flag.String("until", "", "Valid until, RFC3339 (optional)")
	labelFlag := flag.String("label", "cli", "Source label")
	rankFlag := flag.Int("rank", 0, "Required requester rank")
	flag.Parse()

	if *ownerFlag == "" || *amountFlag == "" || *unitFlag == "" {
		return store.IssueParams{}, fmt.Errorf("--owner, --amount and --unit are required")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return store.IssueParams{}, fmt.Errorf("invalid amount format: %w", err)
	}

	validFrom, err := parseTime("from", *fromFlag)
	if err != nil {
		return store.IssueParams{}, err
	}
	validUntil, err := parseTime("until", *untilFlag)
	if err != nil {
		return store.IssueParams{}, err
	}

	return store.IssueParams{
		OwnerId:      *ownerFlag,
		Kind:         models.InstrumentKind(strings.ToLower(*kindFlag)),
		FaceValue:    models.Money{Amount: amount, Unit: strings.ToUpper(*unitFlag)},
		ValidFrom:    validFrom,
		ValidUntil:   validUntil,
		SourceLabel:  *labelFlag,
		RequiredRank: *rankFlag,
	}, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	params, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid arguments", zap.Error(err))
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

	view, err := services.Rewards.IssueInstrument(ctx, params)
	if err != nil {
		zap.L().Fatal("Failed to issue instrument", zap.Error(err))
	}

	common.PrintHeader("INSTRUMENT ISSUED", common.DefaultWidth)
	common.PrintInstrument(*view, true)
	if view.ScanPayload != "" {
		fmt.Printf("\nScan payload: %s\n", view.ScanPayload)
	}
	common.PrintFooter(fmt.Sprintf("Owner %s now holds instrument %s", view.OwnerId, view.Id), common.DefaultWidth)
}
