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
	"errors"
	"flag"
	"fmt"

	"reward-ledger-go/internal/common"
	"reward-ledger-go/internal/config"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"go.uber.org/zap"
)

type redeemRequest struct {
	id      string
	code    string
	scan    string
	channel string
	void    string
}

func parseAndValidateFlags() (*redeemRequest, error) {
	idFlag := flag.String("id", "", "Instrument id")
	codeFlag := flag.String("code", "", "Redemption code presented by the holder")
	scanFlag := flag.String("scan", "", "Scan payload (replaces --id and --code)")
	channelFlag := flag.String("channel", "cli", "Redemption channel")
	voidFlag := flag.String("void", "", "Void the instrument with this reason instead of redeeming")
	flag.Parse()

	req := &redeemRequest{id: *idFlag, code: *codeFlag, scan: *scanFlag, channel: *channelFlag, void: *voidFlag}
	switch {
	case req.scan != "":
		return req, nil
	case req.id == "":
		return nil, fmt.Errorf("either --scan or --id is required")
	case req.void == "" && req.code == "":
		return nil, fmt.Errorf("--code is required when redeeming by id")
	}
	return req, nil
}

func run(ctx context.Context, services *common.Services, req *redeemRequest) (*models.InstrumentView, error) {
	rewards := services.Rewards
	switch {
	case req.void != "":
		return rewards.VoidInstrument(ctx, req.id, req.void)
	case req.scan != "":
		return rewards.RedeemScan(ctx, req.scan, req.channel)
	default:
		return rewards.Redeem(ctx, store.RedeemParams{
			InstrumentId:  req.id,
			PresentedCode: req.code,
			Channel:       req.channel,
		})
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
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

	view, err := run(ctx, services, req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyRedeemed):
			fmt.Println("Instrument was already redeemed")
		case errors.Is(err, store.ErrExpired):
			fmt.Println("Instrument has expired")
		case errors.Is(err, store.ErrCodeMismatch):
			fmt.Println("Code does not match this instrument")
		}
		zap.L().Fatal("Redemption failed", zap.Error(err))
	}

	title := "INSTRUMENT REDEEMED"
	if view.State == models.StateVoided {
		title = "INSTRUMENT VOIDED"
	}
	common.PrintHeader(title, common.DefaultWidth)
	common.PrintInstrument(*view, true)
	common.PrintFooter(fmt.Sprintf("State: %s", view.State), common.DefaultWidth)
}
