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
	"os"
	"os/signal"
	"syscall"
	"time"

	"reward-ledger-go/internal/api"
	"reward-ledger-go/internal/common"
	"reward-ledger-go/internal/config"
	"reward-ledger-go/internal/relay"
	"reward-ledger-go/internal/sweeper"

	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting reward ledger")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var outbox *relay.Relay
	if cfg.Relay.Enabled {
		relayCfg := relay.Config{
			Store:           services.DbService,
			Notifier:        relay.LogNotifier{},
			PollingInterval: cfg.Relay.PollingInterval,
			BatchSize:       cfg.Relay.BatchSize,
		}
		if services.Mirror != nil {
			relayCfg.Mirror = services.Mirror
		}
		outbox = relay.New(relayCfg)
		outbox.Start(ctx)
	}

	var sweep *sweeper.Sweeper
	if cfg.Sweeper.Enabled {
		sweep, err = sweeper.New(services.Rewards, cfg.Sweeper)
		if err != nil {
			zap.L().Fatal("Failed to configure expiry sweeper", zap.Error(err))
		}
		sweep.Start(ctx)
	}

	server := api.NewServer(services.Rewards, cfg.Server)
	zap.L().Info("Press Ctrl+C to stop")
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("HTTP server stopped with error", zap.Error(err))
		stop()
	}

	zap.L().Info("Shutdown signal received, stopping workers...")

	done := make(chan struct{})
	go func() {
		if sweep != nil {
			sweep.Stop()
		}
		if outbox != nil {
			outbox.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		zap.L().Warn("Forced shutdown after timeout")
	}
}
