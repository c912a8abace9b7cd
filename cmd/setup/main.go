package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"reward-ledger-go/internal/common"
	"reward-ledger-go/internal/config"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"
	"reward-ledger-go/internal/units"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// writeUnitsFile writes the default catalog unless a file already exists
func writeUnitsFile(path string) {
	err := units.Save(path, units.Default())
	switch {
	case err == nil:
		zap.L().Info("Wrote default unit catalog", zap.String("file", path))
	case errors.Is(err, os.ErrExist):
		zap.L().Info("Unit catalog already present", zap.String("file", path))
	default:
		zap.L().Fatal("Failed to write unit catalog", zap.String("file", path), zap.Error(err))
	}
}

// seedDemo issues a January coupon and a content-share pool with two holders
func seedDemo(ctx context.Context, services *common.Services) error {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)

	coupon, err := services.Rewards.IssueInstrument(ctx, store.IssueParams{
		OwnerId:     "demo-alice",
		Kind:        models.KindCoupon,
		FaceValue:   models.Money{Amount: decimal.NewFromInt(25), Unit: "PERCENT_OFF"},
		ValidFrom:   &from,
		ValidUntil:  &until,
		SourceLabel: "demo:new-year",
	})
	if err != nil {
		return fmt.Errorf("failed to issue demo coupon: %w", err)
	}
	zap.L().Info("Demo coupon issued",
		zap.String("instrument_id", coupon.Id),
		zap.String("code", coupon.Code))

	pool, err := services.Rewards.CreatePool(ctx, store.CreatePoolParams{
		SubjectId:       "demo-track",
		Kind:            models.PoolContentShare,
		PoolValue:       models.Money{Amount: decimal.NewFromInt(5000), Unit: "USD"},
		MilestoneTarget: decimal.NewFromInt(1000),
	})
	if err != nil {
		return fmt.Errorf("failed to create demo pool: %w", err)
	}

	for owner, count := range map[string]int64{"demo-alice": 100, "demo-bob": 900} {
		if _, err := services.Rewards.AcquireUnits(ctx, store.AcquireParams{
			PoolId:  pool.Id,
			OwnerId: owner,
			Units:   decimal.NewFromInt(count),
		}); err != nil {
			return fmt.Errorf("failed to acquire demo units for %s: %w", owner, err)
		}
	}
	zap.L().Info("Demo pool created", zap.String("pool_id", pool.Id), zap.String("subject_id", pool.SubjectId))
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	demoFlag := flag.Bool("demo", false, "Seed a demo coupon and content-share pool")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	if cfg.UnitsFile != "" {
		writeUnitsFile(cfg.UnitsFile)
	}

	zap.L().Info("Setting up SQLite database", zap.String("path", cfg.Database.Path))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *demoFlag {
		if err := seedDemo(ctx, services); err != nil {
			zap.L().Fatal("Failed to seed demo data", zap.Error(err))
		}
	}

	zap.L().Info("Initialization complete")
}
