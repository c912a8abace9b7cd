package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"reward-ledger-go/internal/api"
	"reward-ledger-go/internal/database"
	"reward-ledger-go/internal/formance"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/units"
	"reward-ledger-go/internal/voucher"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Rewards   *api.RewardService
	Catalog   *units.Catalog
	Coder     *voucher.Coder
	// Mirror is nil unless FORMANCE_ENABLED is set.
	Mirror *formance.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	catalog, err := units.Load(cfg.UnitsFile)
	if err != nil {
		return nil, err
	}
	zap.L().Info("Unit catalog loaded", zap.Strings("units", catalog.Symbols()))

	coder := voucher.NewCoder(cfg.Redemption.CodeSecret)

	dbService, err := database.NewService(ctx, cfg.Database, catalog, coder)
	if err != nil {
		return nil, err
	}

	rewards, err := api.NewRewardService(dbService, catalog, coder, cfg.Redemption, cfg.Cache)
	if err != nil {
		dbService.Close()
		return nil, fmt.Errorf("failed to create reward service: %w", err)
	}

	services := &Services{
		DbService: dbService,
		Rewards:   rewards,
		Catalog:   catalog,
		Coder:     coder,
	}

	if cfg.Formance.Enabled {
		mirror, err := formance.NewService(ctx, cfg.Formance, catalog)
		if err != nil {
			dbService.Close()
			return nil, fmt.Errorf("failed to initialize ledger mirror: %w", err)
		}
		services.Mirror = mirror
	}

	return services, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
