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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"reward-ledger-go/internal/models"
)

func Load() (*models.Config, error) {
	var (
		connMaxLifetime, connMaxIdleTime, pingTimeout, busyTimeout time.Duration
		requestTimeout, shutdownTimeout                            time.Duration
		retryBackoff, relayInterval, cacheTTL                      time.Duration
	)

	for _, d := range []struct {
		key          string
		defaultValue time.Duration
		target       *time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", 5 * time.Minute, &connMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", 30 * time.Second, &connMaxIdleTime},
		{"DB_PING_TIMEOUT", 5 * time.Second, &pingTimeout},
		{"DB_BUSY_TIMEOUT", 5 * time.Second, &busyTimeout},
		{"HTTP_REQUEST_TIMEOUT", 30 * time.Second, &requestTimeout},
		{"HTTP_SHUTDOWN_TIMEOUT", 10 * time.Second, &shutdownTimeout},
		{"REDEEM_RETRY_BACKOFF", 20 * time.Millisecond, &retryBackoff},
		{"RELAY_POLLING_INTERVAL", 2 * time.Second, &relayInterval},
		{"CACHE_TTL", 2 * time.Second, &cacheTTL},
	} {
		value, err := getEnvDuration(d.key, d.defaultValue)
		if err != nil {
			return nil, err
		}
		*d.target = value
	}

	codeSecret := os.Getenv("REDEMPTION_CODE_SECRET")
	if codeSecret == "" {
		return nil, fmt.Errorf("REDEMPTION_CODE_SECRET must be set")
	}

	formanceEnabled := getEnvBool("FORMANCE_ENABLED", false)
	formance := models.FormanceConfig{
		Enabled:      formanceEnabled,
		StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
		ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
		ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
		LedgerName:   getEnvString("FORMANCE_LEDGER_NAME", "reward-ledger"),
	}
	if formanceEnabled && (formance.StackURL == "" || formance.ClientID == "" || formance.ClientSecret == "") {
		return nil, fmt.Errorf("FORMANCE_ENABLED requires FORMANCE_STACK_URL, FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET")
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "rewards.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			RequestTimeout:  requestTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
		Redemption: models.RedemptionConfig{
			CodeSecret:            codeSecret,
			MaxRetries:            getEnvInt("REDEEM_MAX_RETRIES", 3),
			RetryBackoff:          retryBackoff,
			CodeAttemptsPerMinute: getEnvInt("CODE_ATTEMPTS_PER_MINUTE", 10),
			CodeAttemptBurst:      getEnvInt("CODE_ATTEMPT_BURST", 5),
		},
		Sweeper: models.SweeperConfig{
			Enabled:   getEnvBool("SWEEP_ENABLED", true),
			Schedule:  getEnvString("SWEEP_SCHEDULE", "@every 5m"),
			BatchSize: getEnvInt("SWEEP_BATCH_SIZE", 500),
		},
		Relay: models.RelayConfig{
			Enabled:         getEnvBool("RELAY_ENABLED", true),
			PollingInterval: relayInterval,
			BatchSize:       getEnvInt("RELAY_BATCH_SIZE", 100),
		},
		Cache: models.CacheConfig{
			Size: getEnvInt("CACHE_SIZE", 4096),
			TTL:  cacheTTL,
		},
		Formance:  formance,
		UnitsFile: getEnvString("UNITS_FILE", "units.yaml"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
