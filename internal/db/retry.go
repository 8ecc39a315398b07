package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// RetryConfig controls how often a connection is re-attempted at startup.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          bool
}

// DefaultRetryConfig returns the startup retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     10,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
}

// InitWithRetry opens the database described by config, retrying transient
// failures with exponential backoff. SQLite is opened once.
func InitWithRetry(ctx context.Context, config *Config, retry RetryConfig) (*DB, error) {
	if config.Driver == DriverSQLite {
		return New(config)
	}

	var lastErr error
	backoff := retry.InitialInterval
	start := time.Now()

	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		database, err := New(config)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempts", attempt).
					Dur("elapsed", time.Since(start)).
					Msg("Database connection established after retries")
			}
			return database, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			log.Error().Err(err).Int("attempt", attempt).Msg("Database connection failed with non-retryable error")
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if attempt >= retry.MaxAttempts {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", retry.MaxAttempts).
			Dur("retry_in", backoff).
			Msg("Database connection failed, retrying...")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connection retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff, retry)
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", retry.MaxAttempts, lastErr)
}

func nextBackoff(current time.Duration, retry RetryConfig) time.Duration {
	next := time.Duration(float64(current) * retry.Multiplier)
	if next > retry.MaxInterval {
		next = retry.MaxInterval
	}
	if retry.Jitter {
		// +/-10%
		next += time.Duration(float64(next) * 0.1 * (2*rand.Float64() - 1))
	}
	return next
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08", "53", "57", "58":
			return true
		default:
			// Auth, syntax and constraint failures will not fix themselves
			return false
		}
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"i/o timeout",
		"server closed",
		"too many connections",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
