// ./internal/state/db.go
package state

import (
	"fmt"
	"time"

	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// InitDB initializes the database connection pool from a postgres:// DSN.
func InitDB(databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("database URL not configured")
	}

	var err error
	DB, err = sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS trace_stats (
			trace_stat_id SERIAL PRIMARY KEY,
			trace_id VARCHAR(16) NOT NULL,
			origin VARCHAR(32) NOT NULL,
			candidates INTEGER NOT NULL,
			buckets INTEGER NOT NULL,
			underwater INTEGER NOT NULL,
			elapsed_ms BIGINT NOT NULL,
			over_deadline BOOLEAN NOT NULL DEFAULT FALSE,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_trace_stats_recorded_at
			ON trace_stats (recorded_at DESC);

		CREATE TABLE IF NOT EXISTS liquidation_plans (
			plan_id SERIAL PRIMARY KEY,
			trace_id VARCHAR(16) NOT NULL,
			user_address VARCHAR(42) NOT NULL,
			debt_asset VARCHAR(42) NOT NULL,
			collateral_asset VARCHAR(42) NOT NULL,
			debt_to_cover NUMERIC(78,0) NOT NULL,
			seized_amount NUMERIC(78,0) NOT NULL,
			gross_profit_base NUMERIC(78,0) NOT NULL,
			net_profit_base NUMERIC(78,0) NOT NULL,
			flash_source VARCHAR(16) NOT NULL,
			submitted BOOLEAN NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_liquidation_plans_recorded_at
			ON liquidation_plans (recorded_at DESC);
		CREATE INDEX IF NOT EXISTS idx_liquidation_plans_user
			ON liquidation_plans (user_address);
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	log.Info().Msg("Database schema is up to date")
	return nil
}
