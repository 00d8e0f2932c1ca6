package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	URL      string
	MaxConns int
}

// NewDB creates a new database connection
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "Database").Logger()
	log.Info().Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		// Analysis runs: one row per session over a bar series
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			interval VARCHAR(10) NOT NULL,
			bars INT NOT NULL DEFAULT 0,
			fractals INT NOT NULL DEFAULT 0,
			swings INT NOT NULL DEFAULT 0,
			patterns INT NOT NULL DEFAULT 0,
			signals INT NOT NULL DEFAULT 0,
			bias VARCHAR(10),
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_runs_symbol ON analysis_runs(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_runs_started_at ON analysis_runs(started_at)`,

		// Enhanced signals emitted during a run
		`CREATE TABLE IF NOT EXISTS structure_signals (
			id UUID PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
			signal_time TIMESTAMP NOT NULL,
			side VARCHAR(4) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			fib_ratio DECIMAL(6, 4) NOT NULL,
			fib_price DECIMAL(20, 8) NOT NULL,
			pattern VARCHAR(30) NOT NULL,
			score DECIMAL(6, 2) NOT NULL,
			quality VARCHAR(10) NOT NULL,
			stop_loss DECIMAL(20, 8) NOT NULL,
			take_profit DECIMAL(20, 8) NOT NULL,
			risk_reward DECIMAL(6, 2) NOT NULL,
			factors JSONB,
			outcome VARCHAR(12) NOT NULL DEFAULT 'open',
			bars_open INT NOT NULL DEFAULT 0,
			resolved_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_structure_signals_run ON structure_signals(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_structure_signals_time ON structure_signals(signal_time)`,
		`CREATE INDEX IF NOT EXISTS idx_structure_signals_outcome ON structure_signals(outcome)`,

		// Dominant swing history per run
		`CREATE TABLE IF NOT EXISTS dominant_swings (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
			direction VARCHAR(4) NOT NULL,
			start_index INT NOT NULL,
			end_index INT NOT NULL,
			start_price DECIMAL(20, 8) NOT NULL,
			end_price DECIMAL(20, 8) NOT NULL,
			magnitude DECIMAL(20, 8) NOT NULL,
			selected_at_bar INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dominant_swings_run ON dominant_swings(run_id)`,
	}

	// Execute migrations
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
