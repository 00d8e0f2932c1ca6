package database

import (
	"context"
	"encoding/json"
	"time"

	"market-structure-bot/internal/performance"
	"market-structure-bot/internal/signal"
	"market-structure-bot/internal/swing"
)

// AnalysisRun is one persisted engine session over a bar series.
type AnalysisRun struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Interval   string     `json:"interval"`
	Bars       int        `json:"bars"`
	Fractals   int        `json:"fractals"`
	Swings     int        `json:"swings"`
	Patterns   int        `json:"patterns"`
	Signals    int        `json:"signals"`
	Bias       string     `json:"bias"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// CreateRun inserts a new analysis run
func (r *Repository) CreateRun(ctx context.Context, run *AnalysisRun) error {
	query := `
		INSERT INTO analysis_runs (id, symbol, interval, started_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Pool.Exec(ctx, query, run.ID, run.Symbol, run.Interval, run.StartedAt)
	return err
}

// FinishRun records the final counters and bias of a completed run
func (r *Repository) FinishRun(ctx context.Context, run *AnalysisRun) error {
	query := `
		UPDATE analysis_runs
		SET bars = $2, fractals = $3, swings = $4, patterns = $5, signals = $6,
		    bias = $7, finished_at = $8
		WHERE id = $1
	`
	now := time.Now().UTC()
	run.FinishedAt = &now
	_, err := r.db.Pool.Exec(
		ctx, query,
		run.ID, run.Bars, run.Fractals, run.Swings, run.Patterns, run.Signals,
		run.Bias, now,
	)
	return err
}

// GetRun retrieves a run by ID
func (r *Repository) GetRun(ctx context.Context, id string) (*AnalysisRun, error) {
	query := `
		SELECT id, symbol, interval, bars, fractals, swings, patterns, signals,
		       COALESCE(bias, ''), started_at, finished_at
		FROM analysis_runs
		WHERE id = $1
	`
	run := &AnalysisRun{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Symbol, &run.Interval, &run.Bars, &run.Fractals,
		&run.Swings, &run.Patterns, &run.Signals, &run.Bias,
		&run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// SaveSignal inserts an emitted enhanced signal
func (r *Repository) SaveSignal(ctx context.Context, runID string, s *signal.EnhancedSignal) error {
	factors, err := json.Marshal(s.Factors)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO structure_signals (id, run_id, signal_time, side, entry_price,
			fib_ratio, fib_price, pattern, score, quality, stop_loss, take_profit,
			risk_reward, factors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.Pool.Exec(
		ctx, query,
		s.ID, runID, s.Time, s.Side, s.EntryPrice,
		s.FibRatio, s.FibPrice, s.Pattern.Type, s.Score, s.Quality,
		s.StopLoss, s.TakeProfit, s.RiskReward, factors,
	)
	return err
}

// UpdateSignalOutcome records the resolution of a tracked signal
func (r *Repository) UpdateSignalOutcome(ctx context.Context, ts *performance.TrackedSignal) error {
	query := `
		UPDATE structure_signals
		SET outcome = $2, bars_open = $3, resolved_at = $4
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, ts.Signal.ID, ts.Outcome, ts.BarsOpen, ts.ResolvedAt)
	return err
}

// SaveDominantSwing records a dominant swing selection
func (r *Repository) SaveDominantSwing(ctx context.Context, runID string, s *swing.Swing, atBar int) error {
	query := `
		INSERT INTO dominant_swings (run_id, direction, start_index, end_index,
			start_price, end_price, magnitude, selected_at_bar)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		runID, s.Direction, s.Start.Index, s.End.Index,
		s.Start.Price, s.End.Price, s.Magnitude, atBar,
	)
	return err
}

// GetRunSignals retrieves the persisted signals of a run, newest first
func (r *Repository) GetRunSignals(ctx context.Context, runID string, limit int) ([]*StoredSignal, error) {
	query := `
		SELECT id, signal_time, side, entry_price, fib_ratio, fib_price, pattern,
		       score, quality, stop_loss, take_profit, risk_reward, outcome,
		       bars_open, resolved_at
		FROM structure_signals
		WHERE run_id = $1
		ORDER BY signal_time DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*StoredSignal
	for rows.Next() {
		s := &StoredSignal{}
		err := rows.Scan(
			&s.ID, &s.Time, &s.Side, &s.EntryPrice, &s.FibRatio, &s.FibPrice,
			&s.Pattern, &s.Score, &s.Quality, &s.StopLoss, &s.TakeProfit,
			&s.RiskReward, &s.Outcome, &s.BarsOpen, &s.ResolvedAt,
		)
		if err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// StoredSignal is the persisted view of an emitted signal with its outcome.
type StoredSignal struct {
	ID         string     `json:"id"`
	Time       time.Time  `json:"time"`
	Side       string     `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	FibRatio   float64    `json:"fib_ratio"`
	FibPrice   float64    `json:"fib_price"`
	Pattern    string     `json:"pattern"`
	Score      float64    `json:"score"`
	Quality    string     `json:"quality"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	RiskReward float64    `json:"risk_reward"`
	Outcome    string     `json:"outcome"`
	BarsOpen   int        `json:"bars_open"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
