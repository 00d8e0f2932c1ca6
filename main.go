package main

import (
	"context"
	"io"
	"os"
	ossignal "os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"market-structure-bot/config"
	"market-structure-bot/internal/abc"
	"market-structure-bot/internal/api"
	"market-structure-bot/internal/auth"
	"market-structure-bot/internal/cache"
	"market-structure-bot/internal/confluence"
	"market-structure-bot/internal/database"
	"market-structure-bot/internal/engine"
	"market-structure-bot/internal/events"
	"market-structure-bot/internal/fractal"
	"market-structure-bot/internal/performance"
	"market-structure-bot/internal/series"
	"market-structure-bot/internal/signal"
	"market-structure-bot/internal/swing"
	"market-structure-bot/internal/vault"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Msg("market structure engine starting")

	// Vault is the optional secret source for auth and database credentials.
	vaultClient, err := vault.NewClient(vault.Config{
		Enabled:    cfg.VaultConfig.Enabled,
		Address:    cfg.VaultConfig.Address,
		Token:      cfg.VaultConfig.Token,
		MountPath:  cfg.VaultConfig.MountPath,
		SecretPath: cfg.VaultConfig.SecretPath,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create vault client")
	}
	resolveSecrets(cfg, vaultClient, logger)

	eventBus := events.NewEventBus()

	session, err := engine.NewSession(engineConfig(cfg), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid engine configuration")
	}
	live := &liveSession{session: session}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence is optional; the engine runs fully in memory without it.
	var repo *database.Repository
	var run *database.AnalysisRun
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			URL:      cfg.DatabaseConfig.URL,
			MaxConns: cfg.DatabaseConfig.MaxConns,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("database migrations failed")
		}
		repo = database.NewRepository(db)

		run = &database.AnalysisRun{
			ID:        session.ID,
			Symbol:    cfg.DataConfig.Symbol,
			Interval:  cfg.DataConfig.Interval,
			StartedAt: time.Now().UTC(),
		}
		if err := repo.CreateRun(ctx, run); err != nil {
			logger.Fatal().Err(err).Msg("failed to create analysis run")
		}
	}

	var snapshots *cache.SnapshotCache
	if cfg.RedisConfig.Enabled {
		snapshots = cache.NewSnapshotCache(cache.Config{
			Address:     cfg.RedisConfig.Address,
			Password:    cfg.RedisConfig.Password,
			DB:          cfg.RedisConfig.DB,
			PoolSize:    cfg.RedisConfig.PoolSize,
			SnapshotTTL: time.Duration(cfg.RedisConfig.SnapshotTTL) * time.Second,
		}, logger)
		defer snapshots.Close()
	}

	bars, err := loadBars(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load bar series")
	}
	logger.Info().Int("bars", len(bars)).Str("symbol", cfg.DataConfig.Symbol).Msg("bar series loaded")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runFeed(ctx, cfg, live, bars, eventBus, repo, snapshots, logger)
	}()

	if cfg.ServerConfig.Enabled {
		server := buildServer(cfg, live, eventBus, repo, snapshots, logger)
		if run != nil {
			server.SetRunID(run.ID)
		}
		if err := server.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("api server failed")
			stop()
		}
	} else {
		<-ctx.Done()
	}

	wg.Wait()

	if repo != nil && run != nil {
		finishRun(run, live.Snapshot(), repo, logger)
	}
	logger.Info().Msg("market structure engine stopped")
}

// liveSession serializes access to the single-threaded engine session so the
// feed loop and API handlers never race.
type liveSession struct {
	mu      sync.Mutex
	session *engine.Session
}

func (l *liveSession) SessionID() string {
	return l.session.ID
}

func (l *liveSession) ProcessBar(bar series.Bar) (*engine.BarResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.ProcessBar(bar)
}

func (l *liveSession) Snapshot() *engine.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Snapshot()
}

func (l *liveSession) Stats() performance.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Stats()
}

func (l *liveSession) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session.Reset()
	return nil
}

// runFeed replays the bar series through the session, publishing events and
// persisting results as each bar completes.
func runFeed(
	ctx context.Context,
	cfg *config.Config,
	live *liveSession,
	bars []series.Bar,
	bus *events.EventBus,
	repo *database.Repository,
	snapshots *cache.SnapshotCache,
	logger zerolog.Logger,
) {
	delay := time.Duration(cfg.DataConfig.ReplayDelayMs) * time.Millisecond

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := live.ProcessBar(bar)
		if err != nil {
			// A rejected bar is logged and skipped; session state is intact.
			logger.Warn().Err(err).Int("index", i).Msg("bar rejected")
			bus.Publish(events.Event{
				Type: events.EventError,
				Data: map[string]interface{}{"index": i, "error": err.Error()},
			})
			continue
		}

		publishResults(bus, result)
		if repo != nil {
			persistResults(ctx, repo, live.SessionID(), result, logger)
		}
		if snapshots != nil && (result.Index%10 == 0 || result.Index == len(bars)-1) {
			if err := snapshots.StoreSnapshot(ctx, live.Snapshot()); err != nil {
				logger.Debug().Err(err).Msg("snapshot cache write failed")
			}
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
	logger.Info().Int("bars", len(bars)).Msg("bar feed exhausted")
}

func publishResults(bus *events.EventBus, r *engine.BarResult) {
	bus.Publish(events.Event{
		Type: events.EventBarProcessed,
		Data: map[string]interface{}{
			"index": r.Index,
			"close": r.Bar.Close,
			"bias":  r.Bias,
		},
	})
	if r.NewFractal != nil {
		bus.Publish(events.Event{
			Type: events.EventFractalConfirmed,
			Data: map[string]interface{}{"fractal": r.NewFractal},
		})
	}
	if r.DominantChanged {
		bus.Publish(events.Event{
			Type: events.EventSwingChanged,
			Data: map[string]interface{}{"dominant": r.Dominant, "levels": r.FibLevels},
		})
	}
	if r.ABCPattern != nil {
		bus.Publish(events.Event{
			Type: events.EventPatternDetected,
			Data: map[string]interface{}{"pattern": r.ABCPattern},
		})
	}
	for _, zone := range r.Zones {
		bus.Publish(events.Event{
			Type: events.EventZoneFormed,
			Data: map[string]interface{}{"zone": zone},
		})
	}
	if r.Enhanced != nil {
		bus.Publish(events.Event{
			Type: events.EventSignalGenerated,
			Data: map[string]interface{}{"signal": r.Enhanced},
		})
	}
	for _, resolved := range r.Resolved {
		bus.Publish(events.Event{
			Type: events.EventOutcomeResolved,
			Data: map[string]interface{}{"signal": resolved},
		})
	}
}

func persistResults(ctx context.Context, repo *database.Repository, runID string, r *engine.BarResult, logger zerolog.Logger) {
	if r.DominantChanged && r.Dominant != nil {
		if err := repo.SaveDominantSwing(ctx, runID, r.Dominant, r.Index); err != nil {
			logger.Warn().Err(err).Msg("failed to persist dominant swing")
		}
	}
	if r.Enhanced != nil {
		if err := repo.SaveSignal(ctx, runID, r.Enhanced); err != nil {
			logger.Warn().Err(err).Msg("failed to persist signal")
		}
	}
	for _, resolved := range r.Resolved {
		if err := repo.UpdateSignalOutcome(ctx, resolved); err != nil {
			logger.Warn().Err(err).Msg("failed to persist signal outcome")
		}
	}
}

func finishRun(run *database.AnalysisRun, snap *engine.Snapshot, repo *database.Repository, logger zerolog.Logger) {
	run.Bars = snap.Totals.Bars
	run.Fractals = snap.Totals.Fractals
	run.Swings = snap.Totals.Swings
	run.Patterns = snap.Totals.Patterns
	run.Signals = snap.Totals.EnhancedSignals
	run.Bias = string(snap.Bias)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.FinishRun(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to finish analysis run")
	}
}

func buildServer(
	cfg *config.Config,
	live *liveSession,
	bus *events.EventBus,
	repo *database.Repository,
	snapshots *cache.SnapshotCache,
	logger zerolog.Logger,
) *api.Server {
	serverCfg := api.ServerConfig{
		Port:            cfg.ServerConfig.Port,
		Host:            cfg.ServerConfig.Host,
		AllowedOrigins:  cfg.ServerConfig.AllowedOrigins,
		ReadTimeout:     time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
		ShutdownTimeout: time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second,
		ProductionMode:  cfg.LoggingConfig.Level != "debug",
		AuthEnabled:     cfg.AuthConfig.Enabled,
	}
	return api.NewServer(
		serverCfg,
		live,
		bus,
		repo,
		snapshots,
		buildJWTManager(cfg),
		buildPasswordManager(cfg),
		api.Operator{
			Email:        cfg.AuthConfig.OperatorEmail,
			PasswordHash: cfg.AuthConfig.OperatorPasswordHash,
		},
		logger,
	)
}

// resolveSecrets fills credentials the environment left empty from Vault.
func resolveSecrets(cfg *config.Config, client *vault.Client, logger zerolog.Logger) {
	if !client.IsEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg.AuthConfig.Enabled && cfg.AuthConfig.JWTSecret == "" {
		if secret, err := client.GetSecret(ctx, "jwt_secret"); err == nil {
			cfg.AuthConfig.JWTSecret = secret
		} else {
			logger.Warn().Err(err).Msg("jwt secret not available from vault")
		}
	}
	if cfg.AuthConfig.Enabled && cfg.AuthConfig.OperatorPasswordHash == "" {
		if hash, err := client.GetSecret(ctx, "operator_password_hash"); err == nil {
			cfg.AuthConfig.OperatorPasswordHash = hash
		}
	}
	if cfg.DatabaseConfig.Enabled && cfg.DatabaseConfig.URL == "" {
		if url, err := client.GetSecret(ctx, "database_url"); err == nil {
			cfg.DatabaseConfig.URL = url
		}
	}
}

// engineConfig maps the flat user-facing configuration onto the per-component
// engine parameters.
func engineConfig(cfg *config.Config) engine.Config {
	e := cfg.EngineConfig
	return engine.Config{
		Fractal: fractal.Config{
			Period:      e.FractalPeriod,
			MinStrength: e.FractalMinStrength,
		},
		Swing: swing.TrackerConfig{
			LookbackCandles: e.LookbackCandles,
			MinMagnitude:    e.MinSwingMagnitude,
			FibRatios:       e.FibRatios,
		},
		ABC: abc.Config{
			FibProximity: e.ABCFibProximity,
		},
		Confluence: confluence.Config{
			Distance:             e.ConfluenceDistance,
			MinFactors:           e.ConfluenceMinFactors,
			VolumeSpikeThreshold: e.VolumeSpikeThreshold,
			VolumePeriod:         e.VolumePeriod,
		},
		Signal: signal.Config{
			RiskReward:           e.RiskReward,
			ModerateScore:        e.ModerateScore,
			StrongScore:          e.StrongScore,
			VolumeSpikeThreshold: e.VolumeSpikeThreshold,
		},
		Performance: performance.Config{
			TimeoutBars: e.TimeoutBars,
		},
	}
}

func buildJWTManager(cfg *config.Config) *auth.JWTManager {
	if !cfg.AuthConfig.Enabled || cfg.AuthConfig.JWTSecret == "" {
		return nil
	}
	return auth.NewJWTManager(
		cfg.AuthConfig.JWTSecret,
		cfg.AuthConfig.AccessTokenDuration,
		cfg.AuthConfig.RefreshTokenDuration,
	)
}

func buildPasswordManager(cfg *config.Config) *auth.PasswordManager {
	return auth.NewPasswordManager(auth.DefaultBcryptCost, cfg.AuthConfig.MinPasswordLength)
}

func loadBars(cfg *config.Config, logger zerolog.Logger) ([]series.Bar, error) {
	if cfg.DataConfig.CSVPath != "" {
		return series.LoadCSV(cfg.DataConfig.CSVPath)
	}
	logger.Info().Msg("no csv configured, generating synthetic series")
	interval := parseInterval(cfg.DataConfig.Interval)
	start := time.Now().UTC().Add(-500 * interval).Truncate(interval)
	return series.SyntheticWalk(500, 100.0, 42, start, interval), nil
}

func parseInterval(s string) time.Duration {
	if strings.HasSuffix(s, "d") {
		if days, err := time.ParseDuration(strings.TrimSuffix(s, "d") + "h"); err == nil {
			return days * 24
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 15 * time.Minute
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			out = os.Stdout
		} else {
			out = f
		}
	}
	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
