package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	EngineConfig  EngineConfig  `json:"engine"`
	DataConfig    DataConfig    `json:"data"`
	LoggingConfig LoggingConfig `json:"logging"`
	// API surface configs
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	VaultConfig    VaultConfig    `json:"vault"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
}

// EngineConfig holds the market-structure analysis parameters.
type EngineConfig struct {
	FractalPeriod      int       `json:"fractal_period"`       // Bars on each side for confirmation
	FractalMinStrength float64   `json:"fractal_min_strength"` // Minimum price distance beyond neighbors
	LookbackCandles    int       `json:"lookback_candles"`     // Swing eligibility window
	MinSwingMagnitude  float64   `json:"min_swing_magnitude"`  // Minimum dominant swing size
	FibRatios          []float64 `json:"fib_ratios"`           // Retracement set, empty = standard

	ABCFibProximity float64 `json:"abc_fib_proximity"` // Relative distance for level coincidence

	ConfluenceDistance   float64 `json:"confluence_distance"`    // Relative clustering distance
	ConfluenceMinFactors int     `json:"confluence_min_factors"` // Minimum factors per zone
	VolumeSpikeThreshold float64 `json:"volume_spike_threshold"` // Ratio gating the volume factor
	VolumePeriod         int     `json:"volume_period"`          // Trailing average window

	RiskReward    float64 `json:"risk_reward"`    // Take-profit multiple of risk
	ModerateScore float64 `json:"moderate_score"` // Minimum score to emit a signal
	StrongScore   float64 `json:"strong_score"`   // Strong quality cutoff
	TimeoutBars   int     `json:"timeout_bars"`   // Bars before an open signal times out
}

// DataConfig holds bar feed configuration.
type DataConfig struct {
	CSVPath  string `json:"csv_path"` // OHLCV file for replay, empty = synthetic
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"` // e.g., "15m", "1h"
	// ReplayDelayMs paces bar delivery for live-like replays. 0 = as fast as possible.
	ReplayDelayMs int `json:"replay_delay_ms"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON, console writer otherwise
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`    // Seconds
	WriteTimeout    int    `json:"write_timeout"`   // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled              bool          `json:"enabled"`
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	MinPasswordLength    int           `json:"min_password_length"`
	// Single-operator credentials. The hash is bcrypt; it may also come from
	// Vault under "operator_password_hash".
	OperatorEmail        string `json:"operator_email"`
	OperatorPasswordHash string `json:"operator_password_hash"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for engine secrets
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"` // postgres:// connection string
	// MaxConns caps the pgx pool. 0 = pool default.
	MaxConns int `json:"max_conns"`
}

// RedisConfig holds Redis configuration for snapshot caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	// SnapshotTTL in seconds for cached session snapshots.
	SnapshotTTL int `json:"snapshot_ttl"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects parameter combinations the engine cannot run with. Invalid
// configuration fails startup; nothing is silently clamped.
func (c *Config) Validate() error {
	e := &c.EngineConfig
	if e.FractalPeriod < 1 {
		return fmt.Errorf("engine.fractal_period must be >= 1, got %d", e.FractalPeriod)
	}
	if e.FractalMinStrength < 0 {
		return fmt.Errorf("engine.fractal_min_strength must be >= 0, got %f", e.FractalMinStrength)
	}
	if e.LookbackCandles < 2*e.FractalPeriod+1 {
		return fmt.Errorf("engine.lookback_candles must cover at least one confirmation window (%d), got %d",
			2*e.FractalPeriod+1, e.LookbackCandles)
	}
	if e.MinSwingMagnitude < 0 {
		return fmt.Errorf("engine.min_swing_magnitude must be >= 0, got %f", e.MinSwingMagnitude)
	}
	for _, r := range e.FibRatios {
		if r <= 0 || r >= 1 {
			return fmt.Errorf("engine.fib_ratios must be in (0, 1), got %f", r)
		}
	}
	if e.RiskReward <= 0 {
		return fmt.Errorf("engine.risk_reward must be > 0, got %f", e.RiskReward)
	}
	if e.ModerateScore <= 0 || e.StrongScore <= e.ModerateScore {
		return fmt.Errorf("engine quality thresholds must satisfy 0 < moderate < strong, got %f/%f",
			e.ModerateScore, e.StrongScore)
	}
	if e.TimeoutBars < 1 {
		return fmt.Errorf("engine.timeout_bars must be >= 1, got %d", e.TimeoutBars)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" && !c.VaultConfig.Enabled {
		return fmt.Errorf("auth enabled but no JWT secret configured and vault disabled")
	}
	if c.DatabaseConfig.Enabled && c.DatabaseConfig.URL == "" {
		return fmt.Errorf("database enabled but no connection URL configured")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Secrets (JWT secret, DB password) may instead come from Vault at startup.
func applyEnvOverrides(cfg *Config) {
	// Engine config
	cfg.EngineConfig.FractalPeriod = getEnvIntOrDefault("ENGINE_FRACTAL_PERIOD", orInt(cfg.EngineConfig.FractalPeriod, 5))
	cfg.EngineConfig.FractalMinStrength = getEnvFloatOrDefault("ENGINE_FRACTAL_MIN_STRENGTH", cfg.EngineConfig.FractalMinStrength)
	cfg.EngineConfig.LookbackCandles = getEnvIntOrDefault("ENGINE_LOOKBACK_CANDLES", orInt(cfg.EngineConfig.LookbackCandles, 100))
	cfg.EngineConfig.MinSwingMagnitude = getEnvFloatOrDefault("ENGINE_MIN_SWING_MAGNITUDE", cfg.EngineConfig.MinSwingMagnitude)
	if ratios := os.Getenv("ENGINE_FIB_RATIOS"); ratios != "" {
		cfg.EngineConfig.FibRatios = parseRatios(ratios)
	}
	cfg.EngineConfig.ABCFibProximity = getEnvFloatOrDefault("ENGINE_ABC_FIB_PROXIMITY", cfg.EngineConfig.ABCFibProximity)
	cfg.EngineConfig.ConfluenceDistance = getEnvFloatOrDefault("ENGINE_CONFLUENCE_DISTANCE", cfg.EngineConfig.ConfluenceDistance)
	cfg.EngineConfig.ConfluenceMinFactors = getEnvIntOrDefault("ENGINE_CONFLUENCE_MIN_FACTORS", cfg.EngineConfig.ConfluenceMinFactors)
	cfg.EngineConfig.VolumeSpikeThreshold = getEnvFloatOrDefault("ENGINE_VOLUME_SPIKE_THRESHOLD", cfg.EngineConfig.VolumeSpikeThreshold)
	cfg.EngineConfig.VolumePeriod = getEnvIntOrDefault("ENGINE_VOLUME_PERIOD", cfg.EngineConfig.VolumePeriod)
	cfg.EngineConfig.RiskReward = getEnvFloatOrDefault("ENGINE_RISK_REWARD", orFloat(cfg.EngineConfig.RiskReward, 2.0))
	cfg.EngineConfig.ModerateScore = getEnvFloatOrDefault("ENGINE_MODERATE_SCORE", orFloat(cfg.EngineConfig.ModerateScore, 40))
	cfg.EngineConfig.StrongScore = getEnvFloatOrDefault("ENGINE_STRONG_SCORE", orFloat(cfg.EngineConfig.StrongScore, 70))
	cfg.EngineConfig.TimeoutBars = getEnvIntOrDefault("ENGINE_TIMEOUT_BARS", orInt(cfg.EngineConfig.TimeoutBars, 50))

	// Data config
	cfg.DataConfig.CSVPath = getEnvOrDefault("DATA_CSV_PATH", cfg.DataConfig.CSVPath)
	cfg.DataConfig.Symbol = getEnvOrDefault("DATA_SYMBOL", orStr(cfg.DataConfig.Symbol, "BTCUSDT"))
	cfg.DataConfig.Interval = getEnvOrDefault("DATA_INTERVAL", orStr(cfg.DataConfig.Interval, "15m"))
	cfg.DataConfig.ReplayDelayMs = getEnvIntOrDefault("DATA_REPLAY_DELAY_MS", cfg.DataConfig.ReplayDelayMs)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orStr(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", "true") == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orStr(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Auth config - ALWAYS apply from environment
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute)
	cfg.AuthConfig.RefreshTokenDuration = getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_DURATION", 7*24*time.Hour)
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", 8)
	cfg.AuthConfig.OperatorEmail = getEnvOrDefault("AUTH_OPERATOR_EMAIL", cfg.AuthConfig.OperatorEmail)
	cfg.AuthConfig.OperatorPasswordHash = getEnvOrDefault("AUTH_OPERATOR_PASSWORD_HASH", cfg.AuthConfig.OperatorPasswordHash)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orStr(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orStr(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orStr(cfg.VaultConfig.SecretPath, "structure-bot/secrets"))

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DATABASE_ENABLED", "false") == "true"
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DATABASE_MAX_CONNS", cfg.DatabaseConfig.MaxConns)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", orStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))
	cfg.RedisConfig.SnapshotTTL = getEnvIntOrDefault("REDIS_SNAPSHOT_TTL", orInt(cfg.RedisConfig.SnapshotTTL, 300))
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func parseRatios(s string) []float64 {
	var ratios []float64
	for _, part := range strings.Split(s, ",") {
		if v, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
			ratios = append(ratios, v)
		}
	}
	return ratios
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}

func orStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		EngineConfig: EngineConfig{
			FractalPeriod:        5,
			LookbackCandles:      100,
			MinSwingMagnitude:    0,
			FibRatios:            []float64{0.236, 0.382, 0.5, 0.618, 0.786},
			ABCFibProximity:      0.001,
			ConfluenceDistance:   0.001,
			ConfluenceMinFactors: 2,
			VolumeSpikeThreshold: 1.5,
			VolumePeriod:         20,
			RiskReward:           2.0,
			ModerateScore:        40,
			StrongScore:          70,
			TimeoutBars:          50,
		},
		DataConfig: DataConfig{
			CSVPath:  "data/btcusdt_15m.csv",
			Symbol:   "BTCUSDT",
			Interval: "15m",
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			JSONFormat: true,
		},
		ServerConfig: ServerConfig{
			Enabled:        true,
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: "*",
			ReadTimeout:    30,
			WriteTimeout:   30,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
