// Package cache provides Redis-based caching of session snapshots with
// graceful degradation. When Redis is unavailable the engine keeps running
// and API reads fall back to the live session.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"market-structure-bot/internal/engine"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key formats
const (
	keySnapshot = "structure:session:%s:snapshot"
	keyStats    = "structure:session:%s:stats"
)

// Config holds snapshot cache configuration.
type Config struct {
	Address     string
	Password    string
	DB          int
	PoolSize    int
	SnapshotTTL time.Duration
}

// SnapshotCache stores serialized session snapshots keyed by session ID.
// A small circuit breaker marks Redis unhealthy after consecutive failures
// so the per-bar loop stops paying the round-trip cost.
type SnapshotCache struct {
	client *redis.Client
	cfg    Config
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int

	maxFailures int
}

// NewSnapshotCache connects to Redis. A failed initial connection returns the
// cache in degraded mode, not an error; it recovers on the next successful
// operation.
func NewSnapshotCache(cfg Config, logger zerolog.Logger) *SnapshotCache {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	sc := &SnapshotCache{
		client:      client,
		cfg:         cfg,
		logger:      logger.With().Str("component", "SnapshotCache").Logger(),
		maxFailures: 3,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		sc.logger.Warn().Err(err).Msg("redis unavailable, snapshot cache degraded")
		return sc
	}
	sc.healthy = true
	sc.logger.Info().Str("address", cfg.Address).Msg("redis connected")
	return sc
}

// IsHealthy returns whether Redis is currently available.
func (sc *SnapshotCache) IsHealthy() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.healthy
}

// StoreSnapshot serializes and caches a session snapshot.
func (sc *SnapshotCache) StoreSnapshot(ctx context.Context, snap *engine.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := fmt.Sprintf(keySnapshot, snap.SessionID)
	if err := sc.client.Set(ctx, key, data, sc.cfg.SnapshotTTL).Err(); err != nil {
		sc.recordFailure()
		return fmt.Errorf("cache snapshot: %w", err)
	}
	sc.recordSuccess()
	return nil
}

// GetSnapshot returns the cached snapshot for a session, or nil on miss.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	key := fmt.Sprintf(keySnapshot, sessionID)
	data, err := sc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		sc.recordSuccess()
		return nil, nil
	}
	if err != nil {
		sc.recordFailure()
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	sc.recordSuccess()

	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Invalidate drops the cached snapshot for a session, for example on reset.
func (sc *SnapshotCache) Invalidate(ctx context.Context, sessionID string) error {
	key := fmt.Sprintf(keySnapshot, sessionID)
	if err := sc.client.Del(ctx, key).Err(); err != nil {
		sc.recordFailure()
		return err
	}
	sc.recordSuccess()
	return nil
}

// Close releases the Redis client.
func (sc *SnapshotCache) Close() error {
	return sc.client.Close()
}

func (sc *SnapshotCache) recordFailure() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.failureCount++
	if sc.failureCount >= sc.maxFailures && sc.healthy {
		sc.healthy = false
		sc.logger.Warn().Int("failures", sc.failureCount).Msg("redis marked unhealthy")
	}
}

func (sc *SnapshotCache) recordSuccess() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.healthy && sc.failureCount > 0 {
		sc.logger.Info().Msg("redis recovered")
	}
	sc.failureCount = 0
	sc.healthy = true
}
