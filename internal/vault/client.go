// Package vault provides an optional secret source backed by HashiCorp
// Vault's KV v2 engine. When disabled the client serves secrets from an
// in-memory map, which keeps development setups free of a Vault dependency.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds Vault client configuration.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string // KV secrets engine mount path
	SecretPath string // Path prefix for engine secrets
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	cfg    Config

	mu    sync.RWMutex
	cache map[string]string
}

// NewClient creates a new Vault client
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{cfg: cfg, cache: make(map[string]string)}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		cfg:    cfg,
		cache:  make(map[string]string),
	}, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.cfg.Enabled
}

// GetSecret retrieves a named secret value, for example "jwt_secret" or
// "database_password". Cached values are served without a round trip.
func (c *Client) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	if v, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	if !c.cfg.Enabled {
		return "", fmt.Errorf("secret %q not found and vault is disabled", name)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret %q not found", name)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid secret format")
	}
	value, ok := data[name].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("secret %q not found", name)
	}

	c.mu.Lock()
	c.cache[name] = value
	c.mu.Unlock()

	return value, nil
}

// StoreSecret writes a named secret value. With Vault disabled the value only
// lives in the in-memory cache.
func (c *Client) StoreSecret(ctx context.Context, name, value string) error {
	c.mu.Lock()
	c.cache[name] = value
	c.mu.Unlock()

	if !c.cfg.Enabled {
		return nil
	}

	// Merge with existing values so sibling secrets survive the write.
	existing := map[string]interface{}{}
	if secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath()); err == nil && secret != nil {
		if data, ok := secret.Data["data"].(map[string]interface{}); ok {
			existing = data
		}
	}
	existing[name] = value

	_, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(), map[string]interface{}{
		"data": existing,
	})
	if err != nil {
		return fmt.Errorf("failed to store secret in vault: %w", err)
	}
	return nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]string)
	c.mu.Unlock()
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// secretPath returns the KV v2 data path holding the engine's secrets.
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.cfg.MountPath, c.cfg.SecretPath)
}
