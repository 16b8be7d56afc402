package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the connection settings for the snapshot cache.
type Config struct {
	Address  string // host:port
	Password string
	DB       int
}

var client *redis.Client

// Init connects the package-level client and verifies the connection with a
// ping. The engine degrades to uncached reads when this fails, so callers
// may treat the error as non-fatal.
func Init(cfg Config) error {
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}

	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	client = c
	return nil
}

// Client returns the connected client, nil before a successful Init.
func Client() *redis.Client {
	return client
}

// IsInitialized reports whether Init succeeded.
func IsInitialized() bool {
	return client != nil
}

// Close tears down the connection. Safe to call when Init never ran.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
