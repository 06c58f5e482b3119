package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key and channel prefix of a RedisNotifier.
const DefaultPrefix = "pupdeploy"

// RedisClient is the part of a redis client the notifier uses.
// *redis.Client and *redis.ClusterClient satisfy it.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Compile-time check that *redis.Client implements RedisClient.
var _ RedisClient = (*redis.Client)(nil)

// RedisConfig holds configuration for a RedisNotifier.
type RedisConfig struct {
	// Client is the redis client (required).
	Client RedisClient

	// Prefix starts every key and channel name (default: "pupdeploy").
	Prefix string

	// Logger is for observability (optional).
	Logger es.Logger
}

// RedisNotifier stores the active release under "{prefix}:{project}:release"
// and publishes the event on "{prefix}:{project}:releases".
type RedisNotifier struct {
	config RedisConfig
}

// Compile-time check that RedisNotifier implements Notifier.
var _ Notifier = (*RedisNotifier)(nil)

// NewRedisNotifier creates a RedisNotifier.
func NewRedisNotifier(cfg RedisConfig) *RedisNotifier {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &RedisNotifier{config: cfg}
}

// NewRedisClient connects to a redis server.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Key returns the key holding the active release of project.
func (n *RedisNotifier) Key(project string) string {
	return fmt.Sprintf("%s:%s:release", n.config.Prefix, project)
}

// Channel returns the channel release events of project are published on.
func (n *RedisNotifier) Channel(project string) string {
	return fmt.Sprintf("%s:%s:releases", n.config.Prefix, project)
}

// Notify stores and publishes ev.
func (n *RedisNotifier) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode release event: %w", err)
	}

	key := n.Key(ev.Project)
	if err := n.config.Client.Set(ctx, key, ev.Release, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	channel := n.Channel(ev.Project)
	receivers, err := n.config.Client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}

	if n.config.Logger != nil {
		n.config.Logger.Info(ctx, "release announced",
			"release", ev.Release,
			"channel", channel,
			"receivers", receivers)
	}

	return nil
}
