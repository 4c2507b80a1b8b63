package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sensor_gateway/internal/models"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// RedisOptions configures the latest-state mirror.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string        // pub/sub channel for every reading; empty disables publishing
	TTL      time.Duration // expiry of the latest-state keys; 0 keeps them
}

// RedisSink keeps sensor:<id>:latest up to date and publishes each reading.
type RedisSink struct {
	rdb  *redis.Client
	opts RedisOptions
}

// NewRedisSink connects and pings the server.
func NewRedisSink(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: pingTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return &RedisSink{rdb: rdb, opts: opts}, nil
}

// LatestKey is the key holding a node's most recent reading.
func LatestKey(nodeID string) string {
	return "sensor:" + nodeID + ":latest"
}

func (s *RedisSink) Name() string { return "redis" }

// Publish stores r under its latest key and publishes it, in one round trip.
func (s *RedisSink) Publish(ctx context.Context, r models.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading %s: %w", r.ID, err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, LatestKey(r.ID), payload, s.opts.TTL)
	if s.opts.Channel != "" {
		pipe.Publish(ctx, s.opts.Channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for %s: %w", r.ID, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
