// Package notify publishes run progress to Redis so dashboards can follow a
// migration without reading the report file.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/progress"
)

// redisClient is the part of *redis.Client the publisher uses
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// Publisher publishes every progress event on a Redis channel and keeps the
// latest state of each run in the hash "<channel>:runs".
type Publisher struct {
	rdb     redisClient
	channel string
}

// NewPublisher connects to the Redis instance at redisURL
func NewPublisher(redisURL, channel string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return &Publisher{rdb: redis.NewClient(opts), channel: channel}, nil
}

// RunsKey is the hash holding the last known state of every run
func (p *Publisher) RunsKey() string {
	return p.channel + ":runs"
}

// Observe implements progress.Observer
func (p *Publisher) Observe(ctx context.Context, event progress.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind, err)
	}

	run, err := json.Marshal(event.Run)
	if err != nil {
		return err
	}
	if err := p.rdb.HSet(ctx, p.RunsKey(), event.Run.ID, run).Err(); err != nil {
		return fmt.Errorf("store run %s: %w", event.Run.ID, err)
	}
	return nil
}

// Close closes the Redis connection
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
