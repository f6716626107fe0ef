// Package redis distributes replay output to external consumers via
// PubSub channels and caches the latest quote per session.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"tickreplay/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const latestQuoteTTL = 30 * time.Minute

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher implements the engine's event publisher contract on Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishQuote publishes the normalized quote and refreshes the
// latest-quote cache key for the session.
func (p *Publisher) PublishQuote(ctx context.Context, sessionID string, q model.Quote) {
	data := q.JSON()
	p.client.Publish(ctx, "replay:quote:"+sessionID, data)
	p.client.Set(ctx, "replay:latest:quote:"+sessionID, data, latestQuoteTTL)
}

// PublishBook publishes the current order book snapshot.
func (p *Publisher) PublishBook(ctx context.Context, sessionID string, book model.OrderBookSnapshot) {
	p.client.Publish(ctx, "replay:book:"+sessionID, book.JSON())
}

// PublishSummary publishes the ledger position summary.
func (p *Publisher) PublishSummary(ctx context.Context, sessionID string, sum model.PositionSummary) {
	p.client.Publish(ctx, "replay:summary:"+sessionID, sum.JSON())
}

// LatestQuote reads the cached latest quote for a session. Returns nil
// when none is cached.
func (p *Publisher) LatestQuote(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := p.client.Get(ctx, "replay:latest:quote:"+sessionID).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	return data, err
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
