// Package cache holds computed per-tenant metrics between requests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// MetricsCache stores metrics snapshots by tenant. Get reports a miss with
// found == false and a nil error.
type MetricsCache interface {
	Get(ctx context.Context, tenantID string) (m *domain.Metrics, found bool, err error)
	Set(ctx context.Context, tenantID string, m *domain.Metrics) error
	Invalidate(ctx context.Context, tenantID string) error
}

// Redis is the go-redis backed MetricsCache.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis creates a metrics cache on client. Entries expire after ttl.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: "billing:metrics:", ttl: ttl}
}

// Dial parses a redis:// URL and verifies the connection with PING.
func Dial(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(client, ttl), nil
}

func (r *Redis) Get(ctx context.Context, tenantID string) (*domain.Metrics, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+tenantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var m domain.Metrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("decode cached metrics: %w", err)
	}
	if m.PlanMix == nil {
		m.PlanMix = []domain.PlanMixEntry{}
	}
	return &m, true, nil
}

func (r *Redis) Set(ctx context.Context, tenantID string, m *domain.Metrics) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+tenantID, raw, r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context, tenantID string) error {
	return r.client.Del(ctx, r.prefix+tenantID).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Noop never stores anything. It is used when no Redis URL is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.Metrics, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, *domain.Metrics) error         { return nil }
func (Noop) Invalidate(context.Context, string) error                   { return nil }
