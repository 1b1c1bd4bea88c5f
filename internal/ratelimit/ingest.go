package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/quorumdesk/panelgate/internal/config"
)

const keyIngestTenant = "quota:ingest:tenant:%s"

// IngestLimiter throttles usage ingestion per tenant and serializes
// concurrent deliveries for the same session.
type IngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *SessionLocker

	tenantRate  float64
	tenantBurst int
	lockTTL     time.Duration
}

// NewIngestLimiter returns nil when rate limiting is disabled; callers treat
// a nil limiter as allow-all.
func NewIngestLimiter(cfg config.Config) (*IngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.IngestTenantRate <= 0 || limitCfg.IngestTenantBurst <= 0 {
		return nil, errors.New("ingest tenant rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &IngestLimiter{
		enabled:     true,
		bucket:      NewTokenBucket(client),
		locker:      NewSessionLocker(client),
		tenantRate:  limitCfg.IngestTenantRate,
		tenantBurst: limitCfg.IngestTenantBurst,
		lockTTL:     limitCfg.IngestLockTTL,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *IngestLimiter) AllowTenant(ctx context.Context, tenantID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyIngestTenant, strings.TrimSpace(tenantID))
	return l.bucket.Allow(ctx, key, l.tenantRate, l.tenantBurst)
}

func (l *IngestLimiter) TryLockSession(ctx context.Context, tenantID, sessionRef string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.Acquire(ctx, tenantID, sessionRef, l.lockTTL)
}

func (l *IngestLimiter) ReleaseSession(ctx context.Context, tenantID, sessionRef, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, tenantID, sessionRef, token)
}
