package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const sessionLockRelease = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// SessionLocker serializes concurrent usage deliveries for one tenant
// session. Acquire hands out a one-time token; Release is a no-op unless the
// stored token still matches, so an expired lock cannot delete its successor.
type SessionLocker struct {
	client *redis.Client
	script *redis.Script
}

func NewSessionLocker(client *redis.Client) *SessionLocker {
	if client == nil {
		return nil
	}
	return &SessionLocker{
		client: client,
		script: redis.NewScript(sessionLockRelease),
	}
}

func sessionLockKey(tenantID, sessionRef string) string {
	return fmt.Sprintf("quota:ingest:lock:%s:%s",
		strings.TrimSpace(tenantID), strings.TrimSpace(sessionRef))
}

func (l *SessionLocker) Acquire(ctx context.Context, tenantID, sessionRef string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("session lock client not configured")
	}
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(sessionRef) == "" {
		return "", false, errors.New("session lock needs tenant and session")
	}
	if ttl <= 0 {
		return "", false, errors.New("session lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, sessionLockKey(tenantID, sessionRef), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *SessionLocker) Release(ctx context.Context, tenantID, sessionRef, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if token == "" {
		return nil
	}
	key := sessionLockKey(tenantID, sessionRef)
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}
