package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autoplexhq/leadflow/internal/apierror"
)

const heartbeatKeyPrefix = "leadflow:heartbeat:"

// Heartbeats older than this are as good as absent.
const heartbeatTTL = 24 * time.Hour

// RedisHeartbeats stores agent heartbeats in Redis. Heartbeats are high
// churn and disposable, so they never touch Postgres.
type RedisHeartbeats struct {
	client redis.UniversalClient
}

// NewRedisHeartbeats returns a heartbeat store over the given Redis client.
func NewRedisHeartbeats(client redis.UniversalClient) *RedisHeartbeats {
	return &RedisHeartbeats{client: client}
}

// SetHeartbeat records the time an agent was last seen alive.
func (h *RedisHeartbeats) SetHeartbeat(ctx context.Context, agentID string, at time.Time) error {
	key := heartbeatKeyPrefix + agentID
	if err := h.client.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), heartbeatTTL).Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to set heartbeat for '%s'", agentID), err)
	}
	return nil
}

// GetHeartbeat returns the last recorded heartbeat for an agent. An agent
// that has never reported returns the zero time with no error.
func (h *RedisHeartbeats) GetHeartbeat(ctx context.Context, agentID string) (time.Time, error) {
	val, err := h.client.Get(ctx, heartbeatKeyPrefix+agentID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to get heartbeat for '%s'", agentID), err)
	}
	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Malformed heartbeat for '%s'", agentID), err)
	}
	return at, nil
}
