// Package progress publishes the current processing step of each interview.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"interview-processor-go/internal/types"
)

type Tracker interface {
	SetStep(ctx context.Context, interviewID string, step types.Step) error
}

type Noop struct{}

func (Noop) SetStep(context.Context, string, types.Step) error { return nil }

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis stores the step under interview:<id>:step with a TTL.
type Redis struct {
	client redisClient
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func Key(interviewID string) string {
	return fmt.Sprintf("interview:%s:step", interviewID)
}

func (r *Redis) SetStep(ctx context.Context, interviewID string, step types.Step) error {
	return r.client.Set(ctx, Key(interviewID), string(step), r.ttl).Err()
}
