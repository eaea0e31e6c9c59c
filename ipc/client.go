package ipc

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// redisClient is the part of *redis.Client the vehicle host and the status
// mirror use.
type redisClient interface {
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

var _ redisClient = (*redis.Client)(nil)

// pubSub is the receiving side of a subscription.
type pubSub interface {
	Receive(ctx context.Context) (interface{}, error)
	Close() error
}

var _ pubSub = (*redis.PubSub)(nil)
