package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis keys.
const (
	DefaultRedisKey         = "vehicle:telemetry"
	DefaultRedisModeChannel = "vehicle:mode"
)

// RedisClient is the part of redis.Cmdable used by RedisSink.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink keeps the newest record in a hash and announces mode
// changes on a channel.
type RedisSink struct {
	Client      RedisClient
	Key         string
	ModeChannel string

	lastMode string
}

// NewRedisSink creates a RedisSink with the default keys.
func NewRedisSink(client RedisClient) *RedisSink {
	return &RedisSink{
		Client:      client,
		Key:         DefaultRedisKey,
		ModeChannel: DefaultRedisModeChannel,
	}
}

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, rec Record) error {
	fields := make(map[string]interface{})
	for k, v := range rec.Fields() {
		fields[k] = v
	}
	fields["timestamp_ms"] = strconv.FormatInt(rec.At.UnixNano()/int64(time.Millisecond), 10)
	if err := s.Client.HSet(ctx, s.Key, fields).Err(); err != nil {
		return errors.Wrapf(err, "redis hset %s", s.Key)
	}
	if rec.Mode == s.lastMode {
		return nil
	}
	if err := s.Client.Publish(ctx, s.ModeChannel, rec.Mode).Err(); err != nil {
		return errors.Wrapf(err, "redis publish %s", s.ModeChannel)
	}
	s.lastMode = rec.Mode
	return nil
}
