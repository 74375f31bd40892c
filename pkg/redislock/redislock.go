package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"payconnect/pkg/logging"
	"payconnect/pkg/timeutils"
)

const (
	keyPrefix        = "payconnect:lock:"
	releaseTimeout   = 2 * time.Second
	defaultTTL       = 2 * time.Minute
	defaultRetryTick = 50 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

type Config struct {
	TTL           time.Duration
	RetryInterval time.Duration
	Logger        *logging.ZapLogger
}

// Locker is a per-key mutex shared by every instance connected to the same
// Redis. A lock expires after TTL if its holder dies.
type Locker struct {
	client redis.UniversalClient
	cfg    Config
}

func New(client redis.UniversalClient, cfg Config) *Locker {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryTick
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Locker{
		client: client,
		cfg:    cfg,
	}
}

func (l *Locker) Lock(ctx context.Context, key string) (unlock func(), err error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()
	for {
		acquired, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx failed: %w", err)
		}
		if acquired {
			break
		}
		if err := timeutils.SleepCtx(ctx, l.cfg.RetryInterval); err != nil {
			return nil, fmt.Errorf("waiting for lock %q: %w", key, err)
		}
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		released, err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Int()
		switch {
		case err != nil:
			// the key stays until its TTL runs out
			l.cfg.Logger.WarnCtx(ctx, "failed to release lock", zap.String("key", key), zap.Error(err))
		case released == 0:
			l.cfg.Logger.WarnCtx(ctx, "lock expired before release", zap.String("key", key), zap.Duration("ttl", l.cfg.TTL))
		}
	}, nil
}
