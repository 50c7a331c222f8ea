package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// releaseScript deletes the key only when it still carries our token, so a
// lease that expired and was taken by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions tunes the distributed lock.
type RedisOptions struct {
	Prefix     string
	TTL        time.Duration
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Redis implements Locker with SET NX PX and a token checked release.
type Redis struct {
	client *redis.Client
	opts   RedisOptions
}

// NewRedis wraps client. Zero options fall back to a 10s lease polled every 25ms.
func NewRedis(client *redis.Client, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "panelflow:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 25 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Redis{client: client, opts: opts}
}

// Acquire polls until the key is set for us or ctx is done.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	name := r.opts.Prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(r.opts.RetryDelay)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, name, token, r.opts.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctxErr)
			}
			return nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), r.opts.TTL)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{name}, token).Err(); err != nil {
			r.opts.Logger.Warn("release lock", zap.String("key", name), zap.Error(err))
		}
	}, nil
}
