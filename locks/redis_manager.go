package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/metrics"
)

// The writer lives in KEYS[1] as a plain string; readers live in the hash KEYS[2]
// mapping owner to an expiry in unix milliseconds. The acquire scripts return 0 when
// the lock is taken by someone else, 1 when the owner already held it and 2 for a new hold.
var (
	acquireExclusiveScript = redis.NewScript(`
		local writer = redis.call("get", KEYS[1])
		if writer and writer ~= ARGV[1] then
			return 0
		end
		local readers = redis.call("hgetall", KEYS[2])
		for i = 1, #readers, 2 do
			if readers[i] ~= ARGV[1] and tonumber(readers[i + 1]) > tonumber(ARGV[3]) then
				return 0
			end
		end
		local held = redis.call("hdel", KEYS[2], ARGV[1])
		if writer then
			held = 1
		end
		redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
		if held > 0 then
			return 1
		end
		return 2
	`)

	acquireSharedScript = redis.NewScript(`
		local writer = redis.call("get", KEYS[1])
		if writer and writer ~= ARGV[1] then
			return 0
		end
		local held = redis.call("hexists", KEYS[2], ARGV[1])
		if writer then
			held = 1
			redis.call("del", KEYS[1])
		end
		local readers = redis.call("hgetall", KEYS[2])
		for i = 1, #readers, 2 do
			if tonumber(readers[i + 1]) <= tonumber(ARGV[3]) then
				redis.call("hdel", KEYS[2], readers[i])
			end
		end
		redis.call("hset", KEYS[2], ARGV[1], tonumber(ARGV[3]) + tonumber(ARGV[2]))
		redis.call("pexpire", KEYS[2], ARGV[2])
		if held > 0 then
			return 1
		end
		return 2
	`)

	// Use Lua script to ensure atomicity (only delete if we own the lock)
	releaseScript = redis.NewScript(`
		local released = 0
		if redis.call("get", KEYS[1]) == ARGV[1] then
			released = redis.call("del", KEYS[1])
		end
		released = released + redis.call("hdel", KEYS[2], ARGV[1])
		return released
	`)
)

// RedisManager implements shared and exclusive locks on a Redis server. Every lock
// expires after the TTL so a crashed holder cannot block others forever.
type RedisManager struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisManager creates a new Redis-based lock manager from a redis:// URL
func NewRedisManager(redisURL string, ttl time.Duration, logger *zap.Logger) (*RedisManager, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis lock store %q: %w", redisURL, err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 5

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 300 * time.Second
	}

	return &RedisManager{
		client: client,
		logger: logger,
		ttl:    ttl,
	}, nil
}

func lockKeys(key string) []string {
	return []string{
		"flystream:lock:" + key,
		"flystream:lock:" + key + ":readers",
	}
}

// Acquire attempts to take the lock for key
func (m *RedisManager) Acquire(ctx context.Context, key, owner string, mode Mode) (ok bool, err error) {
	start := time.Now()
	defer func() { record("redis", "acquire", start, ok, err) }()

	if err := validMode(mode); err != nil {
		return false, err
	}

	script := acquireExclusiveScript
	if mode == Shared {
		script = acquireSharedScript
	}

	result, err := script.Run(ctx, m.client, lockKeys(key), owner, m.ttl.Milliseconds(), time.Now().UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for key %s: %w", key, err)
	}

	acquired := result > 0
	if acquired {
		if result == 2 {
			metrics.ActiveLocks.Inc()
		}
		m.logger.Debug("Lock acquired",
			zap.String("key", key),
			zap.String("owner", owner),
			zap.Stringer("mode", mode),
			zap.Duration("ttl", m.ttl))
	} else {
		m.logger.Debug("Lock already held", zap.String("key", key))
	}

	return acquired, nil
}

// Release releases a previously acquired lock for the given key
func (m *RedisManager) Release(ctx context.Context, key, owner string) (err error) {
	start := time.Now()
	defer func() { record("redis", "release", start, true, err) }()

	deleted, err := releaseScript.Run(ctx, m.client, lockKeys(key), owner).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock for key %s: %w", key, err)
	}

	if deleted > 0 {
		metrics.ActiveLocks.Dec()
		m.logger.Debug("Lock released",
			zap.String("key", key),
			zap.String("owner", owner))
	} else {
		m.logger.Debug("Lock not owned or already released",
			zap.String("key", key),
			zap.String("owner", owner))
	}

	return nil
}

// Close closes the Redis client connection
func (m *RedisManager) Close() error {
	return m.client.Close()
}
