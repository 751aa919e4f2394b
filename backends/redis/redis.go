package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/fluxgate/fluxgate/backends"
)

// DefaultKeyPrefix namespaces every bucket key on the shared store so that
// prefix resets cannot touch unrelated keys.
const DefaultKeyPrefix = "fluxgate:"

// scanBatchSize bounds each SCAN/DEL step of a prefix reset.
const scanBatchSize = 512

type Config struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// Store is the shared-store bucket store. All decisions execute as one Lua
// script on the server, with server-side time, so operations on a single
// bucket key are linearizable across every instance sharing the store.
type Store struct {
	client     *redis.Client
	keyPrefix  string
	consume    *redis.Script
	compensate *redis.Script
	peek       *redis.Script
}

func (s *Store) GetClient() *redis.Client {
	return s.client
}

// New initializes a new Store with the given configuration.
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, NewConnectionFailedError(config.Addr, err)
	}

	return NewFromClient(client, config.KeyPrefix), nil
}

// NewFromClient wraps an existing client. The caller keeps ownership of the
// client's lifecycle when constructing the store this way is combined with
// an external pub/sub subscriber sharing the same connection pool.
func NewFromClient(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{
		client:     client,
		keyPrefix:  keyPrefix,
		consume:    redis.NewScript(consumeScript),
		compensate: redis.NewScript(compensateScript),
		peek:       redis.NewScript(peekScript),
	}
}

func (s *Store) Consume(ctx context.Context, key string, capacity, windowNanos, permits int64) (backends.Decision, error) {
	if err := backends.CheckArgs(capacity, windowNanos, permits); err != nil {
		return backends.Decision{}, err
	}

	// Script.Run caches the script by SHA and transparently re-sends the
	// body on a NOSCRIPT reply, so a store-side script flush heals itself.
	result, err := s.consume.Run(ctx, s.client, []string{s.keyPrefix + key},
		capacity, windowNanos, permits).Result()
	if err != nil {
		return backends.Decision{}, classify(NewConsumeFailedError(key, err))
	}

	return decodeDecision(key, result)
}

func (s *Store) Compensate(ctx context.Context, key string, capacity, permits int64) error {
	if capacity <= 0 || permits <= 0 {
		return backends.NewInvalidArgumentError("permits", permits)
	}

	if err := s.compensate.Run(ctx, s.client, []string{s.keyPrefix + key},
		capacity, permits).Err(); err != nil {
		return classify(NewCompensateFailedError(key, err))
	}
	return nil
}

func (s *Store) Peek(ctx context.Context, key string, capacity, windowNanos int64) (backends.Decision, error) {
	if err := backends.CheckArgs(capacity, windowNanos, 1); err != nil {
		return backends.Decision{}, err
	}

	result, err := s.peek.Run(ctx, s.client, []string{s.keyPrefix + key},
		capacity, windowNanos).Result()
	if err != nil {
		return backends.Decision{}, classify(NewPeekFailedError(key, err))
	}

	return decodeDecision(key, result)
}

func (s *Store) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return classify(NewDeleteFailedError(key, err))
	}
	return nil
}

// ResetByPrefix walks the keyspace incrementally with SCAN and deletes in
// bounded batches. Blocking full-keyspace commands (KEYS) are never used.
func (s *Store) ResetByPrefix(ctx context.Context, prefix string) (int64, error) {
	match := s.keyPrefix + prefix + "*"

	var deleted int64
	var cursor uint64
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return deleted, classify(NewScanFailedError(prefix, err))
		}

		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, classify(NewDeleteFailedError(prefix, err))
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return classify(NewPingFailedError(err))
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return NewCloseFailedError(err)
	}
	return nil
}

// decodeDecision converts the script reply {allowed, remaining, wait, reset}
// into a Decision.
func decodeDecision(key string, result any) (backends.Decision, error) {
	reply, ok := result.([]any)
	if !ok || len(reply) != 4 {
		return backends.Decision{}, NewMalformedReplyError(key, result)
	}

	values := make([]int64, 4)
	for i, v := range reply {
		n, ok := v.(int64)
		if !ok {
			return backends.Decision{}, NewMalformedReplyError(key, result)
		}
		values[i] = n
	}

	return backends.Decision{
		Allowed:         values[0] == 1,
		Remaining:       values[1],
		NanosToWait:     values[2],
		ResetTimeMillis: values[3],
	}, nil
}
