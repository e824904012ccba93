/*
Package redis provides the shared substrate for multi-instance deployments.

PURPOSE:
  Several payroll servers can share one roster, cycle store and ledger.
  This package supplies all three engine collaborators on a single client:

    Store      generic.KV        documents in a hash {value, version}
    Store      generic.Locker    per-employee locks via redislock
    Store      generic.Notifier  change events on a Pub/Sub channel
    Store      generic.Subscriber

OPTIMISTIC WRITES:
  A conditional write runs as one Lua script so the version check and the
  write cannot interleave with another instance.

LOCKS:
  Locks carry a TTL so a crashed instance cannot wedge an employee forever.
  The engine still re-checks versions on commit, so a lock that expired
  mid-transaction surfaces as a write conflict rather than lost data.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: Single-process equivalents
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

const (
	defaultChannel    = "bakery:payroll:events"
	defaultLockTTL    = 10 * time.Second
	defaultLockPrefix = "lock:"
	lockRetryInterval = 50 * time.Millisecond
)

// casScript writes ARGV[1] when the stored version equals ARGV[2].
// A negative expected version skips the check.
var casScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
local expected = tonumber(ARGV[2])
if expected >= 0 and current ~= expected then
	return {0, current}
end
local next = current + 1
redis.call('HSET', KEYS[1], 'value', ARGV[1], 'version', next)
return {1, next}
`)

// Config configures the Redis substrate.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	LockTTL  time.Duration
}

// Store implements the engine collaborators on one Redis client.
type Store struct {
	client     redis.UniversalClient
	ownsClient bool
	locks      *redislock.Client
	channel    string
	lockTTL    time.Duration
	logger     *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for subscription errors.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// New connects to Redis and verifies the connection.
func New(cfg Config, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewWithClient(client, cfg, opts...)
	s.ownsClient = true
	return s, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership.
func NewWithClient(client redis.UniversalClient, cfg Config, opts ...Option) *Store {
	s := &Store{
		client:  client,
		locks:   redislock.New(client),
		channel: cfg.Channel,
		lockTTL: cfg.LockTTL,
		logger:  zap.NewNop(),
	}
	if s.channel == "" {
		s.channel = defaultChannel
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the client if this Store created it.
func (s *Store) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

// =============================================================================
// DOCUMENTS (generic.KV)
// =============================================================================

func (s *Store) Get(ctx context.Context, key string) ([]byte, generic.Version, error) {
	vals, err := s.client.HMGet(ctx, key, "value", "version").Result()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read %s: %v", generic.ErrStoreUnavailable, key, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return nil, 0, nil
	}

	value, _ := vals[0].(string)
	rawVersion, _ := vals[1].(string)
	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return nil, 0, &generic.CorruptRecordError{Key: key, Err: fmt.Errorf("version %q: %w", rawVersion, err)}
	}
	return []byte(value), generic.Version(version), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expected generic.Version) (generic.Version, error) {
	res, err := casScript.Run(ctx, s.client, []string{key}, string(value), int64(expected)).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("%w: write %s: %v", generic.ErrStoreUnavailable, key, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("%w: write %s: unexpected script reply %v", generic.ErrStoreUnavailable, key, res)
	}
	if res[0] == 0 {
		actual := generic.Version(res[1])
		return actual, &generic.VersionConflictError{Key: key, Expected: expected, Actual: actual}
	}
	return generic.Version(res[1]), nil
}

// =============================================================================
// LOCKS (generic.Locker)
// =============================================================================

// Lock obtains a TTL lock for key, retrying until ctx is done. Without a
// deadline on ctx the wait is bounded by the lock TTL.
func (s *Store) Lock(ctx context.Context, key string) (generic.Unlock, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTTL)
		defer cancel()
	}

	lock, err := s.locks.Obtain(ctx, defaultLockPrefix+key, s.lockTTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(lockRetryInterval),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("%w: %s", generic.ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %v", generic.ErrStoreUnavailable, key, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.logger.Warn("release lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// =============================================================================
// EVENTS (generic.Notifier, generic.Subscriber)
// =============================================================================

func (s *Store) Publish(ctx context.Context, event generic.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish: %v", generic.ErrStoreUnavailable, err)
	}
	return nil
}

// Subscribe delivers events from the channel until ctx is done.
// Malformed messages are logged and skipped.
func (s *Store) Subscribe(ctx context.Context, fn func(generic.Event)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: subscribe %s: %v", generic.ErrStoreUnavailable, s.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev generic.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.logger.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			fn(ev)
		}
	}
}

var (
	_ generic.KV         = (*Store)(nil)
	_ generic.Locker     = (*Store)(nil)
	_ generic.Notifier   = (*Store)(nil)
	_ generic.Subscriber = (*Store)(nil)
)
