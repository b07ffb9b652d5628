package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/pkg/errors"
)

const lockNamespace = "lock:"

// DefaultLockTTL bounds how long a crashed holder keeps a run locked.
const DefaultLockTTL = 2 * time.Minute

var (
	ErrLockHeld    = errors.New(errors.ErrCodeRunInProgress, "run lock is held by another owner")
	ErrLockNotHeld = errors.New(errors.ErrCodeRunInProgress, "run lock not held by this owner")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RunLock is a single-owner lock keeping two expansion runs over the same
// dataset and target from racing.  While held, a watchdog extends it every
// TTL/3.
type RunLock struct {
	client *Client
	key    string
	owner  string
	ttl    time.Duration
	logger logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunLock returns an unacquired lock on name.
func NewRunLock(client *Client, name string, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RunLock{
		client: client,
		key:    client.Config().KeyPrefix + lockNamespace + name,
		owner:  uuid.NewString(),
		ttl:    ttl,
		logger: client.logger,
	}
}

// Owner returns the token stored under the lock key.
func (l *RunLock) Owner() string { return l.owner }

// Acquire takes the lock or fails with ErrLockHeld.
func (l *RunLock) Acquire(ctx context.Context) error {
	ok, err := l.client.rdb.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
	}
	if !ok {
		return ErrLockHeld
	}
	l.startWatchdog()
	l.logger.Debug("run lock acquired", logging.String("key", l.key))
	return nil
}

// Release drops the lock if this owner still holds it.
func (l *RunLock) Release(ctx context.Context) error {
	l.stopWatchdog()
	res, err := unlockScript.Run(ctx, l.client.rdb, []string{l.key}, l.owner).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend pushes the expiry out to ttl from now.
func (l *RunLock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, l.client.rdb, []string{l.key}, l.owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to extend lock")
	}
	return res == 1, nil
}

func (l *RunLock) startWatchdog() {
	l.mu.Lock()
	defer l.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel, l.done = cancel, make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := l.Extend(ctx, l.ttl)
				if err != nil && ctx.Err() == nil {
					l.logger.Warn("run lock extension failed", logging.String("key", l.key), logging.Err(err))
				} else if err == nil && !ok {
					l.logger.Warn("run lock lost", logging.String("key", l.key))
					return
				}
			}
		}
	}(l.done)
}

func (l *RunLock) stopWatchdog() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		<-l.done
		l.cancel, l.done = nil, nil
	}
}
