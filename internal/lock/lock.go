package redlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "leadflow:lock:"

// Locker is a single-key Redis lock used to serialize per-customer work,
// campaign activation in particular. Each Locker carries a random holder
// token so only the goroutine that took the lock can release or extend it.
type Locker struct {
	client redis.UniversalClient
	key    string
	token  string
}

func NewLocker(client redis.UniversalClient, name string) *Locker {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return &Locker{
		client: client,
		key:    keyPrefix + name,
		token:  hex.EncodeToString(buf),
	}
}

// Lock takes the lock for at most ttl. It fails immediately when another
// holder has it.
func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lock %s is held by another worker", l.key)
	}
	return nil
}

// Unlock releases the lock if this Locker still holds it. A lock that
// expired and was taken by someone else is left alone.
func (l *Locker) Unlock(ctx context.Context) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("cannot release lock %s: expired or held by another worker", l.key)
	}
	return nil
}

// ExtendLock pushes the expiry out for a holder that needs more time.
func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.token, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("cannot extend lock %s: expired or held by another worker", l.key)
	}
	return nil
}

// WaitLock polls for the lock until waitTimeout elapses or the context is
// cancelled.
func (l *Locker) WaitLock(ctx context.Context, lockTTL, waitTimeout time.Duration) error {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if err := l.Lock(ctx, lockTTL); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return fmt.Errorf("timed out waiting for lock %s", l.key)
}
