/*
Copyright 2025 Leadflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T) redis.UniversalClient {
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLockIsExclusive(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "campaign:cust_1")
	assert.NoError(t, holder.Lock(ctx, 5*time.Second))

	contender := NewLocker(client, "campaign:cust_1")
	err := contender.Lock(ctx, 5*time.Second)
	assert.ErrorContains(t, err, "held by another worker")

	// A different customer's lock is unaffected.
	other := NewLocker(client, "campaign:cust_2")
	assert.NoError(t, other.Lock(ctx, 5*time.Second))
}

func TestUnlockOnlyByHolder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "campaign:cust_1")
	assert.NoError(t, holder.Lock(ctx, 5*time.Second))

	intruder := NewLocker(client, "campaign:cust_1")
	err := intruder.Unlock(ctx)
	assert.ErrorContains(t, err, "expired or held by another worker")

	assert.NoError(t, holder.Unlock(ctx))

	// The key is gone, so a second Unlock fails too.
	err = holder.Unlock(ctx)
	assert.ErrorContains(t, err, "expired or held by another worker")
}

func TestExtendLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	holder := NewLocker(client, "campaign:cust_1")
	assert.NoError(t, holder.Lock(ctx, time.Second))
	assert.NoError(t, holder.ExtendLock(ctx, 10*time.Second))

	// Once the lock expires, extension fails.
	mr.FastForward(time.Minute)
	err := holder.ExtendLock(ctx, 10*time.Second)
	assert.ErrorContains(t, err, "expired or held by another worker")
}

func TestWaitLockTimesOutWhileHeld(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewLocker(client, "campaign:cust_1")
	assert.NoError(t, holder.Lock(ctx, time.Minute))

	contender := NewLocker(client, "campaign:cust_1")
	err := contender.WaitLock(ctx, time.Minute, 150*time.Millisecond)
	assert.ErrorContains(t, err, "timed out waiting for lock")
}

func TestWaitLockAcquiresFreeLock(t *testing.T) {
	client := newTestClient(t)

	locker := NewLocker(client, "campaign:cust_1")
	assert.NoError(t, locker.WaitLock(context.Background(), time.Minute, time.Second))
}
