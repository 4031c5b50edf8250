package lockmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ILockManager = NewKeyLocker()

func TestAcquireRelease(t *testing.T) {
	kl := NewKeyLocker()
	ctx := context.Background()

	owner, err := kl.AcquireLock(ctx, "k")
	require.NoError(t, err)
	assert.NotEmpty(t, owner)
	assert.Equal(t, 1, kl.Len())

	assert.False(t, kl.ReleaseLock("k", "someone-else"), "only the owner can release")
	assert.True(t, kl.ReleaseLock("k", owner))
	assert.Equal(t, 0, kl.Len(), "idle entries are removed")

	assert.True(t, kl.ReleaseLock("never-locked", "x"))
}

func TestMutualExclusion(t *testing.T) {
	kl := NewKeyLocker()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := kl.Lock(ctx, "shared")
			if err != nil {
				t.Error(err)
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, kl.Len())
}

func TestIndependentKeys(t *testing.T) {
	kl := NewKeyLocker()
	ctx := context.Background()

	unlockA, err := kl.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := kl.Lock(ctx2, "b")
	require.NoError(t, err, "locking another key must not block")
	unlockB()
}

func TestCancelledWait(t *testing.T) {
	kl := NewKeyLocker()

	unlock, err := kl.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = kl.AcquireLock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Equal(t, 0, kl.Len(), "a cancelled waiter does not leak its entry")
}
