package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTimelineLocker(client, 5*time.Second), mr
}

func TestWithTimelineLockRunsCallback(t *testing.T) {
	locker, _ := newTestLocker(t)

	ran := false
	err := locker.WithTimelineLock(context.Background(), uuid.New(), time.Now(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithTimelineLockPropagatesCallbackError(t *testing.T) {
	locker, _ := newTestLocker(t)

	sentinel := errors.New("boom")
	err := locker.WithTimelineLock(context.Background(), uuid.New(), time.Now(), func(ctx context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestWithTimelineLockSecondHolderRejected(t *testing.T) {
	locker, _ := newTestLocker(t)

	providerID := uuid.New()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- locker.WithTimelineLock(context.Background(), providerID, day, func(ctx context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()

	<-inside
	err := locker.WithTimelineLock(context.Background(), providerID, day, func(ctx context.Context) error {
		t.Error("callback must not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	close(release)
	require.NoError(t, <-done)
}

func TestWithTimelineLockReacquireAfterRelease(t *testing.T) {
	locker, _ := newTestLocker(t)

	providerID := uuid.New()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := locker.WithTimelineLock(context.Background(), providerID, day, func(ctx context.Context) error {
			return nil
		})
		require.NoError(t, err, "iteration %d", i)
	}
}

func TestWithTimelineLockReleasedAfterCallbackError(t *testing.T) {
	locker, _ := newTestLocker(t)

	providerID := uuid.New()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	_ = locker.WithTimelineLock(context.Background(), providerID, day, func(ctx context.Context) error {
		return errors.New("boom")
	})

	err := locker.WithTimelineLock(context.Background(), providerID, day, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestWithTimelineLockDistinctTimelinesDoNotContend(t *testing.T) {
	locker, _ := newTestLocker(t)

	providerA := uuid.New()
	providerB := uuid.New()
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	err := locker.WithTimelineLock(context.Background(), providerA, monday, func(ctx context.Context) error {
		// same day, other provider
		if err := locker.WithTimelineLock(ctx, providerB, monday, func(ctx context.Context) error { return nil }); err != nil {
			return err
		}
		// same provider, other day
		return locker.WithTimelineLock(ctx, providerA, tuesday, func(ctx context.Context) error { return nil })
	})
	assert.NoError(t, err)
}

func TestWithTimelineLockKeyExpires(t *testing.T) {
	locker, mr := newTestLocker(t)

	providerID := uuid.New()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	blocked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- locker.WithTimelineLock(context.Background(), providerID, day, func(ctx context.Context) error {
			close(blocked)
			<-release
			return nil
		})
	}()

	<-blocked
	mr.FastForward(6 * time.Second)

	// holder's key expired; a new caller acquires immediately
	err := locker.WithTimelineLock(context.Background(), providerID, day, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)

	close(release)
	<-done
}
