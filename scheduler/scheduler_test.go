package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AudioPress/audiopress/storage/local"
)

// noJitter makes job starts deterministic in tests.
func noJitter(s *Scheduler) { s.jitter = func(time.Duration) time.Duration { return 0 } }

func TestSchedulerRunsJobs(t *testing.T) {
	s := New()
	noJitter(s)

	var runs atomic.Int64
	s.Add(Job{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerStopHaltsJobs(t *testing.T) {
	s := New()
	noJitter(s)

	var runs atomic.Int64
	s.Add(Job{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestSchedulerContextCancelHaltsJobs(t *testing.T) {
	s := New()
	noJitter(s)

	var runs atomic.Int64
	s.Add(Job{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	// Stop still works after cancellation and must not hang.
	s.Stop()
}

func TestSchedulerStartTwice(t *testing.T) {
	s := New()
	noJitter(s)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestSchedulerAddIgnoresInvalidJobs(t *testing.T) {
	s := New()

	s.Add(
		Job{Name: "no run", Interval: time.Second},
		Job{Name: "no interval", Run: func(ctx context.Context) error { return nil }},
	)
	assert.Empty(t, s.jobs)
}

func TestSchedulerJobErrorKeepsTicking(t *testing.T) {
	s := New()
	noJitter(s)

	var runs atomic.Int64
	s.Add(Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return assert.AnError
		},
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerExclusiveSkipsWhenLocked(t *testing.T) {
	lockDir := t.TempDir()

	holder := local.NewLocker(lockDir)
	require.NoError(t, holder.Lock())

	s := New(WithLockDir(lockDir))
	noJitter(s)

	var runs atomic.Int64
	s.Add(Job{
		Name:      "sweeper",
		Interval:  10 * time.Millisecond,
		Exclusive: true,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// While the lock is held every run is skipped.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(0), runs.Load())

	require.NoError(t, holder.Unlock())
	require.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDefaultJitterStaysInBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := defaultJitter(time.Hour)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 6*time.Minute)
	}
	assert.Equal(t, time.Duration(0), defaultJitter(5))
}
