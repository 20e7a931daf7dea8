// Package scheduler runs the periodic maintenance jobs: cache cleanup,
// play-count folding, quota resets and provider health checks. Each job
// runs on its own jittered ticker; jobs that sweep a shared local
// storage root take a cross-process file lock so concurrent deployments
// do not race.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/metrics/prometheus"
	"github.com/AudioPress/audiopress/storage/local"
)

// Job is one periodic maintenance task.
type Job struct {
	// Name identifies the job in logs and metrics.
	Name string

	// Interval is the time between runs. The first run happens after a
	// jittered fraction of the interval so restarts do not stampede.
	Interval time.Duration

	// Run executes one pass of the job.
	Run func(ctx context.Context) error

	// Exclusive jobs take the storage lock before running, so only one
	// process sweeps a shared storage root at a time.
	Exclusive bool
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLockDir sets the directory whose advisory lock guards exclusive
// jobs. Empty disables cross-process locking.
func WithLockDir(dir string) Option {
	return func(s *Scheduler) { s.lockDir = dir }
}

// Scheduler owns the maintenance job goroutines.
type Scheduler struct {
	jobs    []Job
	lockDir string

	// jitter computes the initial start delay for a job interval.
	jitter func(interval time.Duration) time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler. Add jobs, then Start it.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jitter: defaultJitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultJitter spreads job starts over the first tenth of the interval.
func defaultJitter(interval time.Duration) time.Duration {
	slot := int64(interval / 10)
	if slot <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(slot))
}

// Add registers jobs to run. Jobs without a Run func or a positive
// interval are ignored.
func (s *Scheduler) Add(jobs ...Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		if job.Run == nil || job.Interval <= 0 {
			continue
		}
		s.jobs = append(s.jobs, job)
	}
}

// Start launches one goroutine per job. Each job runs once after its
// jittered start delay, then on every interval tick until Stop is
// called or ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true
	s.stopCh = make(chan struct{})

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
	}

	logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	delay := s.jitter(job.Interval)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.stopCh:
		return
	case <-ctx.Done():
		return
	}

	s.runJob(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runJob(ctx, job)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runJob executes one pass with logging, metrics and the optional
// cross-process lock.
func (s *Scheduler) runJob(ctx context.Context, job Job) {
	ctx = logger.WithJob(ctx, job.Name)

	if job.Exclusive && s.lockDir != "" {
		locker := local.NewLocker(s.lockDir)
		if err := locker.Lock(); err != nil {
			logger.InfoContext(ctx, "Job skipped, storage lock held elsewhere", "error", err)
			prometheus.RecordJobRun(job.Name, "skipped", 0)
			return
		}
		defer func() {
			if err := locker.Unlock(); err != nil {
				logger.WarnContext(ctx, "Failed to release storage lock", "error", err)
			}
		}()
	}

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	if err != nil {
		prometheus.RecordJobRun(job.Name, "error", elapsed.Seconds())
		logger.ErrorContext(ctx, "Job failed",
			"elapsed", elapsed.Round(time.Millisecond).String(),
			"error", err,
		)
		return
	}

	prometheus.RecordJobRun(job.Name, "success", elapsed.Seconds())
	logger.InfoContext(ctx, "Job complete",
		"elapsed", elapsed.Round(time.Millisecond).String(),
	)
}

// Stop halts all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("Scheduler stopped")
}
