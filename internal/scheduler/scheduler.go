package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobFunc is one run of a periodic job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
	cancel   context.CancelFunc
}

// Scheduler runs named jobs on fixed intervals until stopped.
type Scheduler struct {
	jobs   map[string]*job
	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob starts name immediately and then every interval, replacing a job with the same name.
func (s *Scheduler) AddJob(name string, interval time.Duration, run JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.jobs[name]; exists {
		existing.cancel()
	}

	jobCtx, jobCancel := context.WithCancel(s.ctx)
	j := &job{name: name, interval: interval, run: run, cancel: jobCancel}
	s.jobs[name] = j

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(jobCtx, j)
	}()

	slog.Info("scheduled job", "job", name, "interval", interval)
}

func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, exists := s.jobs[name]; exists {
		j.cancel()
		delete(s.jobs, name)
	}
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Stop cancels every job and waits for runs in progress to return.
func (s *Scheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	s.jobs = make(map[string]*job)
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.execute(ctx, j)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, j)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	start := time.Now()

	if err := j.run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.ErrorContext(ctx, "scheduled job failed", "job", j.name, "error", err)
		return
	}

	slog.DebugContext(ctx, "scheduled job completed", "job", j.name, "duration", time.Since(start))
}

// PruneFunc deletes rows created before cutoff and reports how many went.
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// RetentionJob drops records older than retention on every run.
func RetentionJob(retention time.Duration, prune PruneFunc) JobFunc {
	return func(ctx context.Context) error {
		removed, err := prune(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if removed > 0 {
			slog.InfoContext(ctx, "pruned old records", "count", removed, "retention", retention)
		}
		return nil
	}
}
