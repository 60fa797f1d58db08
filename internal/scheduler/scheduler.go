// Package scheduler runs the recurring pipeline jobs. Each job ticks on
// its own interval in its own goroutine, so a slow ingestion cycle never
// delays alert evaluation or snapshotting. A panicking job is recovered
// and logged; the tick loop keeps going.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Job is one recurring task.
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart fires the job immediately instead of waiting a full
	// interval for the first tick.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// JobStatus is the observable run state of one job.
type JobStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	LastRun   time.Time     `json:"last_run,omitzero"`
	LastError string        `json:"last_error,omitempty"`
}

type jobState struct {
	job    Job
	mu     sync.Mutex
	status JobStatus
}

// Scheduler owns the job goroutines between Start and Stop.
type Scheduler struct {
	jobs   []*jobState
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %q has non-positive interval %v", job.Name, job.Interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.jobs = append(s.jobs, &jobState{
		job:    job,
		status: JobStatus{Name: job.Name, Interval: job.Interval},
	})
	return nil
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, st := range s.jobs {
		wg.Add(1)
		go func(st *jobState) {
			defer wg.Done()
			s.loop(ctx, st)
		}(st)
	}
	go func() {
		wg.Wait()
		close(s.done)
	}()

	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop cancels all jobs and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Status returns a snapshot of every job's run state.
func (s *Scheduler) Status() []JobStatus {
	out := make([]JobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		st.mu.Lock()
		out = append(out, st.status)
		st.mu.Unlock()
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, st *jobState) {
	if st.job.RunOnStart {
		s.runOnce(ctx, st)
	}

	ticker := time.NewTicker(st.job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, st)
		}
	}
}

// runOnce executes the job with panic containment and updates its status.
func (s *Scheduler) runOnce(ctx context.Context, st *jobState) {
	if ctx.Err() != nil {
		return
	}

	st.mu.Lock()
	st.status.Running = true
	st.mu.Unlock()

	err := s.safeRun(ctx, st.job)

	st.mu.Lock()
	st.status.Running = false
	st.status.Runs++
	st.status.LastRun = time.Now()
	if err != nil {
		st.status.Failures++
		st.status.LastError = err.Error()
	} else {
		st.status.LastError = ""
	}
	st.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", st.job.Name, "error", err)
	}
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked",
				"job", job.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	return job.Run(ctx)
}
