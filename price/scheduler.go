package price

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/symbolws/errors"
)

// Task is a step run periodically by a Scheduler.
type Task struct {
	Name     string
	Interval time.Duration
	// Immediate runs the task once when the scheduler starts.
	Immediate bool
	Run       func(ctx context.Context) error
}

// TaskStatus reports the last run of a task.
type TaskStatus struct {
	Name      string    `json:"name"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler runs tasks on fixed intervals. A failing run is logged and the
// task keeps its schedule.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger

	mu     sync.Mutex
	status map[string]*TaskStatus
}

// NewScheduler validates tasks and creates a Scheduler.
func NewScheduler(tasks []Task, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	status := make(map[string]*TaskStatus, len(tasks))
	for _, t := range tasks {
		if t.Name == "" || t.Interval <= 0 || t.Run == nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: task %q needs a name, positive interval and run func", errors.ErrInvalidConfig, t.Name),
				"Scheduler", "NewScheduler", "validate task")
		}
		if _, dup := status[t.Name]; dup {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: duplicate task %q", errors.ErrInvalidConfig, t.Name),
				"Scheduler", "NewScheduler", "validate task")
		}
		status[t.Name] = &TaskStatus{Name: t.Name}
	}
	return &Scheduler{
		tasks:  tasks,
		logger: logger.With("component", "price-scheduler"),
		status: status,
	}, nil
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		g.Go(func() error {
			s.loop(gctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	if t.Immediate {
		s.runOnce(ctx, t)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	start := time.Now()
	err := t.Run(ctx)

	s.mu.Lock()
	st := s.status[t.Name]
	st.Runs++
	st.LastRun = start
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Scheduled task failed", "task", t.Name, "error", err,
			"class", errors.Classify(err).String())
		return
	}
	s.logger.Debug("Scheduled task finished", "task", t.Name, "duration", time.Since(start))
}

// Status returns a snapshot of every task's last run, in task order.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *s.status[t.Name])
	}
	return out
}

// Tasks returns the standard pipeline tasks of j.
func Tasks(j *Job, importEvery, summarizeEvery, cleanupEvery time.Duration) []Task {
	return []Task{
		{Name: "import_hourly", Interval: importEvery, Immediate: true, Run: func(ctx context.Context) error {
			_, err := j.ImportHourly(ctx)
			return err
		}},
		{Name: "summarize_daily", Interval: summarizeEvery, Run: func(ctx context.Context) error {
			_, err := j.SummarizeDaily(ctx)
			return err
		}},
		{Name: "cleanup", Interval: cleanupEvery, Run: func(ctx context.Context) error {
			_, err := j.Cleanup(ctx)
			return err
		}},
	}
}
