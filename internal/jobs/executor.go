// Package jobs runs the engine's background work: periodic drains and purges.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/robfig/cron"

	"wfs-go/internal/wfs"
)

// Job is a named unit of background work. Two runs of the same name never
// overlap.
type Job interface {
	Name() string
	Run(ctx context.Context)
}

// CronJob is a Job with a cron schedule such as "@every 10m".
type CronJob interface {
	Job
	Schedule() string
}

type funcJob struct {
	name     string
	schedule string
	fn       func(context.Context)
}

func (j funcJob) Name() string            { return j.name }
func (j funcJob) Schedule() string        { return j.schedule }
func (j funcJob) Run(ctx context.Context) { j.fn(ctx) }

// NewCronJob wraps fn as a CronJob.
func NewCronJob(name, schedule string, fn func(context.Context)) CronJob {
	return funcJob{name: name, schedule: schedule, fn: fn}
}

// Every returns the cron schedule for a fixed interval.
func Every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// TaskExecutor runs cron jobs on their schedule, skipping a run while the
// previous one is still going.
type TaskExecutor struct {
	cron    *cron.Cron
	running mapset.Set[string]
	logger  wfs.Logger

	mu      sync.Mutex
	ctx     context.Context
	started bool
}

func NewTaskExecutor(logger wfs.Logger) *TaskExecutor {
	if logger == nil {
		logger = wfs.NewNopLogger()
	}
	return &TaskExecutor{
		cron:    cron.New(),
		running: mapset.NewSet[string](),
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Add registers job. It may be called before or after Start.
func (t *TaskExecutor) Add(job CronJob) error {
	if err := t.cron.AddFunc(job.Schedule(), func() { t.RunOnce(t.context(), job) }); err != nil {
		return fmt.Errorf("scheduling %s: %w", job.Name(), err)
	}
	return nil
}

// RunOnce runs job now unless a run of the same name is in progress.
// It reports whether the job ran.
func (t *TaskExecutor) RunOnce(ctx context.Context, job Job) bool {
	if !t.running.Add(job.Name()) {
		t.logger.Warn("task is already running", "task", job.Name())
		return false
	}
	defer t.running.Remove(job.Name())
	job.Run(ctx)
	return true
}

// Start begins firing scheduled jobs. ctx is handed to every run.
func (t *TaskExecutor) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.ctx = ctx
	t.started = true
	t.cron.Start()
}

// Stop halts the schedule. Runs in progress are not interrupted.
func (t *TaskExecutor) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return
	}
	t.logger.Info("stopping scheduled tasks")
	t.cron.Stop()
	t.started = false
}

func (t *TaskExecutor) context() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx
}
