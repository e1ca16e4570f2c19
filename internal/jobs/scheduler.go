package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wfs-go/internal/wfs"
)

// Default scheduler intervals.
const (
	DefaultDrainInterval = 10 * time.Minute
	DefaultPurgeInterval = time.Hour
)

// Drainer is the part of wfs.SyncQueue the scheduler drives.
type Drainer interface {
	Drain(ctx context.Context) (wfs.DrainReport, error)
}

// Purger is the part of wfs.DraftStore the scheduler drives.
type Purger interface {
	PurgeExpired(ctx context.Context) (bool, error)
}

// SchedulerOptions configures a SyncScheduler.
type SchedulerOptions struct {
	DrainInterval time.Duration
	PurgeInterval time.Duration
}

// SyncScheduler decides when the sync queue drains: on a fixed interval, when
// connectivity returns, when a job is enqueued and after a failed pass. All
// drains run on the Run goroutine; triggers that arrive meanwhile collapse
// into a single follow-up pass. Nothing drains while offline.
type SyncScheduler struct {
	queue  Drainer
	drafts Purger
	bus    *wfs.Bus
	conn   wfs.Connectivity
	exec   *TaskExecutor
	logger wfs.Logger
	opts   SchedulerOptions

	trigger chan struct{}

	mu     sync.Mutex
	online bool
	known  bool
}

// NewSyncScheduler creates a scheduler. drafts may be nil to disable purging.
func NewSyncScheduler(queue Drainer, drafts Purger, bus *wfs.Bus, conn wfs.Connectivity, logger wfs.Logger, opts SchedulerOptions) *SyncScheduler {
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = DefaultDrainInterval
	}
	if opts.PurgeInterval <= 0 {
		opts.PurgeInterval = DefaultPurgeInterval
	}
	if logger == nil {
		logger = wfs.NewNopLogger()
	}
	return &SyncScheduler{
		queue:   queue,
		drafts:  drafts,
		bus:     bus,
		conn:    conn,
		exec:    NewTaskExecutor(logger),
		logger:  logger,
		opts:    opts,
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests a drain pass. It never blocks.
func (s *SyncScheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Online reports the last observed connectivity state.
func (s *SyncScheduler) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Run schedules work and blocks until ctx is done.
func (s *SyncScheduler) Run(ctx context.Context) error {
	updates, err := s.conn.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watching connectivity: %w", err)
	}

	if err := s.exec.Add(NewCronJob("sync-drain", Every(s.opts.DrainInterval), func(context.Context) {
		s.Trigger()
	})); err != nil {
		return err
	}
	if s.drafts != nil {
		if err := s.exec.Add(NewCronJob("draft-purge", Every(s.opts.PurgeInterval), s.purge)); err != nil {
			return err
		}
	}

	unsubscribe := s.bus.Subscribe(func(e wfs.Event) {
		if u, ok := e.(wfs.QueueUpdate); ok && u.Reason == wfs.ReasonEnqueue {
			s.Trigger()
		}
	})
	defer unsubscribe()

	s.exec.Start(ctx)
	defer s.exec.Stop()
	s.logger.Info("sync scheduler started", "drain_interval", s.opts.DrainInterval, "purge_interval", s.opts.PurgeInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopped")
			return nil
		case online, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.observe(online)
		case <-s.trigger:
			s.drain(ctx)
		}
	}
}

func (s *SyncScheduler) observe(online bool) {
	s.mu.Lock()
	changed := !s.known || s.online != online
	s.online, s.known = online, true
	s.mu.Unlock()
	if !changed {
		return
	}

	if online {
		s.logger.Info("connectivity restored")
		s.bus.Publish(wfs.NetOnline{})
		s.Trigger()
		return
	}
	s.logger.Info("connectivity lost")
	s.bus.Publish(wfs.NetOffline{})
}

func (s *SyncScheduler) drain(ctx context.Context) {
	if !s.Online() {
		s.logger.Debug("skipping drain while offline")
		return
	}
	report, err := s.queue.Drain(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("draining sync queue", "error", err)
		}
		return
	}
	s.logger.Debug("sync queue drained",
		"sent", report.Sent, "dropped", report.Dropped, "requeued", report.Requeued,
		"dead_lettered", report.DeadLettered, "failed", report.Failed, "remaining", report.Remaining)
	if report.Failed {
		// The backoff was already waited inside Drain.
		s.Trigger()
	}
}

func (s *SyncScheduler) purge(ctx context.Context) {
	if _, err := s.drafts.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("purging expired drafts", "error", err)
	}
}
