package wfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Default backoff parameters.
const (
	DefaultBackoffBase = 5 * time.Second
	DefaultBackoffCap  = 5 * time.Minute
)

// KindUpsertStep is the job kind autosave enqueues by default.
const KindUpsertStep = "UPSERT_STEP"

// SyncJob is one outbound change waiting for the remote processor.
type SyncJob struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	DocumentID string    `json:"documentId"`
	SectionID  string    `json:"sectionId,omitempty"`
	Payload    Payload   `json:"payload"`
	Upsert     bool      `json:"upsert,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attempts"`
	// Seq is stamped by the queue on every insertion. A job whose Seq changed
	// while it was being processed has been superseded.
	Seq uint64 `json:"seq"`
}

// UpsertJobID is the deterministic id shared by every upsert of the same target.
func UpsertJobID(kind, doc, section string) string {
	if section == "" {
		return kind + ":" + doc
	}
	return kind + ":" + doc + ":" + section
}

// NewUpsertJob builds an upsert job whose id is derived from its target.
func NewUpsertJob(kind, doc, section string, payload Payload) SyncJob {
	return SyncJob{
		ID:         UpsertJobID(kind, doc, section),
		Kind:       kind,
		DocumentID: doc,
		SectionID:  section,
		Payload:    payload,
		Upsert:     true,
	}
}

// ProcessResult is a processor's answer for a job that reached the server.
type ProcessResult struct {
	// Conflict reports that the server holds a different value.
	Conflict      bool
	ServerPayload Payload
}

// Processor delivers jobs to the remote side. A returned error is a failure
// and the job is retried. The queue applies no timeout of its own.
type Processor interface {
	Process(ctx context.Context, job SyncJob) (ProcessResult, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job SyncJob) (ProcessResult, error)

func (f ProcessorFunc) Process(ctx context.Context, job SyncJob) (ProcessResult, error) {
	return f(ctx, job)
}

// Enqueuer is the insertion side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job SyncJob) (string, error)
}

// QueueOptions configures a SyncQueue.
type QueueOptions struct {
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// MaxAttempts moves a job to the dead-letter list once its failed attempts
	// reach this count. Zero retries forever.
	MaxAttempts int
}

// DrainReport summarises one drain pass.
type DrainReport struct {
	Sent         int
	Dropped      int
	Requeued     int
	DeadLettered int
	// Failed is set when the pass stopped on a processor failure.
	Failed bool
	// Deferred is set when the pass stopped at a job enqueued after it began.
	Deferred  bool
	Remaining int
}

type queueState struct {
	Seq   uint64    `json:"seq"`
	Items []SyncJob `json:"items"`
}

type deadLetters struct {
	Items []SyncJob `json:"items"`
}

// SyncQueue is a durable FIFO of outbound jobs with upsert compression.
// Drains are serialised and process one job at a time.
type SyncQueue struct {
	kv        KV
	processor Processor
	bus       Publisher
	clock     Clock
	ids       IDGenerator
	logger    Logger
	opts      QueueOptions

	mu      sync.Mutex
	state   queueState
	drainMu sync.Mutex
}

// NewSyncQueue creates a queue bound to processor. Call Open before use.
func NewSyncQueue(kv KV, processor Processor, bus Publisher, clock Clock, ids IDGenerator, logger Logger, opts QueueOptions) *SyncQueue {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = DefaultBackoffCap
	}
	return &SyncQueue{
		kv:        kv,
		processor: processor,
		bus:       orNopPublisher(bus),
		clock:     clock,
		ids:       ids,
		logger:    orNop(logger),
		opts:      opts,
	}
}

// Open loads the persisted queue.
func (q *SyncQueue) Open(ctx context.Context) error {
	data, ok, err := q.kv.Get(ctx, queueKey)
	if err != nil {
		return &StorageError{Op: "get", Key: queueKey, Err: err}
	}
	var st queueState
	if ok {
		if err := decodeJSON(data, &st); err != nil {
			return &StorageError{Op: "decode", Key: queueKey, Err: err}
		}
	}

	q.mu.Lock()
	q.state = st
	size := len(st.Items)
	q.mu.Unlock()

	q.logger.Info("sync queue loaded", "jobs", size)
	q.bus.Publish(QueueUpdate{Size: size, Reason: ReasonLoad})
	return nil
}

// Enqueue inserts job and returns its id. An upsert whose id is already queued
// replaces that entry in place with whichever payload is newer; ties go to
// the incoming job. Non-upsert jobs always get a fresh id.
func (q *SyncQueue) Enqueue(ctx context.Context, job SyncJob) (string, error) {
	if job.Kind == "" || job.DocumentID == "" {
		return "", ErrInvalidJob
	}
	if job.Upsert {
		job.ID = UpsertJobID(job.Kind, job.DocumentID, job.SectionID)
	} else {
		job.ID = q.ids.New()
	}
	job.Payload = job.Payload.Clone()
	job.Attempts = 0

	q.mu.Lock()
	job.EnqueuedAt = q.clock.Now().UTC()
	changed, err := q.insertLocked(ctx, job)
	size := len(q.state.Items)
	q.mu.Unlock()
	if err != nil {
		return "", err
	}

	if changed {
		q.logger.Debug("job enqueued", "id", job.ID, "kind", job.Kind, "size", size)
		q.bus.Publish(QueueUpdate{Size: size, Reason: ReasonEnqueue})
	}
	return job.ID, nil
}

// insertLocked applies the compression rule and persists. It reports false
// when an existing newer upsert made the insert a no-op.
func (q *SyncQueue) insertLocked(ctx context.Context, job SyncJob) (bool, error) {
	prev := q.snapshotLocked()
	idx := q.indexLocked(job.ID)
	if job.Upsert && idx >= 0 && newer(q.state.Items[idx].Payload, job.Payload) {
		return false, nil
	}

	q.state.Seq++
	job.Seq = q.state.Seq
	if idx >= 0 {
		q.state.Items[idx] = job
	} else {
		q.state.Items = append(q.state.Items, job)
	}
	if err := q.saveLocked(ctx); err != nil {
		q.state = prev
		return false, err
	}
	return true, nil
}

// Drain hands jobs to the processor in FIFO order until the queue is empty,
// a job enqueued after the pass began is reached, or the processor fails.
// A failure bumps the job's attempts, waits the backoff delay and ends the
// pass so later jobs never overtake it. Processor failures are not returned;
// storage and context errors are.
func (q *SyncQueue) Drain(ctx context.Context) (DrainReport, error) {
	if q.processor == nil {
		return DrainReport{}, errors.New("sync queue has no processor")
	}
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	q.mu.Lock()
	limit := q.state.Seq
	q.mu.Unlock()

	var report DrainReport
	for {
		if err := ctx.Err(); err != nil {
			report.Remaining = q.Len()
			return report, err
		}

		job, ok := q.head()
		if !ok {
			break
		}
		if job.Seq > limit {
			report.Deferred = true
			break
		}

		q.bus.Publish(QueueProcessing{Job: job})
		res, err := q.process(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				report.Remaining = q.Len()
				return report, ctx.Err()
			}
			delay, dead, ferr := q.fail(ctx, job, err)
			if ferr != nil {
				return report, ferr
			}
			if dead {
				report.DeadLettered++
				continue
			}
			report.Failed = true
			if err := sleep(ctx, q.clock, delay); err != nil {
				report.Remaining = q.Len()
				return report, err
			}
			break
		}

		if res.Conflict {
			requeued, err := q.resolveConflict(ctx, job, res.ServerPayload)
			if err != nil {
				return report, err
			}
			if requeued {
				report.Requeued++
			} else {
				report.Dropped++
			}
			continue
		}

		if err := q.complete(ctx, job); err != nil {
			return report, err
		}
		report.Sent++
	}

	report.Remaining = q.Len()
	return report, nil
}

func (q *SyncQueue) process(ctx context.Context, job SyncJob) (res ProcessResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return q.processor.Process(ctx, job)
}

// complete removes a successfully processed job unless it was superseded.
func (q *SyncQueue) complete(ctx context.Context, job SyncJob) error {
	q.mu.Lock()
	removed, err := q.removeLocked(ctx, job)
	size := len(q.state.Items)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	if !removed {
		q.logger.Debug("job superseded while processing", "id", job.ID)
	}
	q.bus.Publish(QueueDone{JobID: job.ID, Outcome: OutcomeSent})
	q.bus.Publish(QueueUpdate{Size: size, Reason: ReasonDone})
	return nil
}

// resolveConflict re-enqueues a fresh copy when the local payload is strictly
// newer than the server's and drops the job otherwise. The server value is
// not written anywhere; pulling it into drafts is the caller's business.
func (q *SyncQueue) resolveConflict(ctx context.Context, job SyncJob, server Payload) (bool, error) {
	keepLocal := newer(job.Payload, server)

	q.mu.Lock()
	prev := q.snapshotLocked()
	idx := q.indexLocked(job.ID)
	current := idx >= 0 && q.state.Items[idx].Seq == job.Seq
	if current {
		q.state.Items = append(q.state.Items[:idx], q.state.Items[idx+1:]...)
		if keepLocal {
			q.state.Seq++
			fresh := job
			fresh.Attempts = 0
			fresh.EnqueuedAt = q.clock.Now().UTC()
			fresh.Seq = q.state.Seq
			q.state.Items = append(q.state.Items, fresh)
		}
		if err := q.saveLocked(ctx); err != nil {
			q.state = prev
			q.mu.Unlock()
			return false, err
		}
	}
	size := len(q.state.Items)
	q.mu.Unlock()

	outcome, reason := OutcomeConflictDropped, ReasonDone
	if keepLocal {
		outcome, reason = OutcomeRequeued, ReasonConflict
	}
	q.logger.Info("sync conflict resolved", "id", job.ID, "outcome", string(outcome))
	q.bus.Publish(QueueDone{JobID: job.ID, Outcome: outcome})
	q.bus.Publish(QueueUpdate{Size: size, Reason: reason})
	return keepLocal, nil
}

// fail records a processor failure on the job at the head of the queue.
// It returns the backoff delay, or dead=true when the job was dead-lettered.
func (q *SyncQueue) fail(ctx context.Context, job SyncJob, cause error) (delay time.Duration, dead bool, err error) {
	perr := &ProcessorError{JobID: job.ID, Err: cause}

	q.mu.Lock()
	prev := q.snapshotLocked()
	idx := q.indexLocked(job.ID)
	if idx < 0 {
		q.mu.Unlock()
		return 0, false, nil
	}
	attempts := max(q.state.Items[idx].Attempts, job.Attempts) + 1
	if q.opts.MaxAttempts > 0 && attempts >= q.opts.MaxAttempts {
		failed := q.state.Items[idx]
		failed.Attempts = attempts
		q.state.Items = append(q.state.Items[:idx], q.state.Items[idx+1:]...)
		if err := q.saveLocked(ctx); err != nil {
			q.state = prev
			q.mu.Unlock()
			return 0, false, err
		}
		size := len(q.state.Items)
		q.mu.Unlock()

		if err := q.appendDeadLetter(ctx, failed); err != nil {
			return 0, false, err
		}
		q.logger.Error("job dead-lettered", "id", job.ID, "attempts", attempts, "error", cause)
		q.bus.Publish(QueueDone{JobID: job.ID, Outcome: OutcomeDeadLettered})
		q.bus.Publish(QueueUpdate{Size: size, Reason: ReasonDone})
		return 0, true, nil
	}

	q.state.Items[idx].Attempts = attempts
	q.state.Items[idx].EnqueuedAt = q.clock.Now().UTC()
	if err := q.saveLocked(ctx); err != nil {
		q.state = prev
		q.mu.Unlock()
		return 0, false, err
	}
	size := len(q.state.Items)
	q.mu.Unlock()

	delay = q.BackoffDelay(attempts)
	q.logger.Warn("sync job failed, backing off", "id", job.ID, "attempts", attempts, "delay", delay, "error", cause)
	q.bus.Publish(QueueRetry{JobID: job.ID, Attempts: attempts, Delay: delay, Err: perr})
	q.bus.Publish(QueueUpdate{Size: size, Reason: ReasonRetry})
	return delay, false, nil
}

// BackoffDelay returns min(attempts*base, cap).
func (q *SyncQueue) BackoffDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if int64(attempts) > int64(q.opts.BackoffCap/q.opts.BackoffBase) {
		return q.opts.BackoffCap
	}
	return min(time.Duration(attempts)*q.opts.BackoffBase, q.opts.BackoffCap)
}

// Jobs returns a deep copy of the queued jobs in order.
func (q *SyncQueue) Jobs() []SyncJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]SyncJob, len(q.state.Items))
	for i, item := range q.state.Items {
		item.Payload = item.Payload.Clone()
		jobs[i] = item
	}
	return jobs
}

// Len returns the number of queued jobs.
func (q *SyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.state.Items)
}

// DeadLetters returns jobs removed after reaching MaxAttempts.
func (q *SyncQueue) DeadLetters(ctx context.Context) ([]SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	dl, err := q.readDeadLettersLocked(ctx)
	if err != nil {
		return nil, err
	}
	return dl.Items, nil
}

func (q *SyncQueue) head() (SyncJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.state.Items) == 0 {
		return SyncJob{}, false
	}
	job := q.state.Items[0]
	job.Payload = job.Payload.Clone()
	return job, true
}

func (q *SyncQueue) indexLocked(id string) int {
	for i, item := range q.state.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (q *SyncQueue) removeLocked(ctx context.Context, job SyncJob) (bool, error) {
	idx := q.indexLocked(job.ID)
	if idx < 0 || q.state.Items[idx].Seq != job.Seq {
		return false, nil
	}
	prev := q.snapshotLocked()
	q.state.Items = append(q.state.Items[:idx], q.state.Items[idx+1:]...)
	if err := q.saveLocked(ctx); err != nil {
		q.state = prev
		return false, err
	}
	return true, nil
}

func (q *SyncQueue) snapshotLocked() queueState {
	return queueState{Seq: q.state.Seq, Items: append([]SyncJob(nil), q.state.Items...)}
}

func (q *SyncQueue) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(q.state)
	if err != nil {
		return &StorageError{Op: "encode", Key: queueKey, Err: err}
	}
	if err := q.kv.Set(ctx, queueKey, data); err != nil {
		return &StorageError{Op: "set", Key: queueKey, Err: err}
	}
	return nil
}

func (q *SyncQueue) readDeadLettersLocked(ctx context.Context) (*deadLetters, error) {
	data, ok, err := q.kv.Get(ctx, deadLetterKey)
	if err != nil {
		return nil, &StorageError{Op: "get", Key: deadLetterKey, Err: err}
	}
	var dl deadLetters
	if ok {
		if err := decodeJSON(data, &dl); err != nil {
			return nil, &StorageError{Op: "decode", Key: deadLetterKey, Err: err}
		}
	}
	return &dl, nil
}

func (q *SyncQueue) appendDeadLetter(ctx context.Context, job SyncJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	dl, err := q.readDeadLettersLocked(ctx)
	if err != nil {
		return err
	}
	dl.Items = append(dl.Items, job)
	data, err := json.Marshal(dl)
	if err != nil {
		return &StorageError{Op: "encode", Key: deadLetterKey, Err: err}
	}
	if err := q.kv.Set(ctx, deadLetterKey, data); err != nil {
		return &StorageError{Op: "set", Key: deadLetterKey, Err: err}
	}
	return nil
}
