package wfs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before an observed change is saved.
const DefaultDebounce = 1500 * time.Millisecond

// AutosaveStatus is the autosaver's externally visible state.
type AutosaveStatus string

const (
	StatusIdle   AutosaveStatus = "idle"
	StatusSaving AutosaveStatus = "saving"
	StatusSaved  AutosaveStatus = "saved"
	StatusError  AutosaveStatus = "error"
)

// AutosaveOptions configures an Autosaver for one (document, section).
type AutosaveOptions struct {
	DocumentID string
	SectionID  string
	Debounce   time.Duration
	// Queue, when set, receives an upsert job for every saved payload.
	Queue   Enqueuer
	JobKind string
}

// Autosaver debounces observed values of one section into DraftStore saves.
// While not visible it ignores changes entirely.
type Autosaver struct {
	drafts *DraftStore
	bus    Publisher
	clock  Clock
	logger Logger
	opts   AutosaveOptions

	mu            sync.Mutex
	ctx           context.Context
	visible       bool
	stopped       bool
	status        AutosaveStatus
	lastPersisted Payload
	hasPersisted  bool
	inFlight      Payload
	pending       Payload
	timer         Timer
	gen           uint64

	saveMu sync.Mutex
}

// NewAutosaver creates an autosaver. Call Start before observing values.
func NewAutosaver(drafts *DraftStore, bus Publisher, clock Clock, logger Logger, opts AutosaveOptions) *Autosaver {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.JobKind == "" {
		opts.JobKind = KindUpsertStep
	}
	return &Autosaver{
		drafts:  drafts,
		bus:     orNopPublisher(bus),
		clock:   clock,
		logger:  orNop(logger),
		opts:    opts,
		ctx:     context.Background(),
		visible: true,
		status:  StatusIdle,
	}
}

// Start loads the last persisted value so unchanged observations are ignored.
// ctx is used for saves fired by the debounce timer.
func (a *Autosaver) Start(ctx context.Context) error {
	payload, ok, err := a.drafts.LoadLatestValid(ctx, a.opts.DocumentID, a.opts.SectionID)
	if err != nil {
		return fmt.Errorf("loading last saved draft: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx = ctx
	a.lastPersisted = payload
	a.hasPersisted = ok
	return nil
}

// Observe reports the section's current value. A value different from the
// last persisted one (re)starts the debounce timer; an equal one cancels any
// pending save.
func (a *Autosaver) Observe(value Payload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.visible || a.stopped {
		return
	}
	if a.unchangedLocked(value) {
		a.cancelLocked()
		return
	}

	a.cancelLocked()
	a.pending = value.Clone()
	a.gen++
	gen := a.gen
	a.timer = a.clock.AfterFunc(a.opts.Debounce, func() { a.fire(gen) })
}

// unchangedLocked reports whether value is already persisted or being saved.
func (a *Autosaver) unchangedLocked(value Payload) bool {
	if a.inFlight != nil && Equal(value, a.inFlight) {
		return true
	}
	return a.hasPersisted && Equal(value, a.lastPersisted)
}

// SetVisible suspends (false) or resumes (true) change detection. Resuming
// does not save changes that happened while hidden.
func (a *Autosaver) SetVisible(visible bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !visible {
		a.cancelLocked()
	}
	a.visible = visible
}

// Status returns the current autosave status.
func (a *Autosaver) Status() AutosaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Flush saves a pending value immediately instead of waiting for the timer.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	payload := a.pending
	a.cancelLocked()
	a.mu.Unlock()
	if payload == nil {
		return nil
	}
	return a.save(ctx, payload)
}

// Stop cancels any pending save and ignores further observations.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelLocked()
	a.stopped = true
}

func (a *Autosaver) cancelLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pending = nil
	a.gen++
}

func (a *Autosaver) fire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.pending == nil {
		a.mu.Unlock()
		return
	}
	payload := a.pending
	a.pending = nil
	a.timer = nil
	ctx := a.ctx
	a.mu.Unlock()

	if err := a.save(ctx, payload); err != nil {
		a.logger.Error("autosave failed", "document", a.opts.DocumentID, "section", a.opts.SectionID, "error", err)
	}
}

func (a *Autosaver) save(ctx context.Context, payload Payload) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	doc, section := a.opts.DocumentID, a.opts.SectionID
	a.mu.Lock()
	a.status = StatusSaving
	a.inFlight = payload
	a.mu.Unlock()
	a.bus.Publish(AutosaveBegin{DocumentID: doc, SectionID: section})

	_, err := a.drafts.Save(ctx, doc, section, payload)
	a.mu.Lock()
	a.inFlight = nil
	if err == nil {
		a.lastPersisted = payload
		a.hasPersisted = true
	}
	a.mu.Unlock()

	if err == nil && a.opts.Queue != nil {
		job := NewUpsertJob(a.opts.JobKind, doc, section, payload)
		if _, qerr := a.opts.Queue.Enqueue(ctx, job); qerr != nil {
			err = fmt.Errorf("enqueueing sync job: %w", qerr)
		}
	}

	status := StatusSaved
	if err != nil {
		status = StatusError
	}
	a.setStatus(status)
	a.bus.Publish(AutosaveEnd{DocumentID: doc, SectionID: section, Status: status, Err: err})
	return err
}

func (a *Autosaver) setStatus(s AutosaveStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}
