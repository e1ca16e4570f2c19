package wfs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Default reminder thresholds.
const (
	DefaultInactivity = 72 * time.Hour
	DefaultEscalation = 72 * time.Hour
)

// Reminder is a persisted nudge for a section left untouched too long.
type Reminder struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"documentId"`
	SectionID    string    `json:"sectionId"`
	LastActivity time.Time `json:"lastActivity"`
	DueAt        time.Time `json:"dueAt"`
	CreatedAt    time.Time `json:"createdAt"`
	// Escalate marks a reminder that is overdue, not merely due.
	Escalate bool `json:"escalate"`
}

// SectionActivity is what the host knows about a section's progress.
type SectionActivity struct {
	DocumentID  string
	SectionID   string
	LastUpdated time.Time
	Completed   bool
}

// ReminderOptions configures a ReminderScheduler.
type ReminderOptions struct {
	Inactivity time.Duration
	Escalation time.Duration
}

type trackedSection struct {
	basis    time.Time
	gen      uint64
	due      Timer
	escalate Timer
}

func (t *trackedSection) stop() {
	if t.due != nil {
		t.due.Stop()
	}
	if t.escalate != nil {
		t.escalate.Stop()
	}
}

// ReminderScheduler keeps one inactivity timer per tracked section.
type ReminderScheduler struct {
	kv     KV
	bus    Publisher
	clock  Clock
	ids    IDGenerator
	logger Logger
	opts   ReminderOptions

	mu       sync.Mutex
	ctx      context.Context
	gen      uint64
	sections map[string]*trackedSection
}

// NewReminderScheduler creates a scheduler. Call Open before Track.
func NewReminderScheduler(kv KV, bus Publisher, clock Clock, ids IDGenerator, logger Logger, opts ReminderOptions) *ReminderScheduler {
	if opts.Inactivity <= 0 {
		opts.Inactivity = DefaultInactivity
	}
	if opts.Escalation <= 0 {
		opts.Escalation = DefaultEscalation
	}
	return &ReminderScheduler{
		kv:       kv,
		bus:      orNopPublisher(bus),
		clock:    clock,
		ids:      ids,
		logger:   orNop(logger),
		opts:     opts,
		ctx:      context.Background(),
		sections: make(map[string]*trackedSection),
	}
}

// Open re-arms timers after a restart: due timers for tracked sections that
// have no reminder yet and escalation timers for reminders not yet escalated.
// ctx is used by timer callbacks.
func (s *ReminderScheduler) Open(ctx context.Context) error {
	reminders, err := s.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx

	tracked, err := s.readTrackedLocked(ctx)
	if err != nil {
		return err
	}
	reminded := make(map[string]bool, len(reminders))
	for _, r := range reminders {
		reminded[reminderKey(r.DocumentID, r.SectionID)] = true
		if r.Escalate {
			continue
		}
		t := s.newTrackedLocked(r.DocumentID, r.SectionID, r.LastActivity)
		s.armEscalationLocked(r.DocumentID, r.SectionID, t, r.DueAt)
	}
	for _, pair := range tracked.pairs() {
		doc, section := pair[0], pair[1]
		if reminded[reminderKey(doc, section)] {
			continue
		}
		t := s.newTrackedLocked(doc, section, tracked.Sections[doc][section])
		s.armDueLocked(doc, section, t)
	}
	return nil
}

// Track reconciles one section. A completed section loses its reminder. An
// incomplete one gets a timer due Inactivity after LastUpdated; a reminder
// created for older activity is dismissed first.
func (s *ReminderScheduler) Track(ctx context.Context, act SectionActivity) error {
	if act.Completed {
		return s.Dismiss(ctx, act.DocumentID, act.SectionID)
	}

	s.mu.Lock()
	key := reminderKey(act.DocumentID, act.SectionID)
	if t, ok := s.sections[key]; ok && t.basis.Equal(act.LastUpdated) {
		s.mu.Unlock()
		return nil
	}

	existing, ok, err := s.getLocked(ctx, act.DocumentID, act.SectionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	dismissed := false
	if ok && existing.LastActivity.Before(act.LastUpdated) {
		if err := s.removeLocked(ctx, act.DocumentID, act.SectionID); err != nil {
			s.mu.Unlock()
			return err
		}
		ok, dismissed = false, true
	}
	if err := s.recordActivityLocked(ctx, act); err != nil {
		s.mu.Unlock()
		return err
	}

	t := s.newTrackedLocked(act.DocumentID, act.SectionID, act.LastUpdated)
	if ok {
		// Already reminded for this activity; only escalation is left.
		if !existing.Escalate {
			s.armEscalationLocked(act.DocumentID, act.SectionID, t, existing.DueAt)
		}
	} else {
		s.armDueLocked(act.DocumentID, act.SectionID, t)
	}
	s.mu.Unlock()

	if dismissed {
		s.bus.Publish(ReminderDismissed{DocumentID: act.DocumentID, SectionID: act.SectionID})
	}
	return nil
}

// Dismiss cancels timers and deletes the section's reminder, publishing
// reminder:dismiss when one existed.
func (s *ReminderScheduler) Dismiss(ctx context.Context, doc, section string) error {
	s.mu.Lock()
	key := reminderKey(doc, section)
	if t, ok := s.sections[key]; ok {
		t.stop()
		delete(s.sections, key)
	}
	_, existed, err := s.getLocked(ctx, doc, section)
	if err == nil && existed {
		err = s.removeLocked(ctx, doc, section)
	}
	if err == nil {
		err = s.updateTrackedLocked(ctx, func(ta *trackedActivity) bool {
			return ta.remove(doc, section)
		})
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if existed {
		s.logger.Info("reminder dismissed", "document", doc, "section", section)
		s.bus.Publish(ReminderDismissed{DocumentID: doc, SectionID: section})
	}
	return nil
}

// List returns every persisted reminder ordered by due time.
func (s *ReminderScheduler) List(ctx context.Context) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, err := readSectionIndex(ctx, s.kv, reminderIndexKey)
	if err != nil {
		return nil, err
	}
	var out []Reminder
	for _, pair := range ix.pairs() {
		r, ok, err := s.getLocked(ctx, pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

// Stop cancels every timer. Persisted reminders are kept.
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.sections {
		t.stop()
		delete(s.sections, key)
	}
}

func (s *ReminderScheduler) newTrackedLocked(doc, section string, basis time.Time) *trackedSection {
	key := reminderKey(doc, section)
	if old, ok := s.sections[key]; ok {
		old.stop()
	}
	s.gen++
	t := &trackedSection{basis: basis, gen: s.gen}
	s.sections[key] = t
	return t
}

func (s *ReminderScheduler) armDueLocked(doc, section string, t *trackedSection) {
	delay := max(t.basis.Add(s.opts.Inactivity).Sub(s.clock.Now()), 0)
	gen := t.gen
	t.due = s.clock.AfterFunc(delay, func() { s.fireDue(doc, section, gen) })
}

func (s *ReminderScheduler) armEscalationLocked(doc, section string, t *trackedSection, dueAt time.Time) {
	delay := max(dueAt.Add(s.opts.Escalation).Sub(s.clock.Now()), 0)
	gen := t.gen
	t.escalate = s.clock.AfterFunc(delay, func() { s.fireEscalation(doc, section, gen) })
}

// currentLocked returns the tracked section if gen still identifies it.
func (s *ReminderScheduler) currentLocked(doc, section string, gen uint64) (*trackedSection, bool) {
	t, ok := s.sections[reminderKey(doc, section)]
	if !ok || t.gen != gen {
		return nil, false
	}
	return t, true
}

func (s *ReminderScheduler) fireDue(doc, section string, gen uint64) {
	s.mu.Lock()
	t, ok := s.currentLocked(doc, section, gen)
	if !ok {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now().UTC()
	due := t.basis.Add(s.opts.Inactivity)
	r := Reminder{
		ID:           s.ids.New(),
		DocumentID:   doc,
		SectionID:    section,
		LastActivity: t.basis,
		DueAt:        due,
		CreatedAt:    now,
		Escalate:     now.Sub(due) > s.opts.Escalation,
	}
	err := s.putLocked(s.ctx, r)
	if err == nil && !r.Escalate {
		s.armEscalationLocked(doc, section, t, due)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("persisting reminder", "document", doc, "section", section, "error", err)
		return
	}
	s.logger.Info("reminder created", "document", doc, "section", section, "escalate", r.Escalate)
	s.bus.Publish(ReminderCreated{Reminder: r})
}

func (s *ReminderScheduler) fireEscalation(doc, section string, gen uint64) {
	s.mu.Lock()
	if _, ok := s.currentLocked(doc, section, gen); !ok {
		s.mu.Unlock()
		return
	}
	r, ok, err := s.getLocked(s.ctx, doc, section)
	if err == nil && ok {
		r.Escalate = true
		err = s.putLocked(s.ctx, r)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("escalating reminder", "document", doc, "section", section, "error", err)
		return
	}
	if ok {
		s.logger.Info("reminder escalated", "document", doc, "section", section)
		s.bus.Publish(ReminderCreated{Reminder: r})
	}
}

func reminderKey(doc, section string) string {
	return compositeKey(reminderPrefix, doc, section)
}

func (s *ReminderScheduler) getLocked(ctx context.Context, doc, section string) (Reminder, bool, error) {
	key := reminderKey(doc, section)
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return Reminder{}, false, &StorageError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return Reminder{}, false, nil
	}
	var r Reminder
	if err := json.Unmarshal(data, &r); err != nil {
		return Reminder{}, false, &StorageError{Op: "decode", Key: key, Err: err}
	}
	return r, true, nil
}

func (s *ReminderScheduler) putLocked(ctx context.Context, r Reminder) error {
	key := reminderKey(r.DocumentID, r.SectionID)
	data, err := json.Marshal(r)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	// Indexed without a record reads as absent; the reverse would be unlisted.
	err = updateSectionIndex(ctx, s.kv, reminderIndexKey, func(ix *sectionIndex) bool {
		return ix.add(r.DocumentID, r.SectionID)
	})
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *ReminderScheduler) removeLocked(ctx context.Context, doc, section string) error {
	key := reminderKey(doc, section)
	if err := s.kv.Remove(ctx, key); err != nil {
		return &StorageError{Op: "remove", Key: key, Err: err}
	}
	return updateSectionIndex(ctx, s.kv, reminderIndexKey, func(ix *sectionIndex) bool {
		return ix.remove(doc, section)
	})
}

// trackedActivity is the last reported activity of every incomplete section.
type trackedActivity struct {
	Sections map[string]map[string]time.Time `json:"sections"`
}

func (ta *trackedActivity) set(doc, section string, at time.Time) bool {
	if cur, ok := ta.Sections[doc][section]; ok && cur.Equal(at) {
		return false
	}
	if ta.Sections[doc] == nil {
		ta.Sections[doc] = map[string]time.Time{}
	}
	ta.Sections[doc][section] = at
	return true
}

func (ta *trackedActivity) remove(doc, section string) bool {
	if _, ok := ta.Sections[doc][section]; !ok {
		return false
	}
	delete(ta.Sections[doc], section)
	if len(ta.Sections[doc]) == 0 {
		delete(ta.Sections, doc)
	}
	return true
}

func (ta *trackedActivity) pairs() [][2]string {
	ix := &sectionIndex{Documents: map[string][]string{}}
	for doc, sections := range ta.Sections {
		for section := range sections {
			ix.add(doc, section)
		}
	}
	return ix.pairs()
}

func (s *ReminderScheduler) readTrackedLocked(ctx context.Context) (*trackedActivity, error) {
	ta := &trackedActivity{Sections: map[string]map[string]time.Time{}}
	data, ok, err := s.kv.Get(ctx, reminderTrackedKey)
	if err != nil {
		return nil, &StorageError{Op: "get", Key: reminderTrackedKey, Err: err}
	}
	if !ok {
		return ta, nil
	}
	if err := json.Unmarshal(data, ta); err != nil {
		return nil, &StorageError{Op: "decode", Key: reminderTrackedKey, Err: err}
	}
	if ta.Sections == nil {
		ta.Sections = map[string]map[string]time.Time{}
	}
	return ta, nil
}

func (s *ReminderScheduler) updateTrackedLocked(ctx context.Context, fn func(*trackedActivity) bool) error {
	ta, err := s.readTrackedLocked(ctx)
	if err != nil {
		return err
	}
	if !fn(ta) {
		return nil
	}
	data, err := json.Marshal(ta)
	if err != nil {
		return &StorageError{Op: "encode", Key: reminderTrackedKey, Err: err}
	}
	if err := s.kv.Set(ctx, reminderTrackedKey, data); err != nil {
		return &StorageError{Op: "set", Key: reminderTrackedKey, Err: err}
	}
	return nil
}

func (s *ReminderScheduler) recordActivityLocked(ctx context.Context, act SectionActivity) error {
	return s.updateTrackedLocked(ctx, func(ta *trackedActivity) bool {
		return ta.set(act.DocumentID, act.SectionID, act.LastUpdated)
	})
}
