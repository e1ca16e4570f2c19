package wfs

import "time"

// Topic names an event variant.
type Topic string

const (
	TopicQueueUpdate     Topic = "queue:update"
	TopicQueueProcessing Topic = "queue:processing"
	TopicQueueDone       Topic = "queue:done"
	TopicQueueRetry      Topic = "queue:retry"
	TopicNetOnline       Topic = "net:online"
	TopicNetOffline      Topic = "net:offline"
	TopicReminderCreated Topic = "reminder:created"
	TopicReminderDismiss Topic = "reminder:dismiss"
	TopicAutosaveBegin   Topic = "autosave:begin"
	TopicAutosaveEnd     Topic = "autosave:end"
)

// Event is one of the variants declared in this file. The set is closed:
// listeners switch on the concrete type.
type Event interface {
	Topic() Topic
	event()
}

// UpdateReason says why the queue changed.
type UpdateReason string

const (
	ReasonEnqueue  UpdateReason = "enqueue"
	ReasonDone     UpdateReason = "done"
	ReasonRetry    UpdateReason = "retry"
	ReasonConflict UpdateReason = "conflict"
	ReasonLoad     UpdateReason = "load"
)

// QueueUpdate is published whenever the queue length may have changed.
type QueueUpdate struct {
	Size   int
	Reason UpdateReason
}

// QueueProcessing is published before a job is handed to the processor.
type QueueProcessing struct {
	Job SyncJob
}

// Outcome is how a job left the head of the queue.
type Outcome string

const (
	OutcomeSent            Outcome = "sent"
	OutcomeConflictDropped Outcome = "conflict-dropped"
	OutcomeRequeued        Outcome = "conflict-requeued"
	OutcomeDeadLettered    Outcome = "dead-lettered"
)

// QueueDone is published when a job's processing attempt resolved.
type QueueDone struct {
	JobID   string
	Outcome Outcome
}

// QueueRetry is published when the processor failed and the job was kept.
type QueueRetry struct {
	JobID    string
	Attempts int
	Delay    time.Duration
	Err      error
}

// NetOnline and NetOffline report connectivity transitions.
type NetOnline struct{}
type NetOffline struct{}

// ReminderCreated is published when a reminder is persisted or escalated.
type ReminderCreated struct {
	Reminder Reminder
}

// ReminderDismissed is published when a reminder is deleted.
type ReminderDismissed struct {
	DocumentID string
	SectionID  string
}

// AutosaveBegin is published when a debounced save starts.
type AutosaveBegin struct {
	DocumentID string
	SectionID  string
}

// AutosaveEnd is published when a debounced save finished.
type AutosaveEnd struct {
	DocumentID string
	SectionID  string
	Status     AutosaveStatus
	Err        error
}

func (QueueUpdate) Topic() Topic       { return TopicQueueUpdate }
func (QueueProcessing) Topic() Topic   { return TopicQueueProcessing }
func (QueueDone) Topic() Topic         { return TopicQueueDone }
func (QueueRetry) Topic() Topic        { return TopicQueueRetry }
func (NetOnline) Topic() Topic         { return TopicNetOnline }
func (NetOffline) Topic() Topic        { return TopicNetOffline }
func (ReminderCreated) Topic() Topic   { return TopicReminderCreated }
func (ReminderDismissed) Topic() Topic { return TopicReminderDismiss }
func (AutosaveBegin) Topic() Topic     { return TopicAutosaveBegin }
func (AutosaveEnd) Topic() Topic       { return TopicAutosaveEnd }

func (QueueUpdate) event()       {}
func (QueueProcessing) event()   {}
func (QueueDone) event()         {}
func (QueueRetry) event()        {}
func (NetOnline) event()         {}
func (NetOffline) event()        {}
func (ReminderCreated) event()   {}
func (ReminderDismissed) event() {}
func (AutosaveBegin) event()     {}
func (AutosaveEnd) event()       {}
