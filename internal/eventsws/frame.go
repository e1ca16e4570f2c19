// Package eventsws streams bus events to websocket clients as JSON frames.
package eventsws

import "wfs-go/internal/wfs"

// Frame is the JSON message sent for every event.
type Frame struct {
	Topic wfs.Topic `json:"topic"`
	Data  any       `json:"data,omitempty"`
}

type queueUpdateData struct {
	Size   int    `json:"size"`
	Reason string `json:"reason"`
}

type jobData struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	DocumentID string `json:"documentId"`
	SectionID  string `json:"sectionId,omitempty"`
	Attempts   int    `json:"attempts"`
}

type queueDoneData struct {
	JobID   string `json:"jobId"`
	Outcome string `json:"outcome"`
}

type queueRetryData struct {
	JobID    string `json:"jobId"`
	Attempts int    `json:"attempts"`
	DelayMS  int64  `json:"delayMs"`
	Error    string `json:"error,omitempty"`
}

type sectionData struct {
	DocumentID string `json:"documentId"`
	SectionID  string `json:"sectionId"`
}

type autosaveEndData struct {
	DocumentID string `json:"documentId"`
	SectionID  string `json:"sectionId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// NewFrame converts an event to its wire form. Payloads are not included;
// clients that need them read the stores.
func NewFrame(e wfs.Event) Frame {
	f := Frame{Topic: e.Topic()}
	switch ev := e.(type) {
	case wfs.QueueUpdate:
		f.Data = queueUpdateData{Size: ev.Size, Reason: string(ev.Reason)}
	case wfs.QueueProcessing:
		f.Data = jobData{
			ID:         ev.Job.ID,
			Kind:       ev.Job.Kind,
			DocumentID: ev.Job.DocumentID,
			SectionID:  ev.Job.SectionID,
			Attempts:   ev.Job.Attempts,
		}
	case wfs.QueueDone:
		f.Data = queueDoneData{JobID: ev.JobID, Outcome: string(ev.Outcome)}
	case wfs.QueueRetry:
		f.Data = queueRetryData{
			JobID:    ev.JobID,
			Attempts: ev.Attempts,
			DelayMS:  ev.Delay.Milliseconds(),
			Error:    errString(ev.Err),
		}
	case wfs.ReminderCreated:
		f.Data = ev.Reminder
	case wfs.ReminderDismissed:
		f.Data = sectionData{DocumentID: ev.DocumentID, SectionID: ev.SectionID}
	case wfs.AutosaveBegin:
		f.Data = sectionData{DocumentID: ev.DocumentID, SectionID: ev.SectionID}
	case wfs.AutosaveEnd:
		f.Data = autosaveEndData{
			DocumentID: ev.DocumentID,
			SectionID:  ev.SectionID,
			Status:     string(ev.Status),
			Error:      errString(ev.Err),
		}
	}
	return f
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
