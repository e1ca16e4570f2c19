package wfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wfs-go/internal/wfs"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := wfs.NewBus(nil)
	var got []string
	bus.Subscribe(func(wfs.Event) { got = append(got, "first") })
	bus.Subscribe(func(wfs.Event) { got = append(got, "second") })

	bus.Publish(wfs.NetOnline{})
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := wfs.NewBus(nil)
	calls := 0
	unsubscribe := bus.Subscribe(func(wfs.Event) { calls++ })
	assert.Equal(t, 1, bus.Len())

	unsubscribe()
	unsubscribe()
	bus.Publish(wfs.NetOffline{})

	assert.Zero(t, calls)
	assert.Zero(t, bus.Len())
}

func TestBus_PanickingListenerIsIsolated(t *testing.T) {
	bus := wfs.NewBus(nil)
	var got []wfs.Topic
	bus.Subscribe(func(wfs.Event) { panic("boom") })
	bus.Subscribe(func(e wfs.Event) { got = append(got, e.Topic()) })

	assert.NotPanics(t, func() { bus.Publish(wfs.QueueUpdate{Size: 1, Reason: wfs.ReasonEnqueue}) })
	assert.Equal(t, []wfs.Topic{wfs.TopicQueueUpdate}, got)
}

func TestBus_ListenerMaySubscribeDuringPublish(t *testing.T) {
	bus := wfs.NewBus(nil)
	late := 0
	bus.Subscribe(func(wfs.Event) {
		bus.Subscribe(func(wfs.Event) { late++ })
	})

	bus.Publish(wfs.NetOnline{})
	assert.Zero(t, late, "listeners added during a publish miss that event")

	bus.Publish(wfs.NetOnline{})
	assert.Equal(t, 1, late)
}

func TestEvent_Topics(t *testing.T) {
	tests := []struct {
		event wfs.Event
		want  wfs.Topic
	}{
		{wfs.QueueUpdate{}, "queue:update"},
		{wfs.QueueProcessing{}, "queue:processing"},
		{wfs.QueueDone{}, "queue:done"},
		{wfs.QueueRetry{}, "queue:retry"},
		{wfs.NetOnline{}, "net:online"},
		{wfs.NetOffline{}, "net:offline"},
		{wfs.ReminderCreated{}, "reminder:created"},
		{wfs.ReminderDismissed{}, "reminder:dismiss"},
		{wfs.AutosaveBegin{}, "autosave:begin"},
		{wfs.AutosaveEnd{}, "autosave:end"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.event.Topic())
	}
}
