package wfs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfs-go/internal/testutil"
	"wfs-go/internal/wfs"
)

const day = 24 * time.Hour

type reminderFixture struct {
	sched  *wfs.ReminderScheduler
	clock  *testutil.StubClock
	events *testutil.EventRecorder
}

func newReminders(t *testing.T, store wfs.KV, clock *testutil.StubClock) *reminderFixture {
	t.Helper()
	bus := wfs.NewBus(nil)
	sched := wfs.NewReminderScheduler(store, bus, clock, testutil.NewStubIDGenerator(), nil, wfs.ReminderOptions{})
	require.NoError(t, sched.Open(context.Background()))
	t.Cleanup(sched.Stop)
	return &reminderFixture{sched: sched, clock: clock, events: testutil.RecordEvents(bus)}
}

func (f *reminderFixture) list(t *testing.T) []wfs.Reminder {
	t.Helper()
	rs, err := f.sched.List(context.Background())
	require.NoError(t, err)
	return rs
}

func TestReminderScheduler_DueAndEscalation(t *testing.T) {
	ctx := context.Background()
	f := newReminders(t, testutil.NewTestKV(), testutil.FixedClock())
	start := f.clock.Now()

	require.NoError(t, f.sched.Track(ctx, wfs.SectionActivity{DocumentID: "T-1", SectionID: "quotation", LastUpdated: start}))

	f.clock.Advance(3*day - time.Minute)
	assert.Empty(t, f.list(t))

	f.clock.Advance(time.Minute)
	rs := f.list(t)
	require.Len(t, rs, 1)
	assert.Equal(t, "T-1", rs[0].DocumentID)
	assert.Equal(t, start.Add(3*day), rs[0].DueAt)
	assert.False(t, rs[0].Escalate)

	f.clock.Advance(3 * day)
	rs = f.list(t)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].Escalate)
	assert.Equal(t, "id-1", rs[0].ID, "escalation updates the same reminder")

	var created []wfs.ReminderCreated
	for _, e := range f.events.Events() {
		if c, ok := e.(wfs.ReminderCreated); ok {
			created = append(created, c)
		}
	}
	require.Len(t, created, 2)
	assert.False(t, created[0].Reminder.Escalate)
	assert.True(t, created[1].Reminder.Escalate)
	assert.Zero(t, f.clock.PendingTimers())
}

func TestReminderScheduler_CompletionDismisses(t *testing.T) {
	ctx := context.Background()
	f := newReminders(t, testutil.NewTestKV(), testutil.FixedClock())
	act := wfs.SectionActivity{DocumentID: "T-1", SectionID: "quotation", LastUpdated: f.clock.Now()}
	require.NoError(t, f.sched.Track(ctx, act))
	f.clock.Advance(3 * day)
	require.Len(t, f.list(t), 1)

	act.Completed = true
	require.NoError(t, f.sched.Track(ctx, act))
	assert.Empty(t, f.list(t))
	assert.Equal(t, 1, f.events.Count(wfs.TopicReminderDismiss))

	f.clock.Advance(10 * day)
	assert.Empty(t, f.list(t), "no escalation after dismissal")
}

func TestReminderScheduler_CompletionBeforeDue(t *testing.T) {
	ctx := context.Background()
	f := newReminders(t, testutil.NewTestKV(), testutil.FixedClock())
	act := wfs.SectionActivity{DocumentID: "T-1", SectionID: "quotation", LastUpdated: f.clock.Now()}
	require.NoError(t, f.sched.Track(ctx, act))

	act.Completed = true
	require.NoError(t, f.sched.Track(ctx, act))
	f.clock.Advance(10 * day)

	assert.Empty(t, f.list(t))
	assert.Zero(t, f.events.Count(wfs.TopicReminderDismiss), "nothing existed to dismiss")
	assert.Zero(t, f.events.Count(wfs.TopicReminderCreated))
}

func TestReminderScheduler_NewerActivityResets(t *testing.T) {
	ctx := context.Background()
	f := newReminders(t, testutil.NewTestKV(), testutil.FixedClock())
	act := wfs.SectionActivity{DocumentID: "T-1", SectionID: "quotation", LastUpdated: f.clock.Now()}
	require.NoError(t, f.sched.Track(ctx, act))
	f.clock.Advance(3 * day)
	require.Len(t, f.list(t), 1)

	act.LastUpdated = f.clock.Now()
	require.NoError(t, f.sched.Track(ctx, act))
	assert.Empty(t, f.list(t), "the stale reminder is dismissed")
	assert.Equal(t, 1, f.events.Count(wfs.TopicReminderDismiss))

	f.clock.Advance(3 * day)
	rs := f.list(t)
	require.Len(t, rs, 1)
	assert.Equal(t, act.LastUpdated, rs[0].LastActivity)
	assert.False(t, rs[0].Escalate)
}

func TestReminderScheduler_RepeatedTrackIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newReminders(t, testutil.NewTestKV(), testutil.FixedClock())
	act := wfs.SectionActivity{DocumentID: "T-1", SectionID: "quotation", LastUpdated: f.clock.Now()}
	for i := 0; i < 3; i++ {
		require.NoError(t, f.sched.Track(ctx, act))
	}
	assert.Equal(t, 1, f.clock.PendingTimers())

	f.clock.Advance(3 * day)
	assert.Equal(t, 1, f.events.Count(wfs.TopicReminderCreated))
}

func TestReminderScheduler_OverdueActivity(t *testing.T) {
	tests := []struct {
		name         string
		age          time.Duration
		wantEscalate bool
	}{
		{name: "due", age: 4 * day, wantEscalate: false},
		{name: "past escalation", age: 7 * day, wantEscalate: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReminders(t, testutil.NewTestKV(), testutil.FixedClock())
			act := wfs.SectionActivity{DocumentID: "T-1", SectionID: "s", LastUpdated: f.clock.Now().Add(-tt.age)}
			require.NoError(t, f.sched.Track(context.Background(), act))

			f.clock.Advance(0)
			rs := f.list(t)
			require.Len(t, rs, 1)
			assert.Equal(t, tt.wantEscalate, rs[0].Escalate)
		})
	}
}

func TestReminderScheduler_OpenRearmsEscalation(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestKV()
	clock := testutil.FixedClock()

	first := newReminders(t, store, clock)
	require.NoError(t, first.sched.Track(ctx, wfs.SectionActivity{DocumentID: "T-1", SectionID: "s", LastUpdated: clock.Now()}))
	clock.Advance(3 * day)
	first.sched.Stop()
	require.Zero(t, clock.PendingTimers())

	second := newReminders(t, store, clock)
	require.Len(t, second.list(t), 1)
	clock.Advance(3 * day)

	rs := second.list(t)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].Escalate)
	assert.Equal(t, 1, second.events.Count(wfs.TopicReminderCreated))
}

func TestReminderScheduler_ListOrdersByDue(t *testing.T) {
	ctx := context.Background()
	f := newReminders(t, testutil.NewTestKV(), testutil.FixedClock())
	now := f.clock.Now()
	require.NoError(t, f.sched.Track(ctx, wfs.SectionActivity{DocumentID: "T-1", SectionID: "late", LastUpdated: now.Add(-3 * day)}))
	require.NoError(t, f.sched.Track(ctx, wfs.SectionActivity{DocumentID: "T-2", SectionID: "early", LastUpdated: now.Add(-5 * day)}))
	f.clock.Advance(0)

	rs := f.list(t)
	require.Len(t, rs, 2)
	assert.Equal(t, "early", rs[0].SectionID)
	assert.Equal(t, "late", rs[1].SectionID)
}

func TestReminderScheduler_DismissUnknownIsNoop(t *testing.T) {
	f := newReminders(t, testutil.NewTestKV(), testutil.FixedClock())
	require.NoError(t, f.sched.Dismiss(context.Background(), "nope", "nope"))
	assert.Empty(t, f.events.Events())
}

func TestReminderScheduler_OpenRearmsDueTimer(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestKV()
	clock := testutil.FixedClock()

	first := newReminders(t, store, clock)
	require.NoError(t, first.sched.Track(ctx, wfs.SectionActivity{DocumentID: "T-1", SectionID: "s", LastUpdated: clock.Now()}))
	first.sched.Stop()
	clock.Advance(day)

	second := newReminders(t, store, clock)
	assert.Empty(t, second.list(t))
	clock.Advance(2 * day)

	rs := second.list(t)
	require.Len(t, rs, 1)
	assert.Equal(t, "s", rs[0].SectionID)
	assert.False(t, rs[0].Escalate)
}

func TestReminderScheduler_DismissForgetsActivity(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestKV()
	clock := testutil.FixedClock()

	first := newReminders(t, store, clock)
	require.NoError(t, first.sched.Track(ctx, wfs.SectionActivity{DocumentID: "T-1", SectionID: "s", LastUpdated: clock.Now()}))
	require.NoError(t, first.sched.Track(ctx, wfs.SectionActivity{DocumentID: "T-1", SectionID: "s", Completed: true}))
	first.sched.Stop()

	second := newReminders(t, store, clock)
	assert.Zero(t, clock.PendingTimers())
	clock.Advance(7 * day)
	assert.Empty(t, second.list(t))
}
