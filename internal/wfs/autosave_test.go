package wfs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfs-go/internal/testutil"
	"wfs-go/internal/wfs"
)

type autosaveFixture struct {
	saver  *wfs.Autosaver
	drafts *wfs.DraftStore
	clock  *testutil.StubClock
	events *testutil.EventRecorder
}

func newAutosaver(t *testing.T, store wfs.KV, queue wfs.Enqueuer) *autosaveFixture {
	t.Helper()
	clock := testutil.FixedClock()
	bus := wfs.NewBus(nil)
	drafts := wfs.NewDraftStore(store, clock, nil, wfs.DraftOptions{})
	saver := wfs.NewAutosaver(drafts, bus, clock, nil, wfs.AutosaveOptions{
		DocumentID: "T-1",
		SectionID:  "quotation",
		Queue:      queue,
	})
	require.NoError(t, saver.Start(context.Background()))
	return &autosaveFixture{saver: saver, drafts: drafts, clock: clock, events: testutil.RecordEvents(bus)}
}

func (f *autosaveFixture) history(t *testing.T) []wfs.SnapshotInfo {
	t.Helper()
	h, err := f.drafts.History(context.Background(), "T-1", "quotation")
	require.NoError(t, err)
	return h
}

func TestAutosaver_DebounceCollapsesEdits(t *testing.T) {
	f := newAutosaver(t, testutil.NewTestKV(), nil)

	f.saver.Observe(wfs.Payload{"rate": 1})
	f.clock.Advance(time.Second)
	f.saver.Observe(wfs.Payload{"rate": 2})
	f.clock.Advance(time.Second)
	assert.Empty(t, f.history(t), "each edit restarts the quiet period")

	f.clock.Advance(500 * time.Millisecond)
	require.Len(t, f.history(t), 1)

	got, ok, err := f.drafts.LoadLatestValid(context.Background(), "T-1", "quotation")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, wfs.Equal(wfs.Payload{"rate": 2}, got))
	assert.Equal(t, wfs.StatusSaved, f.saver.Status())
	assert.Equal(t, []wfs.Topic{wfs.TopicAutosaveBegin, wfs.TopicAutosaveEnd}, f.events.Topics())
}

func TestAutosaver_UnchangedValueIsIgnored(t *testing.T) {
	f := newAutosaver(t, testutil.NewTestKV(), nil)

	f.saver.Observe(wfs.Payload{"rate": 1})
	f.clock.Advance(wfs.DefaultDebounce)
	require.Len(t, f.history(t), 1)

	f.saver.Observe(wfs.Payload{"rate": 1})
	f.clock.Advance(wfs.DefaultDebounce)
	assert.Len(t, f.history(t), 1)

	// Editing and then reverting before the timer fires saves nothing.
	f.saver.Observe(wfs.Payload{"rate": 5})
	f.clock.Advance(time.Second)
	f.saver.Observe(wfs.Payload{"rate": 1})
	f.clock.Advance(wfs.DefaultDebounce)
	assert.Len(t, f.history(t), 1)
	assert.Zero(t, f.clock.PendingTimers())
}

func TestAutosaver_StartLoadsLastPersisted(t *testing.T) {
	store := testutil.NewTestKV()
	first := newAutosaver(t, store, nil)
	first.saver.Observe(wfs.Payload{"rate": 1})
	first.clock.Advance(wfs.DefaultDebounce)

	second := newAutosaver(t, store, nil)
	second.saver.Observe(wfs.Payload{"rate": 1})
	second.clock.Advance(wfs.DefaultDebounce)
	assert.Len(t, second.history(t), 1)
}

func TestAutosaver_Visibility(t *testing.T) {
	f := newAutosaver(t, testutil.NewTestKV(), nil)

	f.saver.Observe(wfs.Payload{"rate": 1})
	f.saver.SetVisible(false)
	f.clock.Advance(wfs.DefaultDebounce)
	assert.Empty(t, f.history(t), "hiding cancels the pending save")

	f.saver.Observe(wfs.Payload{"rate": 2})
	f.clock.Advance(wfs.DefaultDebounce)
	assert.Empty(t, f.history(t), "changes while hidden are not detected")

	f.saver.SetVisible(true)
	f.clock.Advance(wfs.DefaultDebounce)
	assert.Empty(t, f.history(t), "resuming does not save hidden changes")

	f.saver.Observe(wfs.Payload{"rate": 3})
	f.clock.Advance(wfs.DefaultDebounce)
	assert.Len(t, f.history(t), 1)
}

func TestAutosaver_EnqueuesUpsert(t *testing.T) {
	store := testutil.NewTestKV()
	clock := testutil.FixedClock()
	queue := wfs.NewSyncQueue(store, nil, nil, clock, testutil.NewStubIDGenerator(), nil, wfs.QueueOptions{})
	require.NoError(t, queue.Open(context.Background()))
	f := newAutosaver(t, store, queue)

	f.saver.Observe(wfs.Payload{"lastUpdated": "2024-01-15T10:30:00Z", "rate": 1})
	f.clock.Advance(wfs.DefaultDebounce)
	f.saver.Observe(wfs.Payload{"lastUpdated": "2024-01-15T10:31:00Z", "rate": 2})
	f.clock.Advance(wfs.DefaultDebounce)

	jobs := queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "UPSERT_STEP:T-1:quotation", jobs[0].ID)
	assert.True(t, wfs.Equal(wfs.Payload{"lastUpdated": "2024-01-15T10:31:00Z", "rate": 2}, jobs[0].Payload))
}

func TestAutosaver_ErrorStatus(t *testing.T) {
	failing := testutil.NewFailingKV(testutil.NewTestKV())
	f := newAutosaver(t, failing, nil)
	failing.FailSets(true)

	f.saver.Observe(wfs.Payload{"rate": 1})
	f.clock.Advance(wfs.DefaultDebounce)

	assert.Equal(t, wfs.StatusError, f.saver.Status())
	events := f.events.Events()
	require.Len(t, events, 2)
	end, ok := events[1].(wfs.AutosaveEnd)
	require.True(t, ok)
	assert.Equal(t, wfs.StatusError, end.Status)
	assert.ErrorIs(t, end.Err, wfs.ErrStorage)

	failing.FailSets(false)
	f.saver.Observe(wfs.Payload{"rate": 1})
	f.clock.Advance(wfs.DefaultDebounce)
	assert.Equal(t, wfs.StatusSaved, f.saver.Status(), "a failed value is retried on the next observation")
}

func TestAutosaver_Flush(t *testing.T) {
	f := newAutosaver(t, testutil.NewTestKV(), nil)
	require.NoError(t, f.saver.Flush(context.Background()), "nothing pending")
	assert.Equal(t, wfs.StatusIdle, f.saver.Status())

	f.saver.Observe(wfs.Payload{"rate": 1})
	require.NoError(t, f.saver.Flush(context.Background()))
	assert.Len(t, f.history(t), 1)

	f.clock.Advance(wfs.DefaultDebounce)
	assert.Len(t, f.history(t), 1, "the flushed value is not saved again")
}

func TestAutosaver_Stop(t *testing.T) {
	f := newAutosaver(t, testutil.NewTestKV(), nil)
	f.saver.Observe(wfs.Payload{"rate": 1})
	f.saver.Stop()
	f.saver.Observe(wfs.Payload{"rate": 2})
	f.clock.Advance(wfs.DefaultDebounce)
	assert.Empty(t, f.history(t))
}

// gatedKV blocks every Set until release is closed, signalling entered first.
type gatedKV struct {
	wfs.KV
	entered chan struct{}
	release chan struct{}
}

func (g *gatedKV) Set(ctx context.Context, key string, value []byte) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.KV.Set(ctx, key, value)
}

type countingEnqueuer struct {
	mu   sync.Mutex
	jobs int
}

func (c *countingEnqueuer) Enqueue(_ context.Context, job wfs.SyncJob) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs++
	return job.ID, nil
}

func TestAutosaver_ValueBeingSavedIsNotSavedAgain(t *testing.T) {
	gate := &gatedKV{KV: testutil.NewTestKV(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	enq := &countingEnqueuer{}
	f := newAutosaver(t, gate, enq)

	f.saver.Observe(wfs.Payload{"rate": 1})
	fired := make(chan struct{})
	go func() {
		f.clock.Advance(wfs.DefaultDebounce)
		close(fired)
	}()
	<-gate.entered

	f.saver.Observe(wfs.Payload{"rate": 1})
	assert.Equal(t, wfs.StatusSaving, f.saver.Status())
	assert.Zero(t, f.clock.PendingTimers(), "the value being saved does not restart the debounce")

	close(gate.release)
	<-fired
	f.clock.Advance(wfs.DefaultDebounce)

	assert.Len(t, f.history(t), 1)
	enq.mu.Lock()
	assert.Equal(t, 1, enq.jobs)
	enq.mu.Unlock()
}
