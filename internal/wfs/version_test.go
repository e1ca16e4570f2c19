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

func newVersionStore(t *testing.T) (*wfs.VersionStore, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	return wfs.NewVersionStore(testutil.NewTestKV(), clock, nil), clock
}

func TestVersionStore_RestoreScenario(t *testing.T) {
	ctx := context.Background()
	versions, _ := newVersionStore(t)

	v1, err := versions.CreateVersion(ctx, "T-1", "quotation", wfs.Payload{"rate": 100}, wfs.VersionMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := versions.CreateVersion(ctx, "T-1", "quotation", wfs.Payload{"rate": 150}, wfs.VersionMeta{})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	v3, err := versions.Restore(ctx, "T-1", "quotation", 1, wfs.VersionMeta{})
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)
	assert.True(t, wfs.Equal(100, v3.Payload["rate"]))
	assert.Equal(t, 1, v3.Meta.RestoredFromVersion)
	assert.Equal(t, "restore", v3.Meta.Reason)
}

func TestVersionStore_Monotonicity(t *testing.T) {
	ctx := context.Background()
	versions, clock := newVersionStore(t)

	var got []int
	for i := 0; i < 5; i++ {
		e, err := versions.CreateVersion(ctx, "T-1", "quotation", wfs.Payload{"i": i}, wfs.VersionMeta{Author: "ana"})
		require.NoError(t, err)
		got = append(got, e.Version)
		clock.Advance(time.Minute)

		if i%2 == 1 {
			r, err := versions.Restore(ctx, "T-1", "quotation", 1, wfs.VersionMeta{})
			require.NoError(t, err)
			got = append(got, r.Version)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, got)

	list, err := versions.ListVersions(ctx, "T-1", "quotation")
	require.NoError(t, err)
	for i, e := range list {
		assert.Equal(t, i+1, e.Version)
	}
}

func TestVersionStore_IdenticalPayloadsStillVersion(t *testing.T) {
	ctx := context.Background()
	versions, _ := newVersionStore(t)
	for i := 0; i < 2; i++ {
		_, err := versions.CreateVersion(ctx, "T-1", "quotation", wfs.Payload{"rate": 1}, wfs.VersionMeta{})
		require.NoError(t, err)
	}
	list, err := versions.ListVersions(ctx, "T-1", "quotation")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestVersionStore_RestoreIsAdditive(t *testing.T) {
	ctx := context.Background()
	versions, _ := newVersionStore(t)
	for _, rate := range []int{100, 150, 175} {
		_, err := versions.CreateVersion(ctx, "T-1", "quotation", wfs.Payload{"rate": rate}, wfs.VersionMeta{Reason: "edit"})
		require.NoError(t, err)
	}
	before, err := versions.ListVersions(ctx, "T-1", "quotation")
	require.NoError(t, err)

	restored, err := versions.Restore(ctx, "T-1", "quotation", 2, wfs.VersionMeta{})
	require.NoError(t, err)

	after, err := versions.ListVersions(ctx, "T-1", "quotation")
	require.NoError(t, err)
	require.Len(t, after, len(before)+1)
	assert.Equal(t, before, after[:len(before)], "existing entries are untouched")
	assert.True(t, wfs.Equal(before[1].Payload, restored.Payload))
	assert.Equal(t, restored, after[len(after)-1])

	latest, ok, err := versions.LatestVersion(ctx, "T-1", "quotation")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, latest.Version)
}

func TestVersionStore_RestoreKeepsCallerMeta(t *testing.T) {
	ctx := context.Background()
	versions, _ := newVersionStore(t)
	_, err := versions.CreateVersion(ctx, "T-1", "quotation", wfs.Payload{"rate": 100}, wfs.VersionMeta{})
	require.NoError(t, err)

	restored, err := versions.Restore(ctx, "T-1", "quotation", 1, wfs.VersionMeta{
		Author:              "sam",
		RestoredFromVersion: 9,
	})
	require.NoError(t, err)
	assert.Equal(t, wfs.VersionMeta{Author: "sam", Reason: "restore", RestoredFromVersion: 1}, restored.Meta)

	restored, err = versions.Restore(ctx, "T-1", "quotation", 1, wfs.VersionMeta{Reason: "rollback"})
	require.NoError(t, err)
	assert.Equal(t, "rollback", restored.Meta.Reason)
}

func TestVersionStore_NotFound(t *testing.T) {
	ctx := context.Background()
	versions, _ := newVersionStore(t)

	_, err := versions.Restore(ctx, "T-1", "quotation", 1, wfs.VersionMeta{})
	assert.ErrorIs(t, err, wfs.ErrNotFound)

	_, err = versions.CreateVersion(ctx, "T-1", "quotation", wfs.Payload{}, wfs.VersionMeta{})
	require.NoError(t, err)
	_, err = versions.GetVersion(ctx, "T-1", "quotation", 7)
	assert.ErrorIs(t, err, wfs.ErrNotFound)

	_, ok, err := versions.LatestVersion(ctx, "T-1", "other-kind")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVersionStore_KindsAreIndependent(t *testing.T) {
	ctx := context.Background()
	versions, _ := newVersionStore(t)

	a, err := versions.CreateVersion(ctx, "T-1", "quotation", wfs.Payload{}, wfs.VersionMeta{})
	require.NoError(t, err)
	b, err := versions.CreateVersion(ctx, "T-1", "invoice", wfs.Payload{}, wfs.VersionMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Version)
	assert.Equal(t, 1, b.Version)
}

func TestDiff(t *testing.T) {
	base := wfs.Payload{"rate": 100, "currency": "EUR", "items": []any{"a"}, "gone": true}
	other := wfs.Payload{"rate": 120, "currency": "EUR", "items": []any{"a", "b"}, "added": "x"}

	changes := wfs.Diff(base, other)
	assert.Equal(t, []string{"added", "gone", "items", "rate"}, wfs.DiffFields(changes))

	assert.Nil(t, changes["added"].From)
	assert.Equal(t, "x", changes["added"].To)
	assert.Equal(t, true, changes["gone"].From)
	assert.Nil(t, changes["gone"].To)
	assert.Equal(t, 100, changes["rate"].From)
	assert.Equal(t, 120, changes["rate"].To)

	assert.Empty(t, wfs.Diff(base, base))
}

func TestDiff_NestedValuesAreCompared(t *testing.T) {
	base := mustPayload(t, `{"customer":{"name":"Ana","vat":"PT1"}}`)
	other := wfs.Payload{"customer": map[string]any{"vat": "PT1", "name": "Ana"}}
	assert.Empty(t, wfs.Diff(base, other), "nested maps compare by canonical value")

	other = wfs.Payload{"customer": map[string]any{"vat": "PT2", "name": "Ana"}}
	assert.Equal(t, []string{"customer"}, wfs.DiffFields(wfs.Diff(base, other)))
}
