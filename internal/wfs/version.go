package wfs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// VersionMeta is free-form provenance attached to a version.
type VersionMeta struct {
	Author              string         `json:"author,omitempty"`
	Reason              string         `json:"reason,omitempty"`
	RestoredFromVersion int            `json:"restoredFromVersion,omitempty"`
	Extra               map[string]any `json:"extra,omitempty"`
}

// VersionEntry is one immutable, numbered snapshot of a document kind.
type VersionEntry struct {
	DocumentID string      `json:"documentId"`
	Kind       string      `json:"kind"`
	Version    int         `json:"version"`
	SavedAt    time.Time   `json:"savedAt"`
	Payload    Payload     `json:"payload"`
	Meta       VersionMeta `json:"meta"`
}

// VersionBucket holds the counter and full history of one (document, kind).
type VersionBucket struct {
	Counter int            `json:"counter"`
	Items   []VersionEntry `json:"items"`
}

// FieldChange is the before/after value of one top-level field.
// A nil side means the field is absent there.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// VersionStore keeps a VersionBucket per (document, kind).
type VersionStore struct {
	kv     KV
	clock  Clock
	logger Logger
	mu     sync.Mutex
}

// NewVersionStore creates a VersionStore.
func NewVersionStore(kv KV, clock Clock, logger Logger) *VersionStore {
	return &VersionStore{kv: kv, clock: clock, logger: orNop(logger)}
}

// CreateVersion appends payload as version counter+1. Identical payloads still
// produce a new version.
func (s *VersionStore) CreateVersion(ctx context.Context, doc, kind string, payload Payload, meta VersionMeta) (VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, doc, kind, payload, meta)
}

func (s *VersionStore) createLocked(ctx context.Context, doc, kind string, payload Payload, meta VersionMeta) (VersionEntry, error) {
	bucket, err := s.readBucket(ctx, doc, kind)
	if err != nil {
		return VersionEntry{}, err
	}
	entry := VersionEntry{
		DocumentID: doc,
		Kind:       kind,
		Version:    bucket.Counter + 1,
		SavedAt:    s.clock.Now().UTC(),
		Payload:    payload.Clone(),
		Meta:       meta,
	}
	bucket.Counter = entry.Version
	bucket.Items = append(bucket.Items, entry)
	if err := s.writeBucket(ctx, doc, kind, bucket); err != nil {
		return VersionEntry{}, err
	}
	s.logger.Info("version created", "document", doc, "kind", kind, "version", entry.Version)
	return entry, nil
}

// ListVersions returns every version in creation order, oldest first.
func (s *VersionStore) ListVersions(ctx context.Context, doc, kind string) ([]VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, err := s.readBucket(ctx, doc, kind)
	if err != nil {
		return nil, err
	}
	return bucket.Items, nil
}

// LatestVersion returns the last stored version.
func (s *VersionStore) LatestVersion(ctx context.Context, doc, kind string) (VersionEntry, bool, error) {
	items, err := s.ListVersions(ctx, doc, kind)
	if err != nil || len(items) == 0 {
		return VersionEntry{}, false, err
	}
	return items[len(items)-1], true, nil
}

// GetVersion returns version v or ErrNotFound.
func (s *VersionStore) GetVersion(ctx context.Context, doc, kind string, v int) (VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, doc, kind, v)
}

func (s *VersionStore) getLocked(ctx context.Context, doc, kind string, v int) (VersionEntry, error) {
	bucket, err := s.readBucket(ctx, doc, kind)
	if err != nil {
		return VersionEntry{}, err
	}
	for _, item := range bucket.Items {
		if item.Version == v {
			return item, nil
		}
	}
	return VersionEntry{}, fmt.Errorf("version %d of %s/%s: %w", v, doc, kind, ErrNotFound)
}

// Restore appends a copy of version v as a new version. History is never
// rewritten. meta is recorded with RestoredFromVersion set to v; an empty
// Reason becomes "restore".
func (s *VersionStore) Restore(ctx context.Context, doc, kind string, v int, meta VersionMeta) (VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.getLocked(ctx, doc, kind, v)
	if err != nil {
		return VersionEntry{}, err
	}
	if meta.Reason == "" {
		meta.Reason = "restore"
	}
	meta.RestoredFromVersion = v
	return s.createLocked(ctx, doc, kind, target.Payload, meta)
}

// Diff compares two payloads field by field. Nested values are compared as
// whole values, not recursed into. Unchanged fields are omitted.
func Diff(base, other Payload) map[string]FieldChange {
	keys := make(map[string]struct{}, len(base)+len(other))
	for k := range base {
		keys[k] = struct{}{}
	}
	for k := range other {
		keys[k] = struct{}{}
	}

	changes := make(map[string]FieldChange)
	for k := range keys {
		from, inBase := base[k]
		to, inOther := other[k]
		if inBase && inOther && Equal(from, to) {
			continue
		}
		changes[k] = FieldChange{From: from, To: to}
	}
	return changes
}

// DiffFields returns the changed field names of a diff in sorted order.
func DiffFields(changes map[string]FieldChange) []string {
	fields := make([]string, 0, len(changes))
	for k := range changes {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func versionKey(doc, kind string) string {
	return compositeKey(versionPrefix, doc, kind)
}

func (s *VersionStore) readBucket(ctx context.Context, doc, kind string) (*VersionBucket, error) {
	key := versionKey(doc, kind)
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return &VersionBucket{}, nil
	}
	var bucket VersionBucket
	if err := decodeJSON(data, &bucket); err != nil {
		return nil, &StorageError{Op: "decode", Key: key, Err: err}
	}
	return &bucket, nil
}

func (s *VersionStore) writeBucket(ctx context.Context, doc, kind string, bucket *VersionBucket) error {
	key := versionKey(doc, kind)
	data, err := json.Marshal(bucket)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}
