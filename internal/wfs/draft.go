package wfs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultRetention is how long snapshots are kept before PurgeExpired drops them.
const DefaultRetention = 30 * 24 * time.Hour

// Snapshot is one immutable, integrity-checked copy of a section's payload.
type Snapshot struct {
	DocumentID string    `json:"documentId"`
	SectionID  string    `json:"sectionId"`
	Payload    Payload   `json:"payload"`
	SavedAt    time.Time `json:"savedAt"`
	Digest     string    `json:"integrityDigest"`
}

// Valid reports whether the payload still hashes to the recorded digest.
func (s Snapshot) Valid() bool {
	d, err := Digest(s.Payload)
	return err == nil && d == s.Digest
}

// timestamp is the snapshot's recency for merge decisions: the payload's
// lastUpdated when present, otherwise SavedAt.
func (s Snapshot) timestamp() time.Time {
	if ts, ok := s.Payload.Timestamp(); ok {
		return ts
	}
	return s.SavedAt
}

// SnapshotInfo describes a stored snapshot for inspection.
type SnapshotInfo struct {
	Index   int
	SavedAt time.Time
	Digest  string
	Valid   bool
}

// DraftLog is the append-only snapshot history of one (document, section).
type DraftLog struct {
	Snapshots []Snapshot `json:"snapshots"`
}

// DraftOptions configures a DraftStore.
type DraftOptions struct {
	// Retention defaults to DefaultRetention.
	Retention time.Duration
}

// DraftStore keeps a DraftLog per (document, section) in the KV substrate.
// All methods are safe for concurrent use; writes are serialised.
type DraftStore struct {
	kv        KV
	clock     Clock
	logger    Logger
	retention time.Duration
	mu        sync.Mutex
}

// NewDraftStore creates a DraftStore. Call Open once before use.
func NewDraftStore(kv KV, clock Clock, logger Logger, opts DraftOptions) *DraftStore {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &DraftStore{
		kv:        kv,
		clock:     clock,
		logger:    orNop(logger),
		retention: opts.Retention,
	}
}

// Open prunes expired snapshots. It is the store's only start-up side effect.
func (s *DraftStore) Open(ctx context.Context) error {
	if _, err := s.PurgeExpired(ctx); err != nil {
		return fmt.Errorf("opening draft store: %w", err)
	}
	return nil
}

// Save appends a new snapshot and persists the whole log in one write.
func (s *DraftStore) Save(ctx context.Context, doc, section string, payload Payload) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, doc, section, payload)
}

func (s *DraftStore) saveLocked(ctx context.Context, doc, section string, payload Payload) (Snapshot, error) {
	digest, err := Digest(payload)
	if err != nil {
		return Snapshot{}, &StorageError{Op: "encode", Key: draftKey(doc, section), Err: err}
	}
	// Store a private copy so later caller mutations cannot invalidate it.
	snap := Snapshot{
		DocumentID: doc,
		SectionID:  section,
		Payload:    payload.Clone(),
		SavedAt:    s.clock.Now().UTC(),
		Digest:     digest,
	}

	log, err := s.readLog(ctx, doc, section)
	if err != nil {
		return Snapshot{}, err
	}
	// Index first: an indexed section without a log is purged as empty, while
	// a log missing from the index would escape Clear and PurgeExpired.
	if err := s.updateIndex(ctx, func(ix *sectionIndex) bool { return ix.add(doc, section) }); err != nil {
		return Snapshot{}, err
	}
	log.Snapshots = append(log.Snapshots, snap)
	if err := s.writeLog(ctx, doc, section, log); err != nil {
		return Snapshot{}, err
	}

	s.logger.Debug("draft saved", "document", doc, "section", section, "snapshots", len(log.Snapshots))
	return snap, nil
}

// LoadLatestValid returns the newest payload whose digest verifies.
// ok is false when the log is absent or every snapshot is corrupted.
func (s *DraftStore) LoadLatestValid(ctx context.Context, doc, section string) (Payload, bool, error) {
	snap, ok, err := s.LatestValid(ctx, doc, section)
	if err != nil || !ok {
		return nil, ok, err
	}
	return snap.Payload, true, nil
}

// LatestValid is LoadLatestValid returning the whole snapshot.
func (s *DraftStore) LatestValid(ctx context.Context, doc, section string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestValidLocked(ctx, doc, section)
}

func (s *DraftStore) latestValidLocked(ctx context.Context, doc, section string) (Snapshot, bool, error) {
	log, err := s.readLog(ctx, doc, section)
	if err != nil {
		return Snapshot{}, false, err
	}
	for i := len(log.Snapshots) - 1; i >= 0; i-- {
		snap := log.Snapshots[i]
		if snap.Valid() {
			return snap, true, nil
		}
		s.logger.Warn("skipping corrupted snapshot", "document", doc, "section", section, "index", i)
	}
	return Snapshot{}, false, nil
}

// Merge persists incoming when its timestamp is at least as new as the local
// latest valid snapshot. Ties go to incoming. Otherwise the local snapshot is
// returned and nothing is written.
func (s *DraftStore) Merge(ctx context.Context, doc, section string, incoming Payload) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, ok, err := s.latestValidLocked(ctx, doc, section)
	if err != nil {
		return Snapshot{}, err
	}
	if ok {
		incomingTS, hasTS := incoming.Timestamp()
		if !hasTS || incomingTS.Before(local.timestamp()) {
			s.logger.Debug("merge kept local draft", "document", doc, "section", section)
			return local, nil
		}
	}
	return s.saveLocked(ctx, doc, section, incoming)
}

// PurgeExpired drops snapshots older than the retention window and deletes
// logs left empty. It reports whether anything changed.
func (s *DraftStore) PurgeExpired(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, err := s.readIndex(ctx)
	if err != nil {
		return false, err
	}
	cutoff := s.clock.Now().Add(-s.retention)
	changed := false
	var emptied [][2]string

	for _, pair := range ix.pairs() {
		doc, section := pair[0], pair[1]
		log, err := s.readLog(ctx, doc, section)
		if err != nil {
			return changed, err
		}
		kept := log.Snapshots[:0]
		for _, snap := range log.Snapshots {
			if !snap.SavedAt.Before(cutoff) {
				kept = append(kept, snap)
			}
		}
		if len(kept) == len(log.Snapshots) && len(kept) > 0 {
			continue
		}
		changed = true
		if len(kept) == 0 {
			if err := s.removeLog(ctx, doc, section); err != nil {
				return changed, err
			}
			emptied = append(emptied, [2]string{doc, section})
			continue
		}
		log.Snapshots = kept
		if err := s.writeLog(ctx, doc, section, log); err != nil {
			return changed, err
		}
	}

	if len(emptied) > 0 {
		err := s.updateIndex(ctx, func(ix *sectionIndex) bool {
			for _, e := range emptied {
				ix.remove(e[0], e[1])
			}
			return true
		})
		if err != nil {
			return changed, err
		}
	}
	if changed {
		s.logger.Info("purged expired drafts", "emptied_logs", len(emptied))
	}
	return changed, nil
}

// Clear removes every section log of doc.
func (s *DraftStore) Clear(ctx context.Context, doc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	sections := append([]string(nil), ix.Documents[doc]...)
	for _, section := range sections {
		if err := s.removeLog(ctx, doc, section); err != nil {
			return err
		}
	}
	return s.updateIndex(ctx, func(ix *sectionIndex) bool {
		if _, ok := ix.Documents[doc]; !ok {
			return false
		}
		delete(ix.Documents, doc)
		return true
	})
}

// Sections lists the sections of doc that have a draft log.
func (s *DraftStore) Sections(ctx context.Context, doc string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), ix.Documents[doc]...), nil
}

// History describes every stored snapshot of a section, newest first,
// including corrupted ones.
func (s *DraftStore) History(ctx context.Context, doc, section string) ([]SnapshotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, err := s.readLog(ctx, doc, section)
	if err != nil {
		return nil, err
	}
	infos := make([]SnapshotInfo, 0, len(log.Snapshots))
	for i := len(log.Snapshots) - 1; i >= 0; i-- {
		snap := log.Snapshots[i]
		infos = append(infos, SnapshotInfo{
			Index:   i,
			SavedAt: snap.SavedAt,
			Digest:  snap.Digest,
			Valid:   snap.Valid(),
		})
	}
	return infos, nil
}

func draftKey(doc, section string) string {
	return compositeKey(draftPrefix, doc, section)
}

// readLog loads a log. A log whose bytes no longer decode is moved aside to
// "<key>.corrupt" and treated as empty.
func (s *DraftStore) readLog(ctx context.Context, doc, section string) (*DraftLog, error) {
	key := draftKey(doc, section)
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return &DraftLog{}, nil
	}
	var log DraftLog
	if err := decodeJSON(data, &log); err != nil {
		s.logger.Warn("quarantining undecodable draft log", "key", key, "error", err)
		if err := s.kv.Set(ctx, key+".corrupt", data); err != nil {
			return nil, &StorageError{Op: "set", Key: key + ".corrupt", Err: err}
		}
		return &DraftLog{}, nil
	}
	return &log, nil
}

func (s *DraftStore) writeLog(ctx context.Context, doc, section string, log *DraftLog) error {
	key := draftKey(doc, section)
	data, err := json.Marshal(log)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *DraftStore) removeLog(ctx context.Context, doc, section string) error {
	key := draftKey(doc, section)
	if err := s.kv.Remove(ctx, key); err != nil {
		return &StorageError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

func (s *DraftStore) readIndex(ctx context.Context) (*sectionIndex, error) {
	return readSectionIndex(ctx, s.kv, draftIndexKey)
}

func (s *DraftStore) updateIndex(ctx context.Context, fn func(*sectionIndex) bool) error {
	return updateSectionIndex(ctx, s.kv, draftIndexKey, fn)
}
