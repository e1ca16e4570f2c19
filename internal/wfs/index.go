package wfs

import (
	"context"
	"encoding/json"
	"sort"
)

// sectionIndex maps documentId to the section ids that have a record.
type sectionIndex struct {
	Documents map[string][]string `json:"documents"`
}

func (ix *sectionIndex) add(doc, section string) bool {
	for _, s := range ix.Documents[doc] {
		if s == section {
			return false
		}
	}
	ix.Documents[doc] = append(ix.Documents[doc], section)
	sort.Strings(ix.Documents[doc])
	return true
}

func (ix *sectionIndex) remove(doc, section string) bool {
	sections := ix.Documents[doc]
	for i, s := range sections {
		if s == section {
			sections = append(sections[:i], sections[i+1:]...)
			if len(sections) == 0 {
				delete(ix.Documents, doc)
			} else {
				ix.Documents[doc] = sections
			}
			return true
		}
	}
	return false
}

// readSectionIndex loads the index stored under key; a missing key is an empty index.
func readSectionIndex(ctx context.Context, kv KV, key string) (*sectionIndex, error) {
	ix := &sectionIndex{Documents: map[string][]string{}}
	data, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return ix, nil
	}
	if err := json.Unmarshal(data, ix); err != nil {
		return nil, &StorageError{Op: "decode", Key: key, Err: err}
	}
	if ix.Documents == nil {
		ix.Documents = map[string][]string{}
	}
	return ix, nil
}

// updateSectionIndex applies fn and writes the index back when fn reports a change.
func updateSectionIndex(ctx context.Context, kv KV, key string, fn func(*sectionIndex) bool) error {
	ix, err := readSectionIndex(ctx, kv, key)
	if err != nil {
		return err
	}
	if !fn(ix) {
		return nil
	}
	data, err := json.Marshal(ix)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	if err := kv.Set(ctx, key, data); err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// pairs lists every (document, section) pair in a stable order.
func (ix *sectionIndex) pairs() [][2]string {
	docs := make([]string, 0, len(ix.Documents))
	for doc := range ix.Documents {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	var out [][2]string
	for _, doc := range docs {
		for _, section := range ix.Documents[doc] {
			out = append(out, [2]string{doc, section})
		}
	}
	return out
}
