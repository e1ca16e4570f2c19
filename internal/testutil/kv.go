package testutil

import (
	"context"
	"errors"
	"sync"

	"wfs-go/internal/kv"
	"wfs-go/internal/wfs"
)

// ErrInjected is returned by FailingKV when a failure is armed.
var ErrInjected = errors.New("injected storage failure")

// NewTestKV creates a new in-memory substrate for testing.
func NewTestKV() *kv.MemoryKV {
	return kv.NewMemoryKV()
}

// FailingKV wraps a KV and fails selected operations on demand.
type FailingKV struct {
	inner wfs.KV

	mu      sync.Mutex
	failGet bool
	failSet bool
	failRm  bool
	failKey string
	sets    int
}

// NewFailingKV wraps inner. No failures are armed initially.
func NewFailingKV(inner wfs.KV) *FailingKV {
	return &FailingKV{inner: inner}
}

// FailGets, FailSets and FailRemoves arm or disarm failures.
func (f *FailingKV) FailGets(v bool)    { f.mu.Lock(); f.failGet = v; f.mu.Unlock() }
func (f *FailingKV) FailSets(v bool)    { f.mu.Lock(); f.failSet = v; f.mu.Unlock() }
func (f *FailingKV) FailRemoves(v bool) { f.mu.Lock(); f.failRm = v; f.mu.Unlock() }

// FailSetsOf makes Set fail for key only. An empty key disarms it.
func (f *FailingKV) FailSetsOf(key string) { f.mu.Lock(); f.failKey = key; f.mu.Unlock() }

// Sets returns how many Set calls reached the inner store.
func (f *FailingKV) Sets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

func (f *FailingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, false, ErrInjected
	}
	return f.inner.Get(ctx, key)
}

func (f *FailingKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failSet || (f.failKey != "" && key == f.failKey)
	if !fail {
		f.sets++
	}
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.inner.Set(ctx, key, value)
}

func (f *FailingKV) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := f.failRm
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.inner.Remove(ctx, key)
}

var _ wfs.KV = (*FailingKV)(nil)
