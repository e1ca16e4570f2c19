package testutil

import (
	"context"
	"sync"

	"wfs-go/internal/wfs"
)

// ProcessorResponse is one scripted answer of a ProcessorStub.
type ProcessorResponse struct {
	Result wfs.ProcessResult
	Err    error
	Panic  any
}

// ProcessorStub records every job it receives and answers from a script.
// Once the script is exhausted every call succeeds.
type ProcessorStub struct {
	mu        sync.Mutex
	script    []ProcessorResponse
	perJob    map[string][]ProcessorResponse
	processed []wfs.SyncJob
}

func NewProcessorStub(script ...ProcessorResponse) *ProcessorStub {
	return &ProcessorStub{script: script, perJob: make(map[string][]ProcessorResponse)}
}

// On scripts answers for a specific job id, consumed before the global script.
func (p *ProcessorStub) On(jobID string, responses ...ProcessorResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.perJob[jobID] = append(p.perJob[jobID], responses...)
}

func (p *ProcessorStub) Process(_ context.Context, job wfs.SyncJob) (wfs.ProcessResult, error) {
	p.mu.Lock()
	p.processed = append(p.processed, job)
	var resp ProcessorResponse
	if rs := p.perJob[job.ID]; len(rs) > 0 {
		resp, p.perJob[job.ID] = rs[0], rs[1:]
	} else if len(p.script) > 0 {
		resp, p.script = p.script[0], p.script[1:]
	}
	p.mu.Unlock()

	if resp.Panic != nil {
		panic(resp.Panic)
	}
	return resp.Result, resp.Err
}

// Processed returns the ids of every job handed to the stub, in order.
func (p *ProcessorStub) Processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, len(p.processed))
	for i, j := range p.processed {
		ids[i] = j.ID
	}
	return ids
}

// Jobs returns copies of every job handed to the stub.
func (p *ProcessorStub) Jobs() []wfs.SyncJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wfs.SyncJob(nil), p.processed...)
}

var _ wfs.Processor = (*ProcessorStub)(nil)
