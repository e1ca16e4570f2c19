// Package remote delivers sync jobs to an HTTP endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"wfs-go/internal/config"
	"wfs-go/internal/wfs"
)

// conflictSchema describes the body of a 409 response.
const conflictSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["serverPayload"],
  "properties": {
    "serverPayload": {"type": "object"}
  }
}`

const maxErrorBody = 512

// ErrUnexpectedStatus is wrapped by errors for non-2xx, non-409 responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

// HTTPProcessor POSTs each job as JSON to <base>/jobs. A 2xx answer means the
// job was applied; 409 means conflict and must carry the server's payload.
type HTTPProcessor struct {
	endpoint string
	client   *http.Client
	schema   *jsonschema.Schema
}

// NewHTTPProcessor creates a processor for baseURL. A nil client uses one
// with the given timeout.
func NewHTTPProcessor(baseURL string, client *http.Client, timeout time.Duration) (*HTTPProcessor, error) {
	if baseURL == "" {
		return nil, errors.New("remote url is empty")
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	schema, err := compileConflictSchema()
	if err != nil {
		return nil, err
	}
	return &HTTPProcessor{
		endpoint: strings.TrimRight(baseURL, "/") + "/jobs",
		client:   client,
		schema:   schema,
	}, nil
}

func compileConflictSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(conflictSchema))
	if err != nil {
		return nil, fmt.Errorf("parsing conflict schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("conflict.json", doc); err != nil {
		return nil, fmt.Errorf("adding conflict schema: %w", err)
	}
	schema, err := c.Compile("conflict.json")
	if err != nil {
		return nil, fmt.Errorf("compiling conflict schema: %w", err)
	}
	return schema, nil
}

func (p *HTTPProcessor) Process(ctx context.Context, job wfs.SyncJob) (wfs.ProcessResult, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return wfs.ProcessResult{}, fmt.Errorf("encoding job: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return wfs.ProcessResult{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", job.ID)

	resp, err := p.client.Do(req)
	if err != nil {
		return wfs.ProcessResult{}, fmt.Errorf("posting job: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		server, err := p.decodeConflict(resp.Body)
		if err != nil {
			return wfs.ProcessResult{}, err
		}
		return wfs.ProcessResult{Conflict: true, ServerPayload: server}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		io.Copy(io.Discard, resp.Body)
		return wfs.ProcessResult{}, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return wfs.ProcessResult{}, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}

func (p *HTTPProcessor) decodeConflict(r io.Reader) (wfs.Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading conflict body: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing conflict body: %w", err)
	}
	if err := p.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid conflict body: %w", err)
	}
	var body struct {
		ServerPayload json.RawMessage `json:"serverPayload"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding conflict body: %w", err)
	}
	return wfs.DecodePayload(body.ServerPayload)
}

// NewFromConfig returns the configured processor, or nil when remote sync is
// disabled.
func NewFromConfig(cfg config.RemoteConfig) (wfs.Processor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "http":
		p, err := NewHTTPProcessor(cfg.URL, nil, cfg.Timeout.Duration)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown remote type: %q", cfg.Type)
	}
}

var _ wfs.Processor = (*HTTPProcessor)(nil)
