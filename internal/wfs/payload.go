package wfs

import (
	"bytes"
	"encoding/json"
	"time"
)

// TimestampField is the payload field holding its last-modified time (RFC 3339).
const TimestampField = "lastUpdated"

// Payload is an opaque structured value saved by the host.
type Payload map[string]any

// Timestamp returns the payload's embedded lastUpdated time.
func (p Payload) Timestamp() (time.Time, bool) {
	raw, ok := p[TimestampField].(string)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Clone returns a deep copy made through the canonical encoding.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return p
	}
	out, err := DecodePayload(data)
	if err != nil {
		return p
	}
	return out
}

// DecodePayload parses a JSON object keeping numbers as json.Number so they
// re-encode to the same bytes.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := decodeJSON(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// newer reports whether a is strictly newer than b. A missing timestamp is
// older than any present one.
func newer(a, b Payload) bool {
	ta, okA := a.Timestamp()
	tb, okB := b.Timestamp()
	switch {
	case !okA:
		return false
	case !okB:
		return true
	default:
		return ta.After(tb)
	}
}
