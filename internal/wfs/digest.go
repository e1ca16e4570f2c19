package wfs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// DomainSnapshot separates snapshot digests from any other hash of the same bytes.
// The version suffix allows the algorithm to change without ambiguity.
const DomainSnapshot = "wfs/snapshot/v1"

// Canonical returns the canonical JSON encoding of v: object keys sorted,
// strings NFC-normalised, no HTML escaping, numbers kept as written.
// Two values are considered equal iff their canonical encodings are equal.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling value: %w", err)
	}
	var generic any
	if err := decodeJSON(raw, &generic); err != nil {
		return nil, fmt.Errorf("re-reading value: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalize(generic)); err != nil {
		return nil, fmt.Errorf("encoding canonical value: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalize(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[norm.NFC.String(k)] = normalize(elem)
		}
		return out
	default:
		return val
	}
}

// Digest returns the integrity digest of a payload:
// hex(SHA256(DomainSnapshot || 0x00 || Canonical(payload))).
func Digest(p Payload) (string, error) {
	data, err := Canonical(p)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainSnapshot, data), nil
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether a and b have the same canonical encoding.
func Equal(a, b any) bool {
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}
