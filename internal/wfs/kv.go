package wfs

import (
	"context"
	"net/url"
	"strings"
)

// KV is the persistent byte store every component serialises into.
// Each store owns a disjoint key namespace.
type KV interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	// Implementations must not leave a partially written value behind.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Key namespaces.
const (
	draftPrefix    = "drafts"
	versionPrefix  = "versions"
	reminderPrefix = "reminders"

	draftIndexKey      = "drafts/_index"
	reminderIndexKey   = "reminders/_index"
	reminderTrackedKey = "reminders/_tracked"
	queueKey           = "syncq/jobs"
	deadLetterKey      = "syncq/deadletter"
)

// compositeKey joins a namespace and escaped parts with "/".
// Escaping keeps ids containing "/" from colliding, and every part comes out
// as a non-empty segment other than "." or "..".
func compositeKey(prefix string, parts ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(escapeKeyPart(p))
	}
	return b.String()
}

// emptyKeyPart stands for the empty id. "%" never survives PathEscape
// unescaped, so it cannot collide with a real id.
const emptyKeyPart = "%"

func escapeKeyPart(p string) string {
	switch p {
	case "":
		return emptyKeyPart
	case ".", "..":
		return strings.Repeat("%2E", len(p))
	}
	return url.PathEscape(p)
}
