package testutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the SHA-256 checksum of data as a lowercase hex string.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// DomainDigest computes hex(SHA256(domain || 0x00 || data)) independently of
// the production code so tests can check the snapshot digest format.
func DomainDigest(domain string, data []byte) string {
	buf := make([]byte, 0, len(domain)+1+len(data))
	buf = append(buf, domain...)
	buf = append(buf, 0x00)
	buf = append(buf, data...)
	return SHA256Hex(buf)
}
