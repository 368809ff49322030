package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier of the form "prefix_hex". The prefix
// makes id kinds distinguishable in logs and query plans.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewToken returns an opaque random token string, longer than an id and
// without a prefix. Used for refresh tokens.
func NewToken() string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
