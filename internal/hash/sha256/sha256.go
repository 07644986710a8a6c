// Package sha256 digests archived payloads so notification consumers can
// detect content changes without fetching the record.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements neo.Hasher.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
