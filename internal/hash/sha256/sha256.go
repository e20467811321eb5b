// Package sha256 computes content digests for written documents.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Prefix marks the digest algorithm in Hash output.
const Prefix = "sha256:"

// Hasher returns prefixed hex SHA-256 digests.
type Hasher struct{}

// New returns a Hasher.
func New() Hasher {
	return Hasher{}
}

// Hash digests data.
func (Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:]), nil
}
