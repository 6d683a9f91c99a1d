// Package proof implements content addressing and integrity checks for
// uploaded evidence.
package proof

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	dErrors "credence/pkg/domain-errors"
)

// Algorithm names a content hash function.
type Algorithm string

const (
	AlgSHA256 Algorithm = "sha256"
	AlgBLAKE3 Algorithm = "blake3"
)

// ContentHash is a self-describing content address of the form "<alg>:<hex>".
type ContentHash string

// Compute hashes data with alg.
func Compute(alg Algorithm, data []byte) (ContentHash, error) {
	var sum []byte
	switch alg {
	case AlgSHA256:
		s := sha256.Sum256(data)
		sum = s[:]
	case AlgBLAKE3:
		s := blake3.Sum256(data)
		sum = s[:]
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported hash algorithm")
	}
	return ContentHash(string(alg) + ":" + hex.EncodeToString(sum)), nil
}

// ParseContentHash validates an externally supplied content address.
func ParseContentHash(s string) (ContentHash, error) {
	alg, digest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content hash must be <alg>:<hex>")
	}
	switch Algorithm(alg) {
	case AlgSHA256, AlgBLAKE3:
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported hash algorithm")
	}
	raw, err := hex.DecodeString(digest)
	if err != nil || len(raw) != 32 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content hash digest must be 32 bytes of hex")
	}
	return ContentHash(alg + ":" + strings.ToLower(digest)), nil
}

// Algorithm returns the hash function encoded in h.
func (h ContentHash) Algorithm() Algorithm {
	alg, _, _ := strings.Cut(string(h), ":")
	return Algorithm(alg)
}

func (h ContentHash) String() string { return string(h) }

// Matches recomputes the hash of data with h's algorithm and compares in constant time.
func (h ContentHash) Matches(data []byte) bool {
	got, err := Compute(h.Algorithm(), data)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h)) == 1
}
