package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names a supported content digest.
type Algorithm string

const (
	SHA256     Algorithm = "sha256"
	BLAKE2b256 Algorithm = "blake2b-256"

	DefaultAlgorithm = SHA256
)

// ErrIntegrityViolation reports that stored bytes no longer match their recorded digest.
var ErrIntegrityViolation = errors.New("integrity violation")

// ParseAlgorithm normalizes a configured algorithm name. Empty selects the default.
func ParseAlgorithm(raw string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "sha256", "sha-256":
		return SHA256, nil
	case "blake2b-256", "blake2b":
		return BLAKE2b256, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", raw)
	}
}

// Hasher produces hex digests for one algorithm.
type Hasher struct {
	alg Algorithm
}

// NewHasher returns a hasher for alg. Empty alg selects the default.
func NewHasher(alg Algorithm) (Hasher, error) {
	parsed, err := ParseAlgorithm(string(alg))
	if err != nil {
		return Hasher{}, err
	}
	return Hasher{alg: parsed}, nil
}

func (h Hasher) Algorithm() Algorithm {
	if h.alg == "" {
		return DefaultAlgorithm
	}
	return h.alg
}

// New returns a fresh hash.Hash for the hasher's algorithm.
func (h Hasher) New() hash.Hash {
	switch h.Algorithm() {
	case BLAKE2b256:
		// New256 only fails for keys longer than 64 bytes.
		d, _ := blake2b.New256(nil)
		return d
	default:
		return sha256.New()
	}
}

// Digest consumes r and returns the lowercase hex digest and byte count.
func (h Hasher) Digest(r io.Reader) (string, int64, error) {
	d := h.New()
	n, err := io.Copy(d, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(d.Sum(nil)), n, nil
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
