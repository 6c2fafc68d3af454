package integrity

import (
	"encoding/hex"
	"hash"
	"io"
	"sync"
)

// HashingReader hashes every byte read through it.
type HashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func (h Hasher) NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: h.New()}
}

func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far.
func (hr *HashingReader) Sum() string {
	return hex.EncodeToString(hr.h.Sum(nil))
}

// BytesRead returns the number of bytes read so far.
func (hr *HashingReader) BytesRead() int64 {
	return hr.n
}

// VerifyingReader hashes a stream while it is consumed and checks the digest at EOF.
// On mismatch Read returns ErrIntegrityViolation instead of io.EOF.
type VerifyingReader struct {
	rc       io.ReadCloser
	h        hash.Hash
	expected string

	onMismatch func(actual string)
	once       sync.Once
	verdict    error
	done       bool
}

// NewVerifyingReader wraps rc. onMismatch, if set, is called once with the actual digest.
func (h Hasher) NewVerifyingReader(rc io.ReadCloser, expected string, onMismatch func(actual string)) *VerifyingReader {
	return &VerifyingReader{rc: rc, h: h.New(), expected: expected, onMismatch: onMismatch}
}

func (v *VerifyingReader) Read(p []byte) (int, error) {
	if v.done {
		if v.verdict != nil {
			return 0, v.verdict
		}
		return 0, io.EOF
	}

	n, err := v.rc.Read(p)
	if n > 0 {
		v.h.Write(p[:n])
	}
	if err == io.EOF {
		v.done = true
		actual := hex.EncodeToString(v.h.Sum(nil))
		if !Equal(actual, v.expected) {
			v.verdict = ErrIntegrityViolation
			v.once.Do(func() {
				if v.onMismatch != nil {
					v.onMismatch(actual)
				}
			})
			return n, v.verdict
		}
	}
	return n, err
}

func (v *VerifyingReader) Close() error {
	return v.rc.Close()
}
