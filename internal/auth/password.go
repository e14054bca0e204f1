package auth

import (
	"fmt"
	"sync"

	"github.com/alexedwards/argon2id"
)

// HashParams tunes argon2id. Memory is expressed in KiB.
type HashParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams follows the OWASP argon2id baseline.
var DefaultHashParams = HashParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// maxHashMemory caps the cost a stored digest can demand from Verify.
const maxHashMemory = 1024 * 1024

// Hasher produces and checks salted argon2id digests in PHC string format.
type Hasher struct {
	params *argon2id.Params

	dummyOnce   sync.Once
	dummyDigest string
}

// NewHasher constructs a Hasher. Zero fields fall back to DefaultHashParams.
func NewHasher(params HashParams) *Hasher {
	if params.Memory == 0 {
		params.Memory = DefaultHashParams.Memory
	}
	if params.Iterations == 0 {
		params.Iterations = DefaultHashParams.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = DefaultHashParams.Parallelism
	}
	if params.SaltLength == 0 {
		params.SaltLength = DefaultHashParams.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultHashParams.KeyLength
	}
	return &Hasher{params: &argon2id.Params{
		Memory:      params.Memory,
		Iterations:  params.Iterations,
		Parallelism: params.Parallelism,
		SaltLength:  params.SaltLength,
		KeyLength:   params.KeyLength,
	}}
}

// Hash derives a digest with a fresh random salt embedded in the output.
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := argon2id.CreateHash(plaintext, h.params)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return digest, nil
}

// Verify reports whether plaintext matches digest using the parameters
// embedded in the digest. Malformed or oversized digests never match.
func (h *Hasher) Verify(plaintext, digest string) bool {
	params, _, _, err := argon2id.DecodeHash(digest)
	if err != nil {
		return false
	}
	if params.Memory == 0 || params.Memory > maxHashMemory || params.Iterations == 0 || params.Parallelism == 0 {
		return false
	}
	match, err := argon2id.ComparePasswordAndHash(plaintext, digest)
	return err == nil && match
}

// Burn spends one verification against a throwaway digest so that lookups of
// unknown accounts cost the same as wrong passwords.
func (h *Hasher) Burn(plaintext string) {
	h.dummyOnce.Do(func() {
		h.dummyDigest, _ = h.Hash("nutrition-api-timing-equalizer")
	})
	_ = h.Verify(plaintext, h.dummyDigest)
}
