package credvault

import (
	"crypto/sha512"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. Changing Iterations is a migration concern:
// the envelope version byte pins the parameters a record was written with,
// so existing envelopes keep decrypting with the old values.
const (
	// KeyLength is the derived key size in bytes (AES-256 and
	// ChaCha20-Poly1305 both take 256-bit keys).
	KeyLength = 32

	// SaltLength is the per-record random salt size in bytes.
	SaltLength = 64

	// Iterations is the PBKDF2 iteration count. Deliberately CPU-bound;
	// request-serving callers should dispatch derivation off the hot path.
	Iterations = 100_000
)

// DeriveKey derives a per-record symmetric key from the long-lived master
// secret and a per-record random salt using PBKDF2-HMAC-SHA512.
//
// The master secret is assumed high-entropy, but per-record derivation means
// compromise of one derived key exposes neither the master secret nor any
// other record. The function is pure and holds no shared state, so it is
// safe for any number of concurrent invocations.
func DeriveKey(masterSecret, salt []byte) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("empty master secret")
	}
	if len(salt) != SaltLength {
		return nil, errors.New("salt must be exactly 64 bytes")
	}
	return pbkdf2.Key(masterSecret, salt, Iterations, KeyLength, sha512.New), nil
}
