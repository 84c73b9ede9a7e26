package credvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Envelope versions. The leading version byte selects the AEAD and key
// derivation pair a record was written with, so a scheme can be retired
// without a disruptive migration: old records decrypt through their original
// path while new writes use CurrentEnvelopeVersion.
const (
	// EnvelopeVersionAESGCM is AES-256-GCM with PBKDF2-HMAC-SHA512.
	EnvelopeVersionAESGCM byte = 0x01

	// EnvelopeVersionChaCha is ChaCha20-Poly1305 with PBKDF2-HMAC-SHA512.
	// Kept decryptable for records written by the previous scheme.
	EnvelopeVersionChaCha byte = 0x02

	// CurrentEnvelopeVersion is the scheme used for all new encryptions.
	CurrentEnvelopeVersion = EnvelopeVersionAESGCM
)

const (
	nonceSize   = 12
	authTagSize = 16

	// envelopeOverhead is the fixed byte cost before ciphertext:
	// version(1) + salt(64) + iv(12) + tag(16).
	envelopeOverhead = 1 + SaltLength + nonceSize + authTagSize
)

// Envelope is the parsed form of the self-describing encrypted blob stored
// in place of a secret. The wire layout, before base64 encoding, is
//
//	version(1B) || salt(64B) || iv(12B) || authTag(16B) || ciphertext
//
// and is the stable contract between this core and any storage backend.
type Envelope struct {
	Version    byte
	Salt       []byte
	IV         []byte
	AuthTag    []byte
	Ciphertext []byte
}

// Encode serializes the envelope to its base64 storage form, suitable for a
// text column.
func (e *Envelope) Encode() string {
	buf := make([]byte, 0, envelopeOverhead+len(e.Ciphertext))
	buf = append(buf, e.Version)
	buf = append(buf, e.Salt...)
	buf = append(buf, e.IV...)
	buf = append(buf, e.AuthTag...)
	buf = append(buf, e.Ciphertext...)
	return base64.StdEncoding.EncodeToString(buf)
}

// ParseEnvelope decodes the base64 storage form back into its parts. Any
// structural defect reports ErrDecryptionFailed: a malformed envelope is
// indistinguishable from a tampered one as far as callers are concerned.
func ParseEnvelope(encoded string) (*Envelope, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty envelope", ErrDecryptionFailed)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", ErrDecryptionFailed)
	}
	if len(raw) < envelopeOverhead {
		return nil, fmt.Errorf("%w: envelope too short", ErrDecryptionFailed)
	}

	version := raw[0]
	switch version {
	case EnvelopeVersionAESGCM, EnvelopeVersionChaCha:
	default:
		return nil, fmt.Errorf("%w: unsupported envelope version 0x%02x", ErrDecryptionFailed, version)
	}

	off := 1
	env := &Envelope{Version: version}
	env.Salt = raw[off : off+SaltLength]
	off += SaltLength
	env.IV = raw[off : off+nonceSize]
	off += nonceSize
	env.AuthTag = raw[off : off+authTagSize]
	off += authTagSize
	env.Ciphertext = raw[off:]
	return env, nil
}

// newAEAD constructs the AEAD for an envelope version over a derived key.
func newAEAD(version byte, key []byte) (cipher.AEAD, error) {
	switch version {
	case EnvelopeVersionAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		return cipher.NewGCM(block)
	case EnvelopeVersionChaCha:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("unsupported envelope version 0x%02x", version)
	}
}

// EncryptEnvelope encrypts plaintext under a key derived from masterSecret
// and a freshly generated 64-byte salt, returning the base64 storage form.
//
// The nonce is generated fresh and randomly for every call and must never
// repeat under the same derived key; because the salt is also fresh per
// call, every envelope is sealed under its own key, so two encryptions of
// identical plaintext with the same master secret yield unrelated blobs
// that both decrypt independently.
func EncryptEnvelope(plaintext, masterSecret []byte) (string, error) {
	return encryptEnvelopeVersion(CurrentEnvelopeVersion, plaintext, masterSecret)
}

// DecryptEnvelope opens a stored envelope with the master secret and the
// envelope's own salt. It fails with ErrDecryptionFailed on any bit flip in
// ciphertext or tag, on truncation, and on an unknown version byte; it never
// returns corrupted plaintext. Decryption failures are terminal for the
// record and must not be retried.
func DecryptEnvelope(encoded string, masterSecret []byte) ([]byte, error) {
	env, err := ParseEnvelope(encoded)
	if err != nil {
		return nil, err
	}

	key, err := DeriveKey(masterSecret, env.Salt)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(env.Version, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+authTagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return plaintext, nil
}

// encryptEnvelopeVersion is the version-pinned write path. EncryptEnvelope
// pins it to CurrentEnvelopeVersion; tests exercise retired schemes through
// it directly.
func encryptEnvelopeVersion(version byte, plaintext, masterSecret []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("empty plaintext")
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := DeriveKey(masterSecret, salt)
	if err != nil {
		return "", err
	}

	aead, err := newAEAD(version, key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal returns ciphertext||tag; the envelope layout stores the tag
	// ahead of the ciphertext.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - authTagSize

	env := &Envelope{
		Version:    version,
		Salt:       salt,
		IV:         nonce,
		AuthTag:    sealed[split:],
		Ciphertext: sealed[:split],
	}
	return env.Encode(), nil
}
