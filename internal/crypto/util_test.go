package crypto

import (
	"bytes"
	"testing"
)

func TestPassphraseRoundTrip(t *testing.T) {
	plaintext := []byte(`{"credentials":[]}`)

	encrypted, err := EncryptWithPassphrase(plaintext, "a-strong-passphrase")
	if err != nil {
		t.Fatalf("EncryptWithPassphrase failed: %v", err)
	}
	if bytes.Contains(encrypted, plaintext) {
		t.Error("ciphertext contains the plaintext")
	}

	decrypted, err := DecryptWithPassphrase(encrypted, "a-strong-passphrase")
	if err != nil {
		t.Fatalf("DecryptWithPassphrase failed: %v", err)
	}
	if !bytes.Equal(plaintext, decrypted) {
		t.Error("decrypted data does not match original")
	}
}

func TestPassphraseWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptWithPassphrase([]byte("payload"), "right")
	if err != nil {
		t.Fatalf("EncryptWithPassphrase failed: %v", err)
	}
	if _, err = DecryptWithPassphrase(encrypted, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestPassphraseTamperDetection(t *testing.T) {
	encrypted, err := EncryptWithPassphrase([]byte("payload"), "pass")
	if err != nil {
		t.Fatalf("EncryptWithPassphrase failed: %v", err)
	}
	encrypted[len(encrypted)-1] ^= 0x01
	if _, err = DecryptWithPassphrase(encrypted, "pass"); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}

func TestEncryptHeaderLayout(t *testing.T) {
	plaintext := []byte("payload")

	encrypted, err := EncryptWithPassphrase(plaintext, "pass")
	if err != nil {
		t.Fatalf("EncryptWithPassphrase failed: %v", err)
	}
	if want := saltSize + nonceSize + len(plaintext) + 16; len(encrypted) != want {
		t.Errorf("expected %d bytes, got %d", want, len(encrypted))
	}

	// Salt and nonce are drawn fresh per call.
	again, err := EncryptWithPassphrase(plaintext, "pass")
	if err != nil {
		t.Fatalf("EncryptWithPassphrase failed: %v", err)
	}
	if bytes.Equal(encrypted[:saltSize+nonceSize], again[:saltSize+nonceSize]) {
		t.Error("two encryptions must not share salt and nonce")
	}
}

func TestDecryptTooShort(t *testing.T) {
	if _, err := DecryptWithPassphrase([]byte("short"), "pass"); err == nil {
		t.Error("expected error for truncated input")
	}
}

func TestCalculateChecksum(t *testing.T) {
	a := CalculateChecksum([]byte("data"))
	if a != CalculateChecksum([]byte("data")) {
		t.Error("checksum must be deterministic")
	}
	if a == CalculateChecksum([]byte("other")) {
		t.Error("different data must have different checksums")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
}
