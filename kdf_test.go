package credvault

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	master := []byte("test-master-secret")
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}

	key1, err := DeriveKey(master, salt)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	key2, err := DeriveKey(master, salt)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}

	if len(key1) != KeyLength {
		t.Errorf("expected %d-byte key, got %d", KeyLength, len(key1))
	}
	if !bytes.Equal(key1, key2) {
		t.Error("same inputs must derive the same key")
	}
}

func TestDeriveKeyDistinctSalts(t *testing.T) {
	master := []byte("test-master-secret")

	salt1 := make([]byte, SaltLength)
	salt2 := make([]byte, SaltLength)
	rand.Read(salt1)
	rand.Read(salt2)

	key1, err := DeriveKey(master, salt1)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	key2, err := DeriveKey(master, salt2)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}

	if bytes.Equal(key1, key2) {
		t.Error("different salts must derive different keys")
	}
}

func TestDeriveKeyDistinctMasters(t *testing.T) {
	salt := make([]byte, SaltLength)
	rand.Read(salt)

	key1, err := DeriveKey([]byte("master-one"), salt)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	key2, err := DeriveKey([]byte("master-two"), salt)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}

	if bytes.Equal(key1, key2) {
		t.Error("different master secrets must derive different keys")
	}
}

func TestDeriveKeyInvalidInputs(t *testing.T) {
	salt := make([]byte, SaltLength)
	rand.Read(salt)

	if _, err := DeriveKey(nil, salt); err == nil {
		t.Error("expected error for empty master secret")
	}
	if _, err := DeriveKey([]byte("master"), make([]byte, 32)); err == nil {
		t.Error("expected error for short salt")
	}
	if _, err := DeriveKey([]byte("master"), make([]byte, 65)); err == nil {
		t.Error("expected error for oversized salt")
	}
}
