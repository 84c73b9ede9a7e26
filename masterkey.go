package credvault

import (
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
)

// MasterKeyProvider supplies the long-lived master secret that every
// per-record key is derived from. The core never reads configuration
// directly: the surrounding system sources the secret from its environment
// or secret manager and injects it here, which keeps the cryptographic core
// free of hidden global state and makes key material swappable in tests.
//
// Current returns an open memguard buffer. Callers must Destroy the buffer
// as soon as the derived key has been computed so the master secret spends
// as little time as possible outside protected memory.
type MasterKeyProvider interface {
	Current() (*memguard.LockedBuffer, error)
}

// StaticMasterKey holds the master secret in a memguard enclave. The enclave
// keeps the secret encrypted at rest in process memory; every Current call
// opens a fresh locked buffer for the caller to use and destroy.
type StaticMasterKey struct {
	enclave *memguard.Enclave
}

// NewStaticMasterKey seals the given secret into protected memory. The
// input slice is wiped by memguard as part of enclave construction, so the
// caller must not reuse it.
func NewStaticMasterKey(secret []byte) (*StaticMasterKey, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty master secret")
	}
	return &StaticMasterKey{enclave: memguard.NewEnclave(secret)}, nil
}

func (p *StaticMasterKey) Current() (*memguard.LockedBuffer, error) {
	buf, err := p.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to access master key: %w", err)
	}
	return buf, nil
}

// NewEnvMasterKey reads the master secret from the named environment
// variable exactly once, seals it, and returns a provider backed by the
// sealed copy. The variable is cleared from the process environment after
// sealing so the secret does not linger in os.Environ output.
func NewEnvMasterKey(envVar string) (*StaticMasterKey, error) {
	if envVar == "" {
		return nil, errors.New("environment variable name is required")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s is not set", envVar)
	}
	provider, err := NewStaticMasterKey([]byte(value))
	if err != nil {
		return nil, err
	}
	os.Unsetenv(envVar)
	return provider, nil
}
