package credvault

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the credential service and its collaborators.
// Callers should match them with errors.Is rather than comparing strings.
var (
	// ErrNotFound indicates the credential is absent, soft-deleted, or owned
	// by a different tenant. The three cases are deliberately conflated so
	// that a caller probing with foreign tenant identifiers cannot learn
	// whether a record exists.
	ErrNotFound = errors.New("credential not found")

	// ErrDecryptionFailed indicates an authentication-tag mismatch, a
	// truncated or malformed envelope, or an unsupported envelope version.
	// The condition is terminal for the record: retrying cannot repair
	// corrupted ciphertext, so callers must not retry against the same
	// envelope.
	ErrDecryptionFailed = errors.New("envelope decryption failed")

	// ErrExpired indicates the credential's expiry timestamp is in the past.
	// It is raised only by ValidateCredential; GetCredential still decrypts
	// expired records.
	ErrExpired = errors.New("credential expired")

	// ErrValidationFailed indicates malformed input to a create or update
	// operation, such as an empty label or a secret map that cannot be
	// serialized.
	ErrValidationFailed = errors.New("validation failed")
)

// ValidationError carries the offending field alongside ErrValidationFailed.
// It never contains secret material, only field names and reasons.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// PersistenceError wraps an opaque failure from the storage collaborator.
// The core does not interpret it beyond surfacing it; transient failures may
// be retried by the caller with backoff.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// wrapPersistence normalizes a store error. ErrNotFound passes through
// untouched so tenant conflation is preserved end to end.
func wrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return &PersistenceError{Op: op, Err: err}
}
