// Package persist provides storage backends for credential records. Every
// envelope handed to a store is already encrypted by the vault layer; stores
// only ever see opaque blobs plus clear metadata.
//
// Tenant filtering is enforced here, not merely in the service layer: a
// lookup with the wrong owner pair fails exactly like a lookup for a record
// that does not exist.
package persist

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harborlock/credvault"
)

// StoreType represents the different storage backends that can be used.
type StoreType string

const (
	// StoreTypeMemory keeps records in process memory. For tests and
	// ephemeral tooling.
	StoreTypeMemory StoreType = "memory"

	// StoreTypeFileSystem stores one JSON container per tenant on the
	// local filesystem.
	StoreTypeFileSystem StoreType = "filesystem"

	// StoreTypeBadger stores records in an embedded BadgerDB database.
	StoreTypeBadger StoreType = "badger"

	// StoreTypePostgres stores records in a PostgreSQL table.
	StoreTypePostgres StoreType = "postgres"

	// StoreTypeS3 stores one object per record in an S3-compatible
	// bucket via MinIO.
	StoreTypeS3 StoreType = "s3"
)

// StoreConfig selects and configures a storage backend.
//
// Config keys depend on the type:
//
//	filesystem: base_path
//	badger:     data_dir, in_memory (optional), sync_writes (optional)
//	postgres:   dsn
//	s3:         endpoint, access_key_id, secret_access_key, use_ssl,
//	            region, bucket, key_prefix
type StoreConfig struct {
	Type   StoreType      `json:"type"`
	Config map[string]any `json:"config"`
}

// ConcurrencyError reports a lost optimistic-concurrency race: the stored
// container changed between read and write. Callers may reload and retry.
type ConcurrencyError struct {
	ExpectedVersion int64
	ActualVersion   int64
	Operation       string
}

func (e ConcurrencyError) Error() string {
	return fmt.Sprintf("version conflict in %s: expected version %d, but found %d",
		e.Operation, e.ExpectedVersion, e.ActualVersion)
}

func (e ConcurrencyError) IsConcurrencyError() bool {
	return true
}

// ConflictError reports an attempt to Save a record whose ID already exists.
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("credential %s already exists", e.ID)
}

// cloneCredential deep-copies a record so callers never share mutable state
// with a store's internal map.
func cloneCredential(cred *credvault.Credential) *credvault.Credential {
	out := *cred
	if cred.Metadata != nil {
		out.Metadata = make(map[string]string, len(cred.Metadata))
		for k, v := range cred.Metadata {
			out.Metadata[k] = v
		}
	}
	if cred.LastUsedAt != nil {
		t := *cred.LastUsedAt
		out.LastUsedAt = &t
	}
	if cred.ExpiresAt != nil {
		t := *cred.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// sortByCreatedAt orders records newest first, with ID as a tiebreaker so
// listings are stable.
func sortByCreatedAt(creds []*credvault.Credential) {
	sort.Slice(creds, func(i, j int) bool {
		if creds[i].CreatedAt.Equal(creds[j].CreatedAt) {
			return creds[i].ID < creds[j].ID
		}
		return creds[i].CreatedAt.After(creds[j].CreatedAt)
	})
}

// validateTenantSegment rejects owner identifiers that cannot safely become
// a path or object-key segment.
func validateTenantSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("tenant segment cannot be empty")
	}

	// Basic validation to prevent path traversal and other issues
	if strings.Contains(segment, "..") ||
		strings.Contains(segment, "/") ||
		strings.Contains(segment, "\\") ||
		strings.Contains(segment, " ") {
		return fmt.Errorf("tenant segment contains invalid characters")
	}

	if len(segment) > 100 {
		return fmt.Errorf("tenant segment too long (max 100 characters)")
	}

	return nil
}
