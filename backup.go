package credvault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harborlock/credvault/internal/crypto"
)

// ExportFormatVersion identifies the export container schema.
const ExportFormatVersion = "1.0"

const minExportPassphraseLen = 12

// ExportContainer is a portable, passphrase-encrypted package of one
// tenant's credential records.
//
// The records inside keep their envelopes exactly as stored, so the master
// secret is never needed to produce or move a container; the passphrase
// layer (PBKDF2 + XChaCha20-Poly1305) protects the clear metadata that
// accompanies the envelopes. The checksum covers the encrypted payload and
// detects corruption before decryption is attempted.
type ExportContainer struct {
	// ExportID uniquely identifies this container.
	ExportID string `json:"export_id"`

	// ExportedAt is when the container was produced, RFC 3339.
	ExportedAt string `json:"exported_at"`

	// FormatVersion is the container schema version.
	FormatVersion string `json:"format_version"`

	// Checksum is the SHA-256 hex digest of EncryptedData's raw bytes.
	Checksum string `json:"checksum"`

	// EncryptionMethod names the outer encryption scheme.
	EncryptionMethod string `json:"encryption_method"`

	// OwnerOrgID and OwnerUserID identify the tenant the records belong
	// to. Import refuses containers exported by a different tenant.
	OwnerOrgID  string `json:"owner_org_id"`
	OwnerUserID string `json:"owner_user_id"`

	// EncryptedData is the base64-encoded encrypted payload.
	EncryptedData string `json:"encrypted_data"`
}

// exportPayload is the cleartext shape inside EncryptedData.
type exportPayload struct {
	FormatVersion string        `json:"format_version"`
	Credentials   []*Credential `json:"credentials"`
}

// ExportCredentials packages the owner's active records into a
// passphrase-encrypted container suitable for offline storage or migration
// between store backends. Soft-deleted records stay behind; they exist for
// audit retention, not portability.
func (s *Service) ExportCredentials(ctx context.Context, owner Owner, passphrase string) (*ExportContainer, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if len(passphrase) < minExportPassphraseLen {
		return nil, &ValidationError{Field: "passphrase", Reason: fmt.Sprintf("must be at least %d characters", minExportPassphraseLen)}
	}

	creds, err := s.store.FindMany(ctx, owner, "")
	if err != nil {
		return nil, wrapPersistence("export", err)
	}

	payload := exportPayload{
		FormatVersion: ExportFormatVersion,
		Credentials:   creds,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize export payload: %w", err)
	}

	encrypted, err := crypto.EncryptWithPassphrase(payloadJSON, passphrase)
	if err != nil {
		s.recordAudit(owner, actionExported, false, "", "", "encryption failed")
		return nil, fmt.Errorf("failed to encrypt export payload: %w", err)
	}

	container := &ExportContainer{
		ExportID:         uuid.NewString(),
		ExportedAt:       s.clock.Now().Format("2006-01-02T15:04:05Z07:00"),
		FormatVersion:    ExportFormatVersion,
		Checksum:         crypto.CalculateChecksum(encrypted),
		EncryptionMethod: "passphrase+xchacha20poly1305",
		OwnerOrgID:       owner.OrgID,
		OwnerUserID:      owner.UserID,
		EncryptedData:    base64.StdEncoding.EncodeToString(encrypted),
	}

	s.recordAudit(owner, actionExported, true, "", "", "")
	return container, nil
}

// ImportCredentials restores records from an export container produced by
// the same tenant. Records whose IDs already exist in the store are skipped
// so repeated imports are harmless. Returns the number of records written.
func (s *Service) ImportCredentials(ctx context.Context, owner Owner, container *ExportContainer, passphrase string) (int, error) {
	if err := validateOwner(owner); err != nil {
		return 0, err
	}
	if container == nil {
		return 0, &ValidationError{Field: "container", Reason: "must not be nil"}
	}
	if container.OwnerOrgID != owner.OrgID || container.OwnerUserID != owner.UserID {
		return 0, &ValidationError{Field: "container", Reason: "container does not belong to this tenant"}
	}
	if container.FormatVersion != ExportFormatVersion {
		return 0, &ValidationError{Field: "container", Reason: fmt.Sprintf("unsupported format version %q", container.FormatVersion)}
	}

	encrypted, err := base64.StdEncoding.DecodeString(container.EncryptedData)
	if err != nil {
		return 0, &ValidationError{Field: "container", Reason: "encrypted data is not valid base64"}
	}
	if crypto.CalculateChecksum(encrypted) != container.Checksum {
		return 0, &ValidationError{Field: "container", Reason: "checksum mismatch"}
	}

	payloadJSON, err := crypto.DecryptWithPassphrase(encrypted, passphrase)
	if err != nil {
		s.recordAudit(owner, actionImported, false, "", "", "decryption failed")
		return 0, fmt.Errorf("%w: container decryption failed", ErrDecryptionFailed)
	}

	var payload exportPayload
	if err = json.Unmarshal(payloadJSON, &payload); err != nil {
		return 0, &ValidationError{Field: "container", Reason: "payload is not a valid export"}
	}

	imported := 0
	for _, cred := range payload.Credentials {
		if !cred.Owner.Equals(owner) {
			continue
		}

		_, err := s.store.FindOne(ctx, cred.ID, owner)
		switch {
		case err == nil:
			// Already present, leave it alone.
			continue
		case errors.Is(err, ErrNotFound):
		default:
			return imported, wrapPersistence("import", err)
		}

		if err = s.store.Save(ctx, cred); err != nil {
			wrapped := wrapPersistence("import", err)
			s.recordAudit(owner, actionImported, false, cred.ID, cred.Provider, wrapped.Error())
			return imported, wrapped
		}
		imported++
	}

	s.recordAudit(owner, actionImported, true, "", "", "")
	return imported, nil
}
