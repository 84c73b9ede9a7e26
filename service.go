// Package credvault implements the credential vault: per-record key
// derivation, a versioned authenticated-encryption envelope, and the
// lifecycle and tenancy rules governing third-party integration secrets
// stored on behalf of many tenants.
//
// The cryptographic pieces (DeriveKey, EncryptEnvelope, DecryptEnvelope) are
// stateless pure functions. CredentialService is a thin orchestration layer
// over them; its only mutable state lives behind the injected Store, so any
// number of concurrent operations on different records are independent and
// no internal locking is required.
//
// Basic usage:
//
//	master, err := credvault.NewEnvMasterKey("CREDVAULT_MASTER_SECRET")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := credvault.NewService(credvault.ServiceOptions{
//	    Store:     store,
//	    MasterKey: master,
//	    Audit:     auditLogger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	summary, err := svc.CreateCredential(ctx, credvault.CreateRequest{
//	    Owner:    credvault.Owner{UserID: "u1", OrgID: "o1"},
//	    Provider: credvault.ProviderSlack,
//	    Secret:   credvault.SecretMap{"botToken": "xoxb-..."},
//	    Label:    "Prod Slack",
//	})
package credvault

import (
	"context"
	"errors"
	"time"

	"github.com/harborlock/credvault/audit"
	"github.com/rs/zerolog"
)

// MaxSecretBytes caps the serialized secret map size. Key derivation is
// deliberately CPU-bound, so an unbounded payload would let a caller tie up
// both cycles and memory; credential maps are small in practice.
const MaxSecretBytes = 1 << 20

// Audit action names emitted by the service.
const (
	actionCreated   = "credential_created"
	actionUsed      = "credential_used"
	actionUpdated   = "credential_updated"
	actionDeleted   = "credential_deleted"
	actionValidated = "credential_validated"
	actionListed    = "credentials_listed"
	actionExported  = "credentials_exported"
	actionImported  = "credentials_imported"
)

// CredentialService is the public surface of the vault core. Every operation
// is scoped by the caller's Owner pair; a credential belonging to a
// different tenant behaves exactly like one that does not exist.
type CredentialService interface {
	// CreateCredential serializes and encrypts the secret map under a
	// freshly derived key and persists the record. The returned summary
	// excludes the secret.
	CreateCredential(ctx context.Context, req CreateRequest) (CredentialSummary, error)

	// GetCredential loads, authenticates, and decrypts a credential. The
	// decrypted value is returned to the caller and never persisted.
	// LastUsedAt is advanced best-effort; a failure to persist the
	// timestamp never fails the read.
	GetCredential(ctx context.Context, id string, owner Owner) (*CredentialSecret, error)

	// ListCredentials returns the owner's active records' non-secret
	// fields. It never decrypts.
	ListCredentials(ctx context.Context, owner Owner, provider Provider) ([]CredentialSummary, error)

	// UpdateCredential applies a partial update. A new secret map is
	// re-encrypted with a fresh salt and nonce; label and metadata
	// updates leave the envelope untouched.
	UpdateCredential(ctx context.Context, id string, owner Owner, req UpdateRequest) (CredentialSummary, error)

	// DeleteCredential soft-deletes the record. Deleting an absent or
	// already-deleted record fails with ErrNotFound so caller bugs
	// surface instead of vanishing.
	DeleteCredential(ctx context.Context, id string, owner Owner) error

	// ValidateCredential succeeds only if the record exists, is active,
	// decrypts successfully, and has not expired.
	ValidateCredential(ctx context.Context, id string, owner Owner) error

	// ExportCredentials packages the owner's active records into a
	// passphrase-encrypted container. Envelopes stay encrypted inside.
	ExportCredentials(ctx context.Context, owner Owner, passphrase string) (*ExportContainer, error)

	// ImportCredentials restores records from an export container,
	// skipping IDs that already exist. Returns the number imported.
	ImportCredentials(ctx context.Context, owner Owner, container *ExportContainer, passphrase string) (int, error)

	// Close releases the store and audit sink.
	Close() error
}

// ServiceOptions configures NewService. Store and MasterKey are required;
// the rest default to no-op audit, the system clock, and a disabled logger.
type ServiceOptions struct {
	Store     Store
	MasterKey MasterKeyProvider
	Audit     audit.Logger
	Clock     Clock
	Logger    zerolog.Logger

	// MaxSecretBytes overrides the serialized secret size cap.
	// Zero means MaxSecretBytes.
	MaxSecretBytes int
}

// Service implements CredentialService.
type Service struct {
	store     Store
	masterKey MasterKeyProvider
	auditor   audit.Logger
	clock     Clock
	log       zerolog.Logger
	maxSecret int
}

var _ CredentialService = (*Service)(nil)

// NewService wires the collaborators together.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.MasterKey == nil {
		return nil, errors.New("master key provider is required")
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewNoOpLogger()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.MaxSecretBytes <= 0 {
		opts.MaxSecretBytes = MaxSecretBytes
	}

	return &Service{
		store:     opts.Store,
		masterKey: opts.MasterKey,
		auditor:   opts.Audit,
		clock:     opts.Clock,
		log:       opts.Logger,
		maxSecret: opts.MaxSecretBytes,
	}, nil
}

// Close releases the store and the audit sink.
func (s *Service) Close() error {
	storeErr := s.store.Close()
	auditErr := s.auditor.Close()
	if storeErr != nil {
		return storeErr
	}
	return auditErr
}

// recordAudit emits an audit event. Sink failures are logged and swallowed:
// auditing is fire-and-forget by contract.
func (s *Service) recordAudit(owner Owner, action string, success bool, credentialID string, provider Provider, errMsg string) {
	event := audit.Event{
		Timestamp:    s.clock.Now(),
		OrgID:        owner.OrgID,
		ActorID:      owner.UserID,
		Action:       action,
		Success:      success,
		CredentialID: credentialID,
		Provider:     string(provider),
		Error:        errMsg,
	}
	if err := s.auditor.Record(event); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("audit sink failure")
	}
}

// touchLastUsed advances LastUsedAt off the read path. The caller's context
// may already be done by the time this runs, so the write gets its own
// bounded context; failures are logged, never surfaced.
func (s *Service) touchLastUsed(id string, owner Owner, usedAt time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		patch := StorePatch{LastUsedAt: &usedAt}
		if _, err := s.store.Update(ctx, id, owner, patch); err != nil {
			s.log.Warn().Err(err).Str("credential_id", id).Msg("failed to persist last-used timestamp")
		}
	}()
}
