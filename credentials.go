package credvault

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateCredential encrypts the secret map under a freshly derived key and
// persists the new record.
//
// The secret map is serialized to JSON, sealed into a versioned envelope
// (fresh 64-byte salt, fresh nonce), and stored. Plaintext bytes exist only
// for the duration of this call; they are never written to the store, the
// audit trail, or any error. The returned summary excludes the envelope.
func (s *Service) CreateCredential(ctx context.Context, req CreateRequest) (CredentialSummary, error) {
	if err := validateOwner(req.Owner); err != nil {
		return CredentialSummary{}, err
	}
	if !req.Provider.Valid() {
		return CredentialSummary{}, &ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", req.Provider)}
	}
	if strings.TrimSpace(req.Label) == "" {
		return CredentialSummary{}, &ValidationError{Field: "label", Reason: "must not be empty"}
	}

	plaintext, err := s.marshalSecret(req.Secret)
	if err != nil {
		return CredentialSummary{}, err
	}

	envelope, err := s.seal(plaintext)
	if err != nil {
		s.recordAudit(req.Owner, actionCreated, false, "", req.Provider, "encryption failed")
		return CredentialSummary{}, err
	}

	now := s.clock.Now()
	cred := &Credential{
		ID:        uuid.NewString(),
		Owner:     req.Owner,
		Provider:  req.Provider,
		Label:     strings.TrimSpace(req.Label),
		Envelope:  envelope,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: req.ExpiresAt,
		IsActive:  true,
	}

	if err = s.store.Save(ctx, cred); err != nil {
		wrapped := wrapPersistence("save", err)
		s.recordAudit(req.Owner, actionCreated, false, cred.ID, req.Provider, wrapped.Error())
		return CredentialSummary{}, wrapped
	}

	s.recordAudit(req.Owner, actionCreated, true, cred.ID, req.Provider, "")
	return cred.Summary(), nil
}

// GetCredential loads and decrypts a credential for its owner.
//
// Absent, soft-deleted, and foreign-tenant records all fail with ErrNotFound
// so existence never leaks across tenants. On successful decryption the
// LastUsedAt timestamp is advanced asynchronously; the decrypted map is
// returned to the caller and exists nowhere else.
func (s *Service) GetCredential(ctx context.Context, id string, owner Owner) (*CredentialSecret, error) {
	cred, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	secret, err := s.open(cred.Envelope)
	if err != nil {
		s.recordAudit(owner, actionUsed, false, id, cred.Provider, "decryption failed")
		return nil, err
	}

	usedAt := s.clock.Now()
	s.touchLastUsed(id, owner, usedAt)
	s.recordAudit(owner, actionUsed, true, id, cred.Provider, "")

	summary := cred.Summary()
	summary.LastUsedAt = &usedAt
	return &CredentialSecret{Secret: secret, Summary: summary}, nil
}

// ListCredentials returns summaries of the owner's active records. Envelopes
// are never opened on this path.
func (s *Service) ListCredentials(ctx context.Context, owner Owner, provider Provider) ([]CredentialSummary, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if provider != "" && !provider.Valid() {
		return nil, &ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", provider)}
	}

	creds, err := s.store.FindMany(ctx, owner, provider)
	if err != nil {
		return nil, wrapPersistence("list", err)
	}

	summaries := make([]CredentialSummary, 0, len(creds))
	for _, cred := range creds {
		summaries = append(summaries, cred.Summary())
	}

	s.recordAudit(owner, actionListed, true, "", provider, "")
	return summaries, nil
}

// UpdateCredential applies a partial update under the same not-found rules
// as GetCredential.
//
// When the request carries a new secret map the envelope is rebuilt from
// scratch: new salt, new derived key, new nonce. The old envelope's salt and
// nonce are never reused. Label, metadata, and expiry updates do not touch
// the envelope at all.
func (s *Service) UpdateCredential(ctx context.Context, id string, owner Owner, req UpdateRequest) (CredentialSummary, error) {
	cred, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return CredentialSummary{}, err
	}

	patch := StorePatch{}
	changed := false

	if req.Label != nil {
		label := strings.TrimSpace(*req.Label)
		if label == "" {
			return CredentialSummary{}, &ValidationError{Field: "label", Reason: "must not be empty"}
		}
		patch.Label = &label
		changed = true
	}
	if req.Metadata != nil {
		patch.Metadata = req.Metadata
		changed = true
	}
	if req.ClearExpiry {
		if req.ExpiresAt != nil {
			return CredentialSummary{}, &ValidationError{Field: "expires_at", Reason: "cannot set and clear expiry in the same request"}
		}
		patch.ClearExpiry = true
		changed = true
	}
	if req.ExpiresAt != nil {
		patch.ExpiresAt = req.ExpiresAt
		changed = true
	}
	if req.Secret != nil {
		plaintext, err := s.marshalSecret(req.Secret)
		if err != nil {
			return CredentialSummary{}, err
		}
		envelope, err := s.seal(plaintext)
		if err != nil {
			s.recordAudit(owner, actionUpdated, false, id, cred.Provider, "encryption failed")
			return CredentialSummary{}, err
		}
		patch.Envelope = &envelope
		changed = true
	}

	if !changed {
		return CredentialSummary{}, &ValidationError{Field: "updates", Reason: "no fields to update"}
	}

	now := s.clock.Now()
	patch.UpdatedAt = &now

	updated, err := s.store.Update(ctx, id, owner, patch)
	if err != nil {
		wrapped := wrapPersistence("update", err)
		s.recordAudit(owner, actionUpdated, false, id, cred.Provider, wrapped.Error())
		return CredentialSummary{}, wrapped
	}

	s.recordAudit(owner, actionUpdated, true, id, cred.Provider, "")
	return updated.Summary(), nil
}

// DeleteCredential soft-deletes the record by flipping IsActive to false.
// The transition is terminal and the row is retained for audit; physical
// purging is a retention concern of the persistence collaborator. Deleting
// an absent or already-deleted record fails with ErrNotFound rather than
// silently succeeding, so caller bugs surface.
func (s *Service) DeleteCredential(ctx context.Context, id string, owner Owner) error {
	cred, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	inactive := false
	patch := StorePatch{IsActive: &inactive, UpdatedAt: &now}

	if _, err = s.store.Update(ctx, id, owner, patch); err != nil {
		wrapped := wrapPersistence("delete", err)
		s.recordAudit(owner, actionDeleted, false, id, cred.Provider, wrapped.Error())
		return wrapped
	}

	s.recordAudit(owner, actionDeleted, true, id, cred.Provider, "")
	return nil
}

// ValidateCredential checks that the record exists, is active, decrypts
// successfully, and has not expired.
//
// Expiry is a derived read-time predicate, not a stored state: an expired
// but active record still decrypts through GetCredential, and only this
// operation enforces the gate.
func (s *Service) ValidateCredential(ctx context.Context, id string, owner Owner) error {
	cred, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return err
	}

	if _, err = s.open(cred.Envelope); err != nil {
		s.recordAudit(owner, actionValidated, false, id, cred.Provider, "decryption failed")
		return err
	}

	if cred.Expired(s.clock.Now()) {
		s.recordAudit(owner, actionValidated, false, id, cred.Provider, "expired")
		return ErrExpired
	}

	s.recordAudit(owner, actionValidated, true, id, cred.Provider, "")
	return nil
}

// loadOwned fetches the record and re-confirms owner equality before any
// envelope is opened. The store already filters by tenant; this second check
// keeps the invariant local to the service instead of trusting the
// collaborator with it.
func (s *Service) loadOwned(ctx context.Context, id string, owner Owner) (*Credential, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}

	cred, err := s.store.FindOne(ctx, id, owner)
	if err != nil {
		return nil, wrapPersistence("find", err)
	}
	if cred == nil || !cred.IsActive || !cred.Owner.Equals(owner) {
		return nil, ErrNotFound
	}
	return cred, nil
}

// marshalSecret serializes and size-checks a secret map.
func (s *Service) marshalSecret(secret SecretMap) ([]byte, error) {
	if secret == nil {
		return nil, &ValidationError{Field: "secret", Reason: "must not be nil"}
	}
	plaintext, err := json.Marshal(secret)
	if err != nil {
		return nil, &ValidationError{Field: "secret", Reason: "not serializable"}
	}
	if len(plaintext) > s.maxSecret {
		return nil, &ValidationError{Field: "secret", Reason: fmt.Sprintf("serialized size exceeds %d bytes", s.maxSecret)}
	}
	return plaintext, nil
}

// seal encrypts plaintext with the current master secret. The master key
// buffer lives only for the duration of the call.
func (s *Service) seal(plaintext []byte) (string, error) {
	master, err := s.masterKey.Current()
	if err != nil {
		return "", fmt.Errorf("master key not available: %w", err)
	}
	defer master.Destroy()

	return EncryptEnvelope(plaintext, master.Bytes())
}

// open decrypts an envelope and deserializes the secret map.
func (s *Service) open(envelope string) (SecretMap, error) {
	master, err := s.masterKey.Current()
	if err != nil {
		return nil, fmt.Errorf("master key not available: %w", err)
	}
	defer master.Destroy()

	plaintext, err := DecryptEnvelope(envelope, master.Bytes())
	if err != nil {
		return nil, err
	}

	var secret SecretMap
	if err = json.Unmarshal(plaintext, &secret); err != nil {
		return nil, fmt.Errorf("%w: stored payload is not a JSON object", ErrDecryptionFailed)
	}
	return secret, nil
}

func validateOwner(owner Owner) error {
	if owner.UserID == "" {
		return &ValidationError{Field: "owner_user_id", Reason: "must not be empty"}
	}
	if owner.OrgID == "" {
		return &ValidationError{Field: "owner_org_id", Reason: "must not be empty"}
	}
	return nil
}
