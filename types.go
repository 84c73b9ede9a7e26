package credvault

import (
	"context"
	"fmt"
	"time"
)

// Provider identifies the third-party integration a credential belongs to.
//
// The set is closed except for ProviderCustom, which covers integrations the
// platform has no first-class support for. Provider values are stored in
// clear; they are display metadata, not secret material.
type Provider string

const (
	ProviderGoogleSheets Provider = "GOOGLE_SHEETS"
	ProviderSlack        Provider = "SLACK"
	ProviderGitHub       Provider = "GITHUB"
	ProviderStripe       Provider = "STRIPE"
	ProviderWebhook      Provider = "WEBHOOK"
	ProviderCustom       Provider = "CUSTOM"
)

// Valid reports whether p is one of the known provider kinds.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogleSheets, ProviderSlack, ProviderGitHub,
		ProviderStripe, ProviderWebhook, ProviderCustom:
		return true
	}
	return false
}

// Owner is the tenant-scoping pair. Every read and write against the store
// is filtered by both fields; a mismatch on either one is indistinguishable
// from the record not existing.
type Owner struct {
	UserID string `json:"owner_user_id"`
	OrgID  string `json:"owner_org_id"`
}

// Equals reports whether two owners match on both tenant dimensions.
func (o Owner) Equals(other Owner) bool {
	return o.UserID == other.UserID && o.OrgID == other.OrgID
}

func (o Owner) String() string {
	return fmt.Sprintf("%s/%s", o.OrgID, o.UserID)
}

// SecretMap is the decrypted shape of a credential's secret material, for
// example {"botToken": "xoxb-..."} for a Slack integration. It must be
// JSON-serializable; nested objects and arrays are allowed.
type SecretMap map[string]any

// Credential is the stored record. The secret material exists only inside
// Envelope, which holds the versioned authenticated-encryption blob produced
// by EncryptEnvelope. Everything else is stored in clear.
type Credential struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`

	// Owner scopes the record to a tenant. Immutable after creation.
	Owner Owner `json:"owner"`

	Provider Provider `json:"provider"`

	// Label is a free-text display name. Not secret, but also never used
	// for lookups.
	Label string `json:"label"`

	// Envelope is the base64-encoded encrypted blob. It is the only place
	// the secret exists at rest and is opaque to every layer below the
	// envelope cipher.
	Envelope string `json:"envelope"`

	// Metadata holds non-secret display hints (icon, account email, scopes
	// granted). Stored in clear, returned on summaries.
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`

	// IsActive is false once the record has been soft-deleted. Inactive
	// records are retained for audit but excluded from every read path,
	// and the transition is terminal.
	IsActive bool `json:"is_active"`
}

// Summary converts the record to its non-secret projection.
func (c *Credential) Summary() CredentialSummary {
	return CredentialSummary{
		ID:         c.ID,
		Owner:      c.Owner,
		Provider:   c.Provider,
		Label:      c.Label,
		Metadata:   c.Metadata,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		LastUsedAt: c.LastUsedAt,
		ExpiresAt:  c.ExpiresAt,
	}
}

// Expired reports whether the credential carries an expiry in the past
// relative to now. Records without an expiry never expire.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// CredentialSummary is the caller-facing view of a credential. It carries
// every stored field except the envelope, so it can be logged, listed, and
// rendered without any risk of leaking secret material.
type CredentialSummary struct {
	ID         string            `json:"id"`
	Owner      Owner             `json:"owner"`
	Provider   Provider          `json:"provider"`
	Label      string            `json:"label"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	LastUsedAt *time.Time        `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// CredentialSecret is the result of a successful GetCredential call. The
// secret map is decrypted on the fly and never persisted in this form.
type CredentialSecret struct {
	Secret  SecretMap
	Summary CredentialSummary
}

// CreateRequest carries the inputs to CreateCredential.
type CreateRequest struct {
	Owner     Owner
	Provider  Provider
	Secret    SecretMap
	Label     string
	Metadata  map[string]string
	ExpiresAt *time.Time
}

// UpdateRequest carries a partial update. Nil fields are left untouched.
// When Secret is present the envelope is rebuilt from scratch with a fresh
// salt and nonce; label and metadata updates never touch the envelope.
// ClearExpiry removes the expiry timestamp and must not be combined with
// ExpiresAt in the same request.
type UpdateRequest struct {
	Secret      SecretMap
	Label       *string
	Metadata    map[string]string
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// StorePatch is the unit of mutation applied by Store.Update. Nil fields are
// not modified. The store must apply the whole patch atomically relative to
// concurrent reads of the same record so a reader never observes a
// half-written envelope.
type StorePatch struct {
	Label       *string
	Envelope    *string
	Metadata    map[string]string
	ExpiresAt   *time.Time
	ClearExpiry bool
	LastUsedAt  *time.Time
	IsActive    *bool
	UpdatedAt   *time.Time
}

// Apply mutates cred in place according to the patch. Store implementations
// call it inside whatever transaction or critical section they use so patch
// semantics stay identical across backends. LastUsedAt only ever advances;
// an older timestamp arriving late (the touch path is asynchronous) is
// dropped to keep the field monotonically non-decreasing.
func (p StorePatch) Apply(cred *Credential) {
	if p.Label != nil {
		cred.Label = *p.Label
	}
	if p.Envelope != nil {
		cred.Envelope = *p.Envelope
	}
	if p.Metadata != nil {
		cred.Metadata = p.Metadata
	}
	if p.ClearExpiry {
		cred.ExpiresAt = nil
	} else if p.ExpiresAt != nil {
		cred.ExpiresAt = p.ExpiresAt
	}
	if p.LastUsedAt != nil {
		if cred.LastUsedAt == nil || p.LastUsedAt.After(*cred.LastUsedAt) {
			cred.LastUsedAt = p.LastUsedAt
		}
	}
	if p.IsActive != nil {
		cred.IsActive = *p.IsActive
	}
	if p.UpdatedAt != nil {
		cred.UpdatedAt = *p.UpdatedAt
	}
}

// Store is the persistence collaborator consumed by the credential service.
// All data handed to a Store is already encrypted by the envelope cipher;
// implementations only ever see opaque blobs plus clear metadata.
//
// Tenant filtering is mandatory at this boundary, not merely in the service
// layer: FindOne and Update must return ErrNotFound when the stored owner
// does not match, and FindMany must never return another tenant's records.
type Store interface {
	// Save persists a new record. It fails if the ID already exists.
	Save(ctx context.Context, cred *Credential) error

	// FindOne returns the record with the given id if it belongs to owner
	// and has not been soft-deleted, otherwise ErrNotFound.
	FindOne(ctx context.Context, id string, owner Owner) (*Credential, error)

	// FindMany returns the owner's active records, optionally filtered by
	// provider (empty provider means all). Results carry envelopes but the
	// service never decrypts them on the list path.
	FindMany(ctx context.Context, owner Owner, provider Provider) ([]*Credential, error)

	// Update applies patch to the record with the given id if it belongs
	// to owner, returning the updated record. Soft-deleted records are
	// only reachable when the patch does nothing but flip IsActive, which
	// never happens through the service; in practice Update on an inactive
	// record returns ErrNotFound.
	Update(ctx context.Context, id string, owner Owner, patch StorePatch) (*Credential, error)

	// Ping tests connectivity for remote backends.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error

	// GetType returns a short identifier for the backend ("memory",
	// "filesystem", "badger", "postgres", "s3").
	GetType() string
}
