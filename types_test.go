package credvault

import (
	"testing"
	"time"
)

func TestProviderValid(t *testing.T) {
	for _, p := range []Provider{ProviderGoogleSheets, ProviderSlack, ProviderGitHub,
		ProviderStripe, ProviderWebhook, ProviderCustom} {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	for _, p := range []Provider{"", "slack", "UNKNOWN"} {
		if p.Valid() {
			t.Errorf("%q should be invalid", p)
		}
	}
}

func TestOwnerEquals(t *testing.T) {
	a := Owner{UserID: "u1", OrgID: "o1"}
	if !a.Equals(Owner{UserID: "u1", OrgID: "o1"}) {
		t.Error("identical owners should be equal")
	}
	if a.Equals(Owner{UserID: "u1", OrgID: "o2"}) {
		t.Error("different org must not be equal")
	}
	if a.Equals(Owner{UserID: "u2", OrgID: "o1"}) {
		t.Error("different user must not be equal")
	}
}

func TestCredentialExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if (&Credential{}).Expired(now) {
		t.Error("credential without expiry never expires")
	}
	if (&Credential{ExpiresAt: &future}).Expired(now) {
		t.Error("future expiry is not expired")
	}
	if !(&Credential{ExpiresAt: &past}).Expired(now) {
		t.Error("past expiry is expired")
	}
}

func TestStorePatchApply(t *testing.T) {
	now := time.Now().UTC()
	cred := &Credential{
		Label:    "old",
		Envelope: "old-envelope",
		IsActive: true,
	}

	label := "new"
	envelope := "new-envelope"
	inactive := false
	StorePatch{
		Label:     &label,
		Envelope:  &envelope,
		Metadata:  map[string]string{"k": "v"},
		IsActive:  &inactive,
		UpdatedAt: &now,
	}.Apply(cred)

	if cred.Label != "new" || cred.Envelope != "new-envelope" {
		t.Error("patch fields were not applied")
	}
	if cred.Metadata["k"] != "v" {
		t.Error("metadata was not replaced")
	}
	if cred.IsActive {
		t.Error("IsActive was not applied")
	}
	if !cred.UpdatedAt.Equal(now) {
		t.Error("UpdatedAt was not applied")
	}

	// Nil fields leave the record untouched.
	StorePatch{}.Apply(cred)
	if cred.Label != "new" {
		t.Error("empty patch must not modify the record")
	}
}

func TestStorePatchClearExpiry(t *testing.T) {
	expiry := time.Now().UTC().Add(time.Hour)
	cred := &Credential{ExpiresAt: &expiry}

	StorePatch{ClearExpiry: true}.Apply(cred)
	if cred.ExpiresAt != nil {
		t.Error("ClearExpiry must remove the expiry")
	}
}

func TestStorePatchLastUsedMonotonic(t *testing.T) {
	earlier := time.Now().UTC()
	later := earlier.Add(time.Minute)

	cred := &Credential{}
	StorePatch{LastUsedAt: &later}.Apply(cred)
	if cred.LastUsedAt == nil || !cred.LastUsedAt.Equal(later) {
		t.Fatal("first touch should set LastUsedAt")
	}

	// A stale touch arriving late must not rewind the timestamp.
	StorePatch{LastUsedAt: &earlier}.Apply(cred)
	if !cred.LastUsedAt.Equal(later) {
		t.Error("LastUsedAt must never move backwards")
	}
}
