package persist

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harborlock/credvault"
)

var (
	testOwner  = credvault.Owner{UserID: "alice", OrgID: "acme"}
	otherOwner = credvault.Owner{UserID: "mallory", OrgID: "rivalcorp"}
)

func testCredential(id string, owner credvault.Owner, createdAt time.Time) *credvault.Credential {
	return &credvault.Credential{
		ID:        id,
		Owner:     owner,
		Provider:  credvault.ProviderSlack,
		Label:     "label-" + id,
		Envelope:  "AWZha2UtZW52ZWxvcGUtYnl0ZXM=",
		Metadata:  map[string]string{"source": "test"},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		IsActive:  true,
	}
}

// backends under test. Badger runs in memory so the suite stays hermetic;
// postgres and s3 need live services and are exercised by their own
// deployments.
func storesUnderTest(t *testing.T) map[string]credvault.Store {
	t.Helper()

	fsStore, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	badgerStore, err := NewBadgerStore(BadgerOptions{InMemory: true})
	require.NoError(t, err)

	return map[string]credvault.Store{
		"memory":     NewMemoryStore(),
		"filesystem": fsStore,
		"badger":     badgerStore,
	}
}

func TestStoreSaveAndFindOne(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			cred := testCredential("cred-1", testOwner, time.Now().UTC())
			require.NoError(t, store.Save(ctx, cred))

			found, err := store.FindOne(ctx, "cred-1", testOwner)
			require.NoError(t, err)
			require.Equal(t, cred.ID, found.ID)
			require.Equal(t, cred.Envelope, found.Envelope)
			require.Equal(t, cred.Metadata, found.Metadata)

			_, err = store.FindOne(ctx, "does-not-exist", testOwner)
			require.ErrorIs(t, err, credvault.ErrNotFound)
		})
	}
}

func TestStoreSaveConflict(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			cred := testCredential("dup", testOwner, time.Now().UTC())
			require.NoError(t, store.Save(ctx, cred))

			err := store.Save(ctx, testCredential("dup", testOwner, time.Now().UTC()))
			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			require.Equal(t, "dup", conflict.ID)
		})
	}
}

func TestStoreTenantIsolation(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, testCredential("mine", testOwner, time.Now().UTC())))

			_, err := store.FindOne(ctx, "mine", otherOwner)
			require.ErrorIs(t, err, credvault.ErrNotFound)

			_, err = store.Update(ctx, "mine", otherOwner, credvault.StorePatch{})
			require.ErrorIs(t, err, credvault.ErrNotFound)

			foreign, err := store.FindMany(ctx, otherOwner, "")
			require.NoError(t, err)
			require.Empty(t, foreign)

			// Same org but different user is still a different tenant.
			sibling := credvault.Owner{UserID: "bob", OrgID: testOwner.OrgID}
			_, err = store.FindOne(ctx, "mine", sibling)
			require.ErrorIs(t, err, credvault.ErrNotFound)
		})
	}
}

func TestStoreFindMany(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()
			base := time.Now().UTC()

			oldest := testCredential("a-oldest", testOwner, base.Add(-2*time.Hour))
			middle := testCredential("b-middle", testOwner, base.Add(-time.Hour))
			newest := testCredential("c-newest", testOwner, base)
			newest.Provider = credvault.ProviderGitHub

			for _, cred := range []*credvault.Credential{oldest, middle, newest} {
				require.NoError(t, store.Save(ctx, cred))
			}

			all, err := store.FindMany(ctx, testOwner, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			require.Equal(t, "c-newest", all[0].ID)
			require.Equal(t, "b-middle", all[1].ID)
			require.Equal(t, "a-oldest", all[2].ID)

			slackOnly, err := store.FindMany(ctx, testOwner, credvault.ProviderSlack)
			require.NoError(t, err)
			require.Len(t, slackOnly, 2)
			for _, cred := range slackOnly {
				require.Equal(t, credvault.ProviderSlack, cred.Provider)
			}
		})
	}
}

func TestStoreUpdatePatch(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, testCredential("patch-me", testOwner, time.Now().UTC())))

			label := "renamed"
			envelope := "AW5ldy1lbnZlbG9wZQ=="
			now := time.Now().UTC().Add(time.Minute)
			updated, err := store.Update(ctx, "patch-me", testOwner, credvault.StorePatch{
				Label:     &label,
				Envelope:  &envelope,
				UpdatedAt: &now,
			})
			require.NoError(t, err)
			require.Equal(t, "renamed", updated.Label)
			require.Equal(t, envelope, updated.Envelope)

			found, err := store.FindOne(ctx, "patch-me", testOwner)
			require.NoError(t, err)
			require.Equal(t, "renamed", found.Label)
			require.Equal(t, envelope, found.Envelope)
		})
	}
}

func TestStoreSoftDeleteHidesRecord(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, testCredential("gone", testOwner, time.Now().UTC())))

			inactive := false
			_, err := store.Update(ctx, "gone", testOwner, credvault.StorePatch{IsActive: &inactive})
			require.NoError(t, err)

			_, err = store.FindOne(ctx, "gone", testOwner)
			require.ErrorIs(t, err, credvault.ErrNotFound)

			listed, err := store.FindMany(ctx, testOwner, "")
			require.NoError(t, err)
			require.Empty(t, listed)

			// Further updates treat the record as missing.
			label := "resurrect"
			_, err = store.Update(ctx, "gone", testOwner, credvault.StorePatch{Label: &label})
			require.ErrorIs(t, err, credvault.ErrNotFound)
		})
	}
}

func TestStorePing(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			require.NoError(t, store.Ping(context.Background()))
			require.NotEmpty(t, store.GetType())
		})
	}
}

func TestStoreRejectsBadTenantSegments(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		if name == "memory" {
			// The memory store keys by ID alone and never builds paths.
			continue
		}
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			for _, owner := range []credvault.Owner{
				{UserID: "alice", OrgID: "../escape"},
				{UserID: "a/b", OrgID: "acme"},
				{UserID: "alice", OrgID: ""},
			} {
				err := store.Save(ctx, testCredential("x", owner, time.Now().UTC()))
				require.Error(t, err, "owner %v should be rejected", owner)
			}
		})
	}
}

func TestValidateTenantSegment(t *testing.T) {
	require.NoError(t, validateTenantSegment("acme-corp_01"))

	for _, bad := range []string{"", "..", "a/b", `a\b`, "has space",
		fmt.Sprintf("%0101d", 1)} {
		require.Error(t, validateTenantSegment(bad), "segment %q", bad)
	}
}

func TestCloneCredentialIsDeep(t *testing.T) {
	expiry := time.Now().UTC()
	orig := testCredential("clone", testOwner, time.Now().UTC())
	orig.ExpiresAt = &expiry

	clone := cloneCredential(orig)
	clone.Metadata["source"] = "mutated"
	*clone.ExpiresAt = expiry.Add(time.Hour)

	require.Equal(t, "test", orig.Metadata["source"])
	require.True(t, orig.ExpiresAt.Equal(expiry))
}

func TestMemoryStoreDump(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCredential("one", testOwner, time.Now().UTC())))
	require.NoError(t, store.Save(ctx, testCredential("two", otherOwner, time.Now().UTC())))

	inactive := false
	_, err := store.Update(ctx, "one", testOwner, credvault.StorePatch{IsActive: &inactive})
	require.NoError(t, err)

	// Dump crosses tenants and includes inactive rows; it exists so tests
	// can assert on retention.
	require.Len(t, store.Dump(), 2)
}
