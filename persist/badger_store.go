package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/harborlock/credvault"
)

// Key prefix for BadgerDB storage organization. Single byte for efficiency;
// further segments are joined with 0x00 separators, which cannot appear in
// validated tenant identifiers or UUIDs.
const prefixCredential = byte(0x01)

// BadgerStore keeps records in an embedded BadgerDB database with ACID
// transactions and crash recovery.
//
// Key structure: 0x01 + orgID + 0x00 + userID + 0x00 + credentialID ->
// JSON(Credential). Prefix scans over 0x01 + orgID + 0x00 + userID + 0x00
// give tenant-scoped listings without touching other tenants' keys.
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// DataDir is the directory for data files. Ignored when InMemory.
	DataDir string `json:"data_dir"`

	// InMemory runs BadgerDB without persistence. Useful for testing.
	InMemory bool `json:"in_memory"`

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool `json:"sync_writes"`
}

var _ credvault.Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for badger store")
	}

	badgerOpts := badger.DefaultOptions(opts.DataDir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func credentialKey(owner credvault.Owner, id string) ([]byte, error) {
	if err := validateTenantSegment(owner.OrgID); err != nil {
		return nil, fmt.Errorf("invalid org ID: %w", err)
	}
	if err := validateTenantSegment(owner.UserID); err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	var key bytes.Buffer
	key.WriteByte(prefixCredential)
	key.WriteString(owner.OrgID)
	key.WriteByte(0x00)
	key.WriteString(owner.UserID)
	key.WriteByte(0x00)
	key.WriteString(id)
	return key.Bytes(), nil
}

func tenantPrefix(owner credvault.Owner) ([]byte, error) {
	return credentialKey(owner, "")
}

func (b *BadgerStore) Save(ctx context.Context, cred *credvault.Credential) error {
	key, err := credentialKey(cred.Owner, cred.ID)
	if err != nil {
		return err
	}

	value, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to serialize credential: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return &ConflictError{ID: cred.ID}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
}

func (b *BadgerStore) FindOne(ctx context.Context, id string, owner credvault.Owner) (*credvault.Credential, error) {
	key, err := credentialKey(owner, id)
	if err != nil {
		return nil, err
	}

	var cred *credvault.Credential
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return credvault.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cred = &credvault.Credential{}
			return json.Unmarshal(val, cred)
		})
	})
	if err != nil {
		return nil, err
	}

	if !cred.IsActive || !cred.Owner.Equals(owner) {
		return nil, credvault.ErrNotFound
	}
	return cred, nil
}

func (b *BadgerStore) FindMany(ctx context.Context, owner credvault.Owner, provider credvault.Provider) ([]*credvault.Credential, error) {
	prefix, err := tenantPrefix(owner)
	if err != nil {
		return nil, err
	}

	var out []*credvault.Credential
	err = b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var cred credvault.Credential
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cred)
			})
			if err != nil {
				return err
			}

			if !cred.IsActive || !cred.Owner.Equals(owner) {
				continue
			}
			if provider != "" && cred.Provider != provider {
				continue
			}
			out = append(out, &cred)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortByCreatedAt(out)
	return out, nil
}

func (b *BadgerStore) Update(ctx context.Context, id string, owner credvault.Owner, patch credvault.StorePatch) (*credvault.Credential, error) {
	key, err := credentialKey(owner, id)
	if err != nil {
		return nil, err
	}

	var updated *credvault.Credential
	err = b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return credvault.ErrNotFound
		}
		if err != nil {
			return err
		}

		var cred credvault.Credential
		if err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cred)
		}); err != nil {
			return err
		}

		if !cred.IsActive || !cred.Owner.Equals(owner) {
			return credvault.ErrNotFound
		}

		patch.Apply(&cred)

		value, err := json.Marshal(&cred)
		if err != nil {
			return fmt.Errorf("failed to serialize credential: %w", err)
		}
		if err = txn.Set(key, value); err != nil {
			return err
		}

		updated = &cred
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (b *BadgerStore) Ping(ctx context.Context) error {
	if b.db.IsClosed() {
		return fmt.Errorf("badger database is closed")
	}
	return nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func (b *BadgerStore) GetType() string {
	return string(StoreTypeBadger)
}
