package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/harborlock/credvault"
)

const (
	FilePermissions os.FileMode = 0600
	DirPermissions  os.FileMode = 0700

	containerFileName = "credentials.json"
)

// FileSystemStore keeps one JSON container per tenant under
//
//	basePath/<orgID>/<userID>/credentials.json
//
// Tenant isolation falls out of the directory layout: a lookup simply never
// opens another tenant's path. Writes go through a temp file and rename so a
// concurrent reader never observes a half-written container, and each
// container carries a version counter checked before every write; a
// mismatch (another process wrote in between) surfaces as ConcurrencyError.
type FileSystemStore struct {
	basePath string
	mu       sync.Mutex
}

// tenantContainer is the on-disk shape of one tenant's records.
type tenantContainer struct {
	Version     int64                            `json:"version"`
	Credentials map[string]*credvault.Credential `json:"credentials"`
}

var _ credvault.Store = (*FileSystemStore)(nil)

// NewFileSystemStore initializes a store rooted at basePath.
func NewFileSystemStore(basePath string) (*FileSystemStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path is required for filesystem store")
	}
	if err := os.MkdirAll(basePath, DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FileSystemStore{basePath: basePath}, nil
}

func (fs *FileSystemStore) containerPath(owner credvault.Owner) (string, error) {
	if err := validateTenantSegment(owner.OrgID); err != nil {
		return "", fmt.Errorf("invalid org ID: %w", err)
	}
	if err := validateTenantSegment(owner.UserID); err != nil {
		return "", fmt.Errorf("invalid user ID: %w", err)
	}
	return filepath.Join(fs.basePath, owner.OrgID, owner.UserID, containerFileName), nil
}

// loadContainer reads the tenant container, returning an empty one when the
// tenant has no records yet.
func (fs *FileSystemStore) loadContainer(path string) (*tenantContainer, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &tenantContainer{Credentials: make(map[string]*credvault.Credential)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read container: %w", err)
	}

	var container tenantContainer
	if err = json.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("failed to parse container: %w", err)
	}
	if container.Credentials == nil {
		container.Credentials = make(map[string]*credvault.Credential)
	}
	return &container, nil
}

// writeContainer persists the container atomically after verifying that the
// on-disk version still matches the one the caller loaded.
func (fs *FileSystemStore) writeContainer(path string, container *tenantContainer, loadedVersion int64) error {
	current, err := fs.loadContainer(path)
	if err != nil {
		return err
	}
	if current.Version != loadedVersion {
		return ConcurrencyError{
			ExpectedVersion: loadedVersion,
			ActualVersion:   current.Version,
			Operation:       "write container",
		}
	}

	container.Version = loadedVersion + 1

	data, err := json.MarshalIndent(container, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize container: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), DirPermissions); err != nil {
		return fmt.Errorf("failed to create tenant directory: %w", err)
	}

	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, FilePermissions); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit container: %w", err)
	}
	return nil
}

func (fs *FileSystemStore) Save(ctx context.Context, cred *credvault.Credential) error {
	path, err := fs.containerPath(cred.Owner)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	container, err := fs.loadContainer(path)
	if err != nil {
		return err
	}
	if _, exists := container.Credentials[cred.ID]; exists {
		return &ConflictError{ID: cred.ID}
	}

	container.Credentials[cred.ID] = cloneCredential(cred)
	return fs.writeContainer(path, container, container.Version)
}

func (fs *FileSystemStore) FindOne(ctx context.Context, id string, owner credvault.Owner) (*credvault.Credential, error) {
	path, err := fs.containerPath(owner)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	container, err := fs.loadContainer(path)
	if err != nil {
		return nil, err
	}

	cred, ok := container.Credentials[id]
	if !ok || !cred.IsActive || !cred.Owner.Equals(owner) {
		return nil, credvault.ErrNotFound
	}
	return cloneCredential(cred), nil
}

func (fs *FileSystemStore) FindMany(ctx context.Context, owner credvault.Owner, provider credvault.Provider) ([]*credvault.Credential, error) {
	path, err := fs.containerPath(owner)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	container, err := fs.loadContainer(path)
	if err != nil {
		return nil, err
	}

	var out []*credvault.Credential
	for _, cred := range container.Credentials {
		if !cred.IsActive || !cred.Owner.Equals(owner) {
			continue
		}
		if provider != "" && cred.Provider != provider {
			continue
		}
		out = append(out, cloneCredential(cred))
	}
	sortByCreatedAt(out)
	return out, nil
}

func (fs *FileSystemStore) Update(ctx context.Context, id string, owner credvault.Owner, patch credvault.StorePatch) (*credvault.Credential, error) {
	path, err := fs.containerPath(owner)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	container, err := fs.loadContainer(path)
	if err != nil {
		return nil, err
	}

	cred, ok := container.Credentials[id]
	if !ok || !cred.IsActive || !cred.Owner.Equals(owner) {
		return nil, credvault.ErrNotFound
	}

	patch.Apply(cred)
	if err = fs.writeContainer(path, container, container.Version); err != nil {
		return nil, err
	}
	return cloneCredential(cred), nil
}

func (fs *FileSystemStore) Ping(ctx context.Context) error {
	_, err := os.Stat(fs.basePath)
	return err
}

func (fs *FileSystemStore) Close() error {
	return nil
}

func (fs *FileSystemStore) GetType() string {
	return string(StoreTypeFileSystem)
}
