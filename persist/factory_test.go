package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore(context.Background(), StoreConfig{Type: StoreTypeMemory})
	require.NoError(t, err)
	defer store.Close()
	require.Equal(t, string(StoreTypeMemory), store.GetType())
}

func TestNewStoreFileSystem(t *testing.T) {
	store, err := NewStore(context.Background(), StoreConfig{
		Type:   StoreTypeFileSystem,
		Config: map[string]any{"base_path": t.TempDir()},
	})
	require.NoError(t, err)
	defer store.Close()
	require.Equal(t, string(StoreTypeFileSystem), store.GetType())
}

func TestNewStoreBadger(t *testing.T) {
	store, err := NewStore(context.Background(), StoreConfig{
		Type:   StoreTypeBadger,
		Config: map[string]any{"in_memory": true},
	})
	require.NoError(t, err)
	defer store.Close()
	require.Equal(t, string(StoreTypeBadger), store.GetType())
}

func TestNewStoreMissingRequiredConfig(t *testing.T) {
	_, err := NewStore(context.Background(), StoreConfig{Type: StoreTypeFileSystem})
	require.Error(t, err)

	_, err = NewStore(context.Background(), StoreConfig{Type: StoreTypeBadger})
	require.Error(t, err)

	_, err = NewStore(context.Background(), StoreConfig{Type: "cassandra"})
	require.Error(t, err)
}
