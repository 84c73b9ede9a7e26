package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harborlock/credvault"
)

// NewStore builds a Store from configuration. The Config map is decoded
// into the backend's own config struct via a JSON round trip, so callers
// can hand over values straight from a parsed config file.
func NewStore(ctx context.Context, config StoreConfig) (credvault.Store, error) {
	switch config.Type {
	case StoreTypeMemory:
		return NewMemoryStore(), nil

	case StoreTypeFileSystem:
		basePath, _ := config.Config["base_path"].(string)
		return NewFileSystemStore(basePath)

	case StoreTypeBadger:
		var opts BadgerOptions
		if err := decodeConfig(config.Config, &opts); err != nil {
			return nil, err
		}
		return NewBadgerStore(opts)

	case StoreTypePostgres:
		dsn, _ := config.Config["dsn"].(string)
		return NewPostgresStore(ctx, dsn)

	case StoreTypeS3:
		var s3Config S3Config
		if err := decodeConfig(config.Config, &s3Config); err != nil {
			return nil, err
		}
		return NewS3Store(s3Config)

	default:
		return nil, fmt.Errorf("unknown store type: %q", config.Type)
	}
}

func decodeConfig(raw map[string]any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal store config: %w", err)
	}
	if err = json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse store config: %w", err)
	}
	return nil
}
