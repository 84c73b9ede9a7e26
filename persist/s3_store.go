package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/harborlock/credvault"
)

const s3OpTimeout = 10 * time.Second

// S3Store implements the Store interface against any S3-compatible backend
// via the MinIO client, with one object per record.
//
// Object layout:
//
//	bucket/
//	├── [keyPrefix/]org1/
//	│   ├── user1/
//	│   │   ├── 0b7a…e1.json    # one credential record
//	│   │   └── 4c2f…9d.json
//	│   └── user2/
//	│       └── …
//	└── [keyPrefix/]org2/
//	    └── …
//
// Tenant isolation follows from the key structure: every read and listing is
// scoped to the caller's org/user prefix.
type S3Store struct {
	client     *minio.Client
	bucketName string
	keyPrefix  string
}

// S3Config contains the connection settings for an S3-compatible backend.
type S3Config struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Bucket          string `json:"bucket"`
	KeyPrefix       string `json:"key_prefix"`
	UseSSL          bool   `json:"use_ssl"`
	Region          string `json:"region"`
}

var _ credvault.Store = (*S3Store)(nil)

// NewS3Store connects to the S3 endpoint and ensures the bucket exists.
func NewS3Store(config S3Config) (*S3Store, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for s3 store")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required for s3 store")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &S3Store{
		client:     client,
		bucketName: config.Bucket,
		keyPrefix:  strings.Trim(config.KeyPrefix, "/"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3OpTimeout)
	defer cancel()

	if err = store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return store, nil
}

func (s3s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err = s3s.client.MakeBucket(ctx, s3s.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s3s *S3Store) objectName(owner credvault.Owner, id string) (string, error) {
	prefix, err := s3s.tenantObjectPrefix(owner)
	if err != nil {
		return "", err
	}
	return prefix + id + ".json", nil
}

func (s3s *S3Store) tenantObjectPrefix(owner credvault.Owner) (string, error) {
	if err := validateTenantSegment(owner.OrgID); err != nil {
		return "", fmt.Errorf("invalid org ID: %w", err)
	}
	if err := validateTenantSegment(owner.UserID); err != nil {
		return "", fmt.Errorf("invalid user ID: %w", err)
	}

	parts := make([]string, 0, 3)
	if s3s.keyPrefix != "" {
		parts = append(parts, s3s.keyPrefix)
	}
	parts = append(parts, owner.OrgID, owner.UserID)
	return strings.Join(parts, "/") + "/", nil
}

func (s3s *S3Store) isNotFoundError(err error) bool {
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
	}
	return false
}

func (s3s *S3Store) putObject(ctx context.Context, objectName string, cred *credvault.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to serialize credential: %w", err)
	}

	_, err = s3s.client.PutObject(ctx, s3s.bucketName, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType: "application/json",
			UserMetadata: map[string]string{
				"provider":   string(cred.Provider),
				"updated-at": cred.UpdatedAt.Format(time.RFC3339),
			},
		})
	if err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

func (s3s *S3Store) getObject(ctx context.Context, objectName string) (*credvault.Credential, error) {
	object, err := s3s.client.GetObject(ctx, s3s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		if s3s.isNotFoundError(err) {
			return nil, credvault.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		// GetObject is lazy; a missing key can surface here instead.
		if s3s.isNotFoundError(err) {
			return nil, credvault.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	var cred credvault.Credential
	if err = json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &cred, nil
}

func (s3s *S3Store) Save(ctx context.Context, cred *credvault.Credential) error {
	objectName, err := s3s.objectName(cred.Owner, cred.ID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s3OpTimeout)
	defer cancel()

	_, err = s3s.client.StatObject(ctx, s3s.bucketName, objectName, minio.StatObjectOptions{})
	if err == nil {
		return &ConflictError{ID: cred.ID}
	}
	if !s3s.isNotFoundError(err) {
		return fmt.Errorf("failed to check object existence: %w", err)
	}

	return s3s.putObject(ctx, objectName, cred)
}

func (s3s *S3Store) FindOne(ctx context.Context, id string, owner credvault.Owner) (*credvault.Credential, error) {
	objectName, err := s3s.objectName(owner, id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s3OpTimeout)
	defer cancel()

	cred, err := s3s.getObject(ctx, objectName)
	if err != nil {
		return nil, err
	}
	if !cred.IsActive || !cred.Owner.Equals(owner) {
		return nil, credvault.ErrNotFound
	}
	return cred, nil
}

func (s3s *S3Store) FindMany(ctx context.Context, owner credvault.Owner, provider credvault.Provider) ([]*credvault.Credential, error) {
	prefix, err := s3s.tenantObjectPrefix(owner)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s3OpTimeout)
	defer cancel()

	objectCh := s3s.client.ListObjects(ctx, s3s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var out []*credvault.Credential
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if !strings.HasSuffix(object.Key, ".json") {
			continue
		}

		cred, err := s3s.getObject(ctx, object.Key)
		if err != nil {
			if errors.Is(err, credvault.ErrNotFound) {
				// Deleted between list and get.
				continue
			}
			return nil, err
		}

		if !cred.IsActive || !cred.Owner.Equals(owner) {
			continue
		}
		if provider != "" && cred.Provider != provider {
			continue
		}
		out = append(out, cred)
	}

	sortByCreatedAt(out)
	return out, nil
}

func (s3s *S3Store) Update(ctx context.Context, id string, owner credvault.Owner, patch credvault.StorePatch) (*credvault.Credential, error) {
	objectName, err := s3s.objectName(owner, id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s3OpTimeout)
	defer cancel()

	cred, err := s3s.getObject(ctx, objectName)
	if err != nil {
		return nil, err
	}
	if !cred.IsActive || !cred.Owner.Equals(owner) {
		return nil, credvault.ErrNotFound
	}

	patch.Apply(cred)

	if err = s3s.putObject(ctx, objectName, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

func (s3s *S3Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s3OpTimeout)
	defer cancel()

	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to ping S3: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s3s.bucketName)
	}
	return nil
}

func (s3s *S3Store) Close() error {
	return nil
}

func (s3s *S3Store) GetType() string {
	return string(StoreTypeS3)
}
