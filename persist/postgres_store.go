package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/harborlock/credvault"
)

// PostgresStore keeps records in a single credentials table. The envelope
// column holds the encoded encrypted envelope as text; metadata is a JSONB
// column so operators can query it without decrypting anything.
type PostgresStore struct {
	db *sql.DB
}

var _ credvault.Store = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	id           TEXT PRIMARY KEY,
	org_id       TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	provider     TEXT NOT NULL,
	label        TEXT NOT NULL,
	envelope     TEXT NOT NULL,
	metadata     JSONB,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	last_used_at TIMESTAMPTZ,
	expires_at   TIMESTAMPTZ,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_credentials_tenant
	ON credentials (org_id, user_id);
`

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required for postgres store")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if _, err = db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (p *PostgresStore) Save(ctx context.Context, cred *credvault.Credential) error {
	metadata, err := marshalMetadata(cred.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO credentials
			(id, org_id, user_id, provider, label, envelope, metadata,
			 created_at, updated_at, last_used_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		cred.ID, cred.Owner.OrgID, cred.Owner.UserID, string(cred.Provider),
		cred.Label, cred.Envelope, metadata,
		cred.CreatedAt, cred.UpdatedAt, cred.LastUsedAt, cred.ExpiresAt,
		cred.IsActive)
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	// ON CONFLICT DO NOTHING reports zero rows affected when the ID is
	// already taken.
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to verify insert: %w", err)
	}
	if affected == 0 {
		return &ConflictError{ID: cred.ID}
	}
	return nil
}

const selectColumns = `id, org_id, user_id, provider, label, envelope,
	metadata, created_at, updated_at, last_used_at, expires_at, is_active`

func scanCredential(row interface{ Scan(...any) error }) (*credvault.Credential, error) {
	var (
		cred     credvault.Credential
		provider string
		metadata []byte
	)
	err := row.Scan(&cred.ID, &cred.Owner.OrgID, &cred.Owner.UserID,
		&provider, &cred.Label, &cred.Envelope, &metadata,
		&cred.CreatedAt, &cred.UpdatedAt, &cred.LastUsedAt, &cred.ExpiresAt,
		&cred.IsActive)
	if err != nil {
		return nil, err
	}
	cred.Provider = credvault.Provider(provider)
	if len(metadata) > 0 {
		if err = json.Unmarshal(metadata, &cred.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}
	return &cred, nil
}

func (p *PostgresStore) FindOne(ctx context.Context, id string, owner credvault.Owner) (*credvault.Credential, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM credentials
		WHERE id = $1 AND org_id = $2 AND user_id = $3 AND is_active`,
		id, owner.OrgID, owner.UserID)

	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credvault.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (p *PostgresStore) FindMany(ctx context.Context, owner credvault.Owner, provider credvault.Provider) ([]*credvault.Credential, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM credentials
		WHERE org_id = $1 AND user_id = $2 AND is_active`
	args := []any{owner.OrgID, owner.UserID}
	if provider != "" {
		query += ` AND provider = $3`
		args = append(args, string(provider))
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var out []*credvault.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cred)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, id string, owner credvault.Owner, patch credvault.StorePatch) (*credvault.Credential, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM credentials
		WHERE id = $1 AND org_id = $2 AND user_id = $3 AND is_active
		FOR UPDATE`,
		id, owner.OrgID, owner.UserID)

	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credvault.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(cred)

	metadata, err := marshalMetadata(cred.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE credentials
		SET label = $2, envelope = $3, metadata = $4, updated_at = $5,
		    last_used_at = $6, expires_at = $7, is_active = $8
		WHERE id = $1`,
		cred.ID, cred.Label, cred.Envelope, metadata, cred.UpdatedAt,
		cred.LastUsedAt, cred.ExpiresAt, cred.IsActive)
	if err != nil {
		return nil, fmt.Errorf("failed to update credential: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return cred, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) GetType() string {
	return string(StoreTypePostgres)
}
