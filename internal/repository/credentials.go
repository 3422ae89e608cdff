package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNoCredentials is returned by Load when nothing has been persisted yet.
var ErrNoCredentials = errors.New("no credentials stored")

// CredentialStore durably persists the opaque credential blob the transport
// emits. The blob is exclusively owned by the connection supervisor; nothing
// else reads or writes it. One active session per process, keyed by a fixed
// account id.
type CredentialStore interface {
	Save(ctx context.Context, blob []byte) error
	Load(ctx context.Context) ([]byte, error)
}

type credentialRepo struct {
	db        *sqlx.DB
	accountID string
}

// NewCredentialRepository returns a postgres-backed CredentialStore.
//
// Schema:
//
//	CREATE TABLE credentials (
//	    account_id TEXT PRIMARY KEY,
//	    blob       BYTEA NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
func NewCredentialRepository(db *sqlx.DB, accountID string) CredentialStore {
	return &credentialRepo{db: db, accountID: accountID}
}

func (r *credentialRepo) Save(ctx context.Context, blob []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (account_id, blob, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET
			blob = EXCLUDED.blob,
			updated_at = EXCLUDED.updated_at
	`, r.accountID, blob, time.Now())
	return err
}

func (r *credentialRepo) Load(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := r.db.GetContext(ctx, &blob, `
		SELECT blob FROM credentials WHERE account_id = $1
	`, r.accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}
