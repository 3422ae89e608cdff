package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type fileCredentialStore struct {
	dir       string
	accountID string
}

// NewFileCredentialStore returns a CredentialStore that keeps the blob in
// <dir>/<accountID>/creds.json. Writes go through a temp file and rename so
// a crash mid-write never leaves a torn blob.
func NewFileCredentialStore(dir, accountID string) (CredentialStore, error) {
	accountDir := filepath.Join(dir, accountID)
	if err := os.MkdirAll(accountDir, 0o700); err != nil {
		return nil, fmt.Errorf("create credentials dir: %w", err)
	}
	return &fileCredentialStore{dir: dir, accountID: accountID}, nil
}

func (s *fileCredentialStore) path() string {
	return filepath.Join(s.dir, s.accountID, "creds.json")
}

func (s *fileCredentialStore) Save(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path()), "creds-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close credentials file: %w", err)
	}

	if err := os.Rename(tmpName, s.path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}

func (s *fileCredentialStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return blob, nil
}
