package store

import (
	"context"
	"database/sql"
)

// SetMetadata upserts a key-value pair in the app_metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_metadata (key, value) VALUES ($1, $2)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_metadata WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the content hash recorded for an imported
// question bank, or "" if it was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, name string) (string, error) {
	return s.GetMetadata(ctx, "import:"+name)
}

// SetImportedFileHash records the content hash of an imported question bank.
func (s *Store) SetImportedFileHash(ctx context.Context, name, hash string) error {
	return s.SetMetadata(ctx, "import:"+name, hash)
}
