package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"autodl-console/pkg/utils"
)

// Schema is the DDL for the postgres backend. Safe to re-run.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS console_credentials (
	profile    TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (profile, key)
)`}

// PostgresStore keeps credentials in console_credentials, one row per
// (profile, key).
type PostgresStore struct {
	db      *sql.DB
	profile string
}

func NewPostgresStore(db *sql.DB, profile string) *PostgresStore {
	if profile == "" {
		profile = "default"
	}
	return &PostgresStore{db: db, profile: profile}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	const q = `
SELECT value
FROM console_credentials
WHERE profile = $1 AND key = $2
`
	var v string
	if err := s.db.QueryRowContext(ctx, q, s.profile, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("credstore: postgres get: %w", err)
	}
	return v, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	const q = `
INSERT INTO console_credentials (profile, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (profile, key) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, q, s.profile, key, value); err != nil {
			return fmt.Errorf("credstore: postgres set: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	const q = `DELETE FROM console_credentials WHERE profile = $1 AND key = $2`
	if _, err := s.db.ExecContext(ctx, q, s.profile, key); err != nil {
		return fmt.Errorf("credstore: postgres delete: %w", err)
	}
	return nil
}
