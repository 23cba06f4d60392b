package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates console_audit_events. There is no UPDATE or DELETE path in code.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS console_audit_events (
	id            UUID        PRIMARY KEY,
	profile       TEXT        NOT NULL,
	type          TEXT        NOT NULL,
	actor_user_id TEXT        NOT NULL DEFAULT '',
	actor_role    TEXT        NOT NULL DEFAULT '',
	path          TEXT        NOT NULL DEFAULT '',
	reason        TEXT        NOT NULL DEFAULT '',
	message       TEXT        NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS console_audit_events_profile_created_idx ON console_audit_events (profile, created_at)`,
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO console_audit_events
	(id, profile, type, actor_user_id, actor_role, path, reason, message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	if _, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Profile,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.Path,
		e.Reason,
		e.Message,
		e.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Recent returns the newest events for profile, newest first.
func (r *SQLRepo) Recent(ctx context.Context, profile string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	const q = `
SELECT id, profile, type, actor_user_id, actor_role, path, reason, message, created_at
FROM console_audit_events
WHERE profile = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(
			&e.ID,
			&e.Profile,
			&typ,
			&e.ActorUserID,
			&e.ActorRole,
			&e.Path,
			&e.Reason,
			&e.Message,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
