package migrations

import (
	"context"
	"database/sql"
)

func outbox(ctx context.Context, domain string, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE outbox(activity TEXT NOT NULL, sender TEXT NOT NULL, bcc TEXT, resolved INTEGER DEFAULT 0, inserted INTEGER DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX outboxactivityid ON outbox(activity->>'$.id')`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `CREATE INDEX outboxresolved ON outbox(resolved)`)
	return err
}
