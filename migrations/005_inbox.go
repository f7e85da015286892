package migrations

import (
	"context"
	"database/sql"
)

func inbox(ctx context.Context, domain string, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE inbox(sender TEXT NOT NULL, activity TEXT NOT NULL, inserted INTEGER DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX inboxactivityid ON inbox(activity->>'$.id')`)
	return err
}
