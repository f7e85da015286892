package migrations

import (
	"context"
	"database/sql"
)

func follows(ctx context.Context, domain string, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE follows(id TEXT NOT NULL PRIMARY KEY, follower TEXT NOT NULL, followed TEXT NOT NULL, accepted INTEGER DEFAULT 0, inbox TEXT, shared_inbox TEXT, inserted INTEGER DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX followsedge ON follows(follower, followed)`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `CREATE INDEX followsfollowed ON follows(followed)`)
	return err
}
