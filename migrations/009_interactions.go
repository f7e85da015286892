package migrations

import (
	"context"
	"database/sql"
)

func interactions(ctx context.Context, domain string, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE likes(id TEXT NOT NULL PRIMARY KEY, actor TEXT NOT NULL, object TEXT NOT NULL, inserted INTEGER DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX likesactorobject ON likes(actor, object)`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE attendance(id TEXT NOT NULL PRIMARY KEY, actor TEXT NOT NULL, event TEXT NOT NULL, inserted INTEGER DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX attendanceactorevent ON attendance(actor, event)`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE shares(id TEXT NOT NULL PRIMARY KEY, by TEXT NOT NULL, object TEXT NOT NULL, inserted INTEGER DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX sharesbyobject ON shares(by, object)`)
	return err
}
