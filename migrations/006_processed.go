package migrations

import (
	"context"
	"database/sql"
)

func processed(ctx context.Context, domain string, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE processed(id TEXT NOT NULL PRIMARY KEY, expires INTEGER NOT NULL)`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `CREATE INDEX processedexpires ON processed(expires)`)
	return err
}
