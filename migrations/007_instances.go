package migrations

import (
	"context"
	"database/sql"
)

func instances(ctx context.Context, domain string, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE instances(host TEXT NOT NULL PRIMARY KEY, software TEXT, version TEXT, users INTEGER, posts INTEGER, fetched INTEGER, error TEXT, error_at INTEGER, blocked INTEGER DEFAULT 0, inserted INTEGER DEFAULT (UNIXEPOCH()))`)
	return err
}
