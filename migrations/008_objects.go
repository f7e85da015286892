package migrations

import (
	"context"
	"database/sql"
)

func objects(ctx context.Context, domain string, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE objects(id TEXT NOT NULL PRIMARY KEY, author TEXT NOT NULL, object TEXT NOT NULL, public INTEGER, host TEXT NOT NULL, inserted INTEGER DEFAULT (UNIXEPOCH()), updated INTEGER DEFAULT (UNIXEPOCH()))`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `CREATE INDEX objectsauthor ON objects(author)`)
	return err
}
