package migrations

import (
	"context"
	"database/sql"
)

func persons(ctx context.Context, domain string, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE persons(id TEXT NOT NULL PRIMARY KEY, actor TEXT NOT NULL, privkey TEXT, host TEXT NOT NULL, inserted INTEGER DEFAULT (UNIXEPOCH()), updated INTEGER DEFAULT (UNIXEPOCH()), fetched INTEGER)`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX personshost ON persons(host)`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX personsusername ON persons(actor->>'$.preferredUsername', host)`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX personskeyid ON persons(actor->>'$.publicKey.id')`)
	return err
}
