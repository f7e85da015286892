package migrations

import (
	"context"
	"database/sql"
)

func deliveries(ctx context.Context, domain string, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE deliveries(activity TEXT NOT NULL, inbox TEXT NOT NULL, host TEXT NOT NULL, status INTEGER DEFAULT 0, attempts INTEGER DEFAULT 0, last INTEGER, next INTEGER DEFAULT (UNIXEPOCH()), error TEXT, inserted INTEGER DEFAULT (UNIXEPOCH()), PRIMARY KEY(activity, inbox))`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX deliveriesdue ON deliveries(status, next)`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `CREATE INDEX deliverieshost ON deliveries(host)`)
	return err
}
