/*
Copyright 2025, 2026 the gather authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package inbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Admit records an activity ID as processed and reports whether this is
// the first time it is seen. Replayed and redundantly delivered
// activities are admitted exactly once; the record expires after ttl and
// is removed by the garbage collector.
//
// The insert-or-ignore makes admission safe under concurrent delivery of
// the same activity to multiple local inboxes.
func Admit(ctx context.Context, db *sql.DB, id string, ttl time.Duration) (bool, error) {
	res, err := db.ExecContext(
		ctx,
		`INSERT INTO processed (id, expires) VALUES(?, UNIXEPOCH() + ?) ON CONFLICT(id) DO NOTHING`,
		id,
		int64(ttl/time.Second),
	)
	if err != nil {
		return false, fmt.Errorf("failed to admit %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to admit %s: %w", id, err)
	}

	return n == 1, nil
}
