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

package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/gatherfed/gather/ap"
)

// queue inserts an activity into the delivery queue. BCC recipients are
// stored in a separate column: they take part in audience resolution but
// are never serialized into the activity itself.
func queue(ctx context.Context, tx *sql.Tx, activity *ap.Activity, sender string, bcc ap.Audience) error {
	var bccList sql.NullString
	if !bcc.IsZero() {
		buf, err := json.Marshal(bcc)
		if err != nil {
			return fmt.Errorf("failed to queue %s: %w", activity.ID, err)
		}
		bccList = sql.NullString{String: string(buf), Valid: true}
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO outbox (activity, sender, bcc) VALUES(?, ?, ?)`,
		activity,
		sender,
		bccList,
	); err != nil {
		return fmt.Errorf("failed to queue %s: %w", activity.ID, err)
	}

	return nil
}
