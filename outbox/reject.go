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
	"fmt"

	"github.com/gatherfed/gather/ap"
)

// Reject queues a Reject activity for delivery and drops the follow edge.
func Reject(ctx context.Context, domain, followed, follower, followID string, tx *sql.Tx) error {
	id, err := NewID(domain, "reject")
	if err != nil {
		return err
	}

	recipients := ap.Audience{}
	recipients.Add(follower)

	reject := ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      id,
		Type:    ap.Reject,
		Actor:   followed,
		To:      recipients,
		Object: &ap.Activity{
			ID:     followID,
			Type:   ap.Follow,
			Actor:  follower,
			Object: followed,
		},
	}

	if err := queue(ctx, tx, &reject, followed, ap.Audience{}); err != nil {
		return err
	}

	if _, err := tx.ExecContext(
		ctx,
		`delete from follows where follower = ? and followed = ?`,
		follower,
		followed,
	); err != nil {
		return fmt.Errorf("failed to reject %s: %w", followID, err)
	}

	return nil
}
