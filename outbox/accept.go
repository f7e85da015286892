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

// Accept queues an Accept activity for delivery and records the accepted
// follow edge, snapshotting the follower's inbox for later fan-out.
func Accept(ctx context.Context, domain, followed, follower, followID, inbox, sharedInbox string, tx *sql.Tx) error {
	id, err := NewID(domain, "accept")
	if err != nil {
		return err
	}

	recipients := ap.Audience{}
	recipients.Add(follower)

	accept := ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      id,
		Type:    ap.Accept,
		Actor:   followed,
		To:      recipients,
		Object: &ap.Activity{
			ID:     followID,
			Type:   ap.Follow,
			Actor:  follower,
			Object: followed,
		},
	}

	if err := queue(ctx, tx, &accept, followed, ap.Audience{}); err != nil {
		return err
	}

	if res, err := tx.ExecContext(
		ctx,
		`INSERT INTO follows (id, follower, followed, accepted, inbox, shared_inbox) VALUES($1, $2, $3, 1, $4, $5) ON CONFLICT(follower, followed) DO UPDATE SET id = $1, accepted = 1, inbox = $4, shared_inbox = $5, inserted = UNIXEPOCH()`,
		followID,
		follower,
		followed,
		inbox,
		sharedInbox,
	); err != nil {
		return fmt.Errorf("failed to accept %s: %w", followID, err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to accept %s: %w", followID, err)
	} else if n == 0 {
		return fmt.Errorf("failed to accept %s: cannot accept", followID)
	}

	return nil
}
