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

// Follow queues a Follow request to another actor. The follow edge stays
// unaccepted until the other side sends back an Accept.
func Follow(ctx context.Context, domain string, follower *ap.Actor, followed string, db *sql.DB) error {
	if followed == follower.ID {
		return fmt.Errorf("%s cannot follow itself", follower.ID)
	}

	id, err := NewID(domain, "follow")
	if err != nil {
		return err
	}

	recipients := ap.Audience{}
	recipients.Add(followed)

	follow := ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      id,
		Type:    ap.Follow,
		Actor:   follower.ID,
		Object:  followed,
		To:      recipients,
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to follow %s: %w", followed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO follows (id, follower, followed) VALUES(?, ?, ?) ON CONFLICT(follower, followed) DO NOTHING`,
		id,
		follower.ID,
		followed,
	); err != nil {
		return fmt.Errorf("failed to follow %s: %w", followed, err)
	}

	if err := queue(ctx, tx, &follow, follower.ID, ap.Audience{}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to follow %s: %w", followed, err)
	}

	return nil
}
