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

// Delete queues a Delete activity for delivery and removes the stored
// object together with likes, attendance and shares that point at it.
func Delete(ctx context.Context, domain string, tx *sql.Tx, post *ap.Object, author *ap.Actor, bcc ap.Audience) error {
	id, err := NewID(domain, "delete")
	if err != nil {
		return err
	}

	if res, err := tx.ExecContext(
		ctx,
		`delete from objects where id = ? and author = ?`,
		post.ID,
		author.ID,
	); err != nil {
		return fmt.Errorf("failed to delete %s: %w", post.ID, err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", post.ID, err)
	} else if n == 0 {
		return fmt.Errorf("failed to delete %s: no such object", post.ID)
	}

	for _, q := range []string{
		`delete from likes where object = ?`,
		`delete from attendance where event = ?`,
		`delete from shares where object = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, post.ID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", post.ID, err)
		}
	}

	del := ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      id,
		Type:    ap.Delete,
		Actor:   author.ID,
		Object: &ap.Object{
			ID:   post.ID,
			Type: ap.Tombstone,
		},
		To: post.To,
		CC: post.CC,
	}

	return queue(ctx, tx, &del, author.ID, bcc)
}
