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
	"time"

	"github.com/gatherfed/gather/ap"
)

// Update queues an Update activity for delivery and replaces the stored
// object.
func Update(ctx context.Context, domain string, tx *sql.Tx, post *ap.Object, author *ap.Actor, bcc ap.Audience) error {
	id, err := NewID(domain, "update")
	if err != nil {
		return err
	}

	post.Updated = ap.Time{Time: time.Now()}

	public := 0
	if post.IsPublic() {
		public = 1
	}

	if res, err := tx.ExecContext(
		ctx,
		`update objects set object = ?, public = ?, updated = unixepoch() where id = ? and author = ?`,
		post,
		public,
		post.ID,
		author.ID,
	); err != nil {
		return fmt.Errorf("failed to update %s: %w", post.ID, err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update %s: %w", post.ID, err)
	} else if n == 0 {
		return fmt.Errorf("failed to update %s: no such object", post.ID)
	}

	update := ap.Activity{
		Context:   "https://www.w3.org/ns/activitystreams",
		ID:        id,
		Type:      ap.Update,
		Actor:     author.ID,
		Object:    post,
		To:        post.To,
		CC:        post.CC,
		Published: post.Updated,
	}

	return queue(ctx, tx, &update, author.ID, bcc)
}
