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

// Like queues a Like activity addressed to the object's author.
func Like(ctx context.Context, domain string, tx *sql.Tx, actor *ap.Actor, post *ap.Object) error {
	id, err := NewID(domain, "like")
	if err != nil {
		return err
	}

	if res, err := tx.ExecContext(
		ctx,
		`INSERT INTO likes (id, actor, object) VALUES(?, ?, ?) ON CONFLICT(actor, object) DO NOTHING`,
		id,
		actor.ID,
		post.ID,
	); err != nil {
		return fmt.Errorf("failed to like %s: %w", post.ID, err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to like %s: %w", post.ID, err)
	} else if n == 0 {
		return fmt.Errorf("failed to like %s: already liked", post.ID)
	}

	recipients := ap.Audience{}
	recipients.Add(post.AttributedTo)

	like := ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      id,
		Type:    ap.Like,
		Actor:   actor.ID,
		Object:  post.ID,
		To:      recipients,
	}

	return queue(ctx, tx, &like, actor.ID, ap.Audience{})
}
