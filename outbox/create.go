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
	"net/url"
	"time"

	"github.com/gatherfed/gather/ap"
)

func insertObject(ctx context.Context, tx *sql.Tx, post *ap.Object) error {
	u, err := url.Parse(post.ID)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", post.ID, err)
	}

	public := 0
	if post.IsPublic() {
		public = 1
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO objects (id, author, object, public, host) VALUES(?, ?, ?, ?, ?)`,
		post.ID,
		post.AttributedTo,
		post,
		public,
		u.Host,
	); err != nil {
		return fmt.Errorf("failed to insert %s: %w", post.ID, err)
	}

	return nil
}

// Create queues a Create activity for delivery and stores the object.
// BCC recipients are resolved at delivery time but never appear on the
// wire.
func Create(ctx context.Context, domain string, tx *sql.Tx, post *ap.Object, author *ap.Actor, bcc ap.Audience) error {
	id, err := NewID(domain, "create")
	if err != nil {
		return err
	}

	if post.Published == (ap.Time{}) {
		post.Published = ap.Time{Time: time.Now()}
	}

	if err := insertObject(ctx, tx, post); err != nil {
		return err
	}

	create := ap.Activity{
		Context:   "https://www.w3.org/ns/activitystreams",
		ID:        id,
		Type:      ap.Create,
		Actor:     author.ID,
		Object:    post,
		To:        post.To,
		CC:        post.CC,
		Published: post.Published,
	}

	return queue(ctx, tx, &create, author.ID, bcc)
}
