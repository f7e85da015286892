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

// Announce queues an Announce activity that shares a public object with
// the actor's followers.
func Announce(ctx context.Context, domain string, tx *sql.Tx, actor *ap.Actor, post *ap.Object) error {
	if !post.IsPublic() {
		return fmt.Errorf("cannot announce %s: not public", post.ID)
	}

	id, err := NewID(domain, "announce")
	if err != nil {
		return err
	}

	if res, err := tx.ExecContext(
		ctx,
		`INSERT INTO shares (id, by, object) VALUES(?, ?, ?) ON CONFLICT(by, object) DO NOTHING`,
		id,
		actor.ID,
		post.ID,
	); err != nil {
		return fmt.Errorf("failed to announce %s: %w", post.ID, err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to announce %s: %w", post.ID, err)
	} else if n == 0 {
		return fmt.Errorf("failed to announce %s: already announced", post.ID)
	}

	to := ap.Audience{}
	to.Add(ap.Public)

	cc := ap.Audience{}
	cc.Add(post.AttributedTo)
	cc.Add(actor.Followers)

	announce := ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      id,
		Type:    ap.Announce,
		Actor:   actor.ID,
		Object:  post.ID,
		To:      to,
		CC:      cc,
	}

	return queue(ctx, tx, &announce, actor.ID, ap.Audience{})
}
