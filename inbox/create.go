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
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gatherfed/gather/ap"
)

func (q *Queue) insertObject(ctx context.Context, sender *ap.Actor, post *ap.Object) error {
	prefix := fmt.Sprintf("https://%s/", q.Domain)
	if strings.HasPrefix(post.ID, prefix) || strings.HasPrefix(post.AttributedTo, prefix) {
		return fmt.Errorf("received invalid object %s by %s", post.ID, post.AttributedTo)
	}

	if post.AttributedTo != sender.ID {
		return fmt.Errorf("%s is not attributed to %s", post.ID, sender.ID)
	}

	u, err := url.Parse(post.ID)
	if err != nil {
		return fmt.Errorf("received invalid object ID %s: %w", post.ID, err)
	}

	public := 0
	if post.IsPublic() {
		public = 1
	}

	res, err := q.DB.ExecContext(
		ctx,
		`INSERT INTO objects (id, author, object, public, host) VALUES(?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		post.ID,
		post.AttributedTo,
		post,
		public,
		u.Host,
	)
	if err != nil {
		return fmt.Errorf("cannot insert %s: %w", post.ID, err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("cannot insert %s: %w", post.ID, err)
	} else if n == 0 {
		slog.Debug("Object is a duplicate", "object", post.ID)
		return nil
	}

	slog.Info("Received a new object", "object", post.ID, "type", post.Type, "author", post.AttributedTo)
	return nil
}

// create handles a Create for an event or a comment.
func (q *Queue) create(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	post, ok := activity.Object.(*ap.Object)
	if !ok {
		return errors.New("received invalid Create")
	}

	return q.insertObject(ctx, sender, post)
}

// update handles an Update for an event or a comment. An Update for an
// object we have never seen is treated as a Create.
func (q *Queue) update(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	post, ok := activity.Object.(*ap.Object)
	if !ok || post.ID == sender.ID {
		slog.Debug("Ignoring unsupported Update object")
		return nil
	}

	if post.ID == "" || post.AttributedTo == "" {
		return errors.New("received invalid Update")
	}

	prefix := fmt.Sprintf("https://%s/", q.Domain)
	if strings.HasPrefix(post.ID, prefix) {
		return fmt.Errorf("%s cannot update %s", sender.ID, post.ID)
	}

	var lastUpdate int64
	if err := q.DB.QueryRowContext(ctx, `select max(inserted, updated) from objects where id = ? and author = ?`, post.ID, post.AttributedTo).Scan(&lastUpdate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("Received Update for unknown object", "object", post.ID)
			return q.insertObject(ctx, sender, post)
		}
		return fmt.Errorf("failed to get last update time for %s: %w", post.ID, err)
	}

	if post.AttributedTo != sender.ID {
		return fmt.Errorf("%s is not attributed to %s", post.ID, sender.ID)
	}

	// discard reordered updates that arrive after a newer one
	if post.Updated == (ap.Time{}) || lastUpdate >= post.Updated.Unix() {
		slog.Debug("Received old update request", "object", post.ID)
		return nil
	}

	public := 0
	if post.IsPublic() {
		public = 1
	}

	if _, err := q.DB.ExecContext(
		ctx,
		`update objects set object = ?, public = ?, updated = unixepoch() where id = ? and author = ?`,
		post,
		public,
		post.ID,
		post.AttributedTo,
	); err != nil {
		return fmt.Errorf("failed to update %s: %w", post.ID, err)
	}

	slog.Info("Updated object", "object", post.ID, "author", post.AttributedTo)
	return nil
}
