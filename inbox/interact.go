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

	"github.com/gatherfed/gather/ap"
)

func objectID(activity *ap.Activity) string {
	if s, ok := activity.Object.(string); ok {
		return s
	}
	if obj, ok := activity.Object.(*ap.Object); ok {
		return obj.ID
	}
	return ""
}

// knownObject maps an object ID to its stored type, or reports that the
// object is unknown.
func (q *Queue) knownObject(ctx context.Context, id string) (ap.ObjectType, bool, error) {
	var objectType ap.ObjectType
	if err := q.DB.QueryRowContext(ctx, `select object->>'$.type' from objects where id = ?`, id).Scan(&objectType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return objectType, true, nil
}

// like records a Like of a known object.
func (q *Queue) like(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	id := objectID(activity)
	if id == "" {
		return errors.New("received an invalid like")
	}

	if _, known, err := q.knownObject(ctx, id); err != nil {
		return fmt.Errorf("failed to like %s: %w", id, err)
	} else if !known {
		slog.Debug("Ignoring like of unknown object", "object", id)
		return nil
	}

	if _, err := q.DB.ExecContext(
		ctx,
		`INSERT INTO likes (id, actor, object) VALUES(?, ?, ?) ON CONFLICT(actor, object) DO NOTHING`,
		activity.ID,
		sender.ID,
		id,
	); err != nil {
		return fmt.Errorf("failed to like %s: %w", id, err)
	}

	return nil
}

// join records attendance of a known event.
func (q *Queue) join(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	id := objectID(activity)
	if id == "" {
		return errors.New("received an invalid join")
	}

	if objectType, known, err := q.knownObject(ctx, id); err != nil {
		return fmt.Errorf("failed to join %s: %w", id, err)
	} else if !known {
		slog.Debug("Ignoring join of unknown object", "object", id)
		return nil
	} else if objectType != ap.Event {
		return fmt.Errorf("cannot join %s: not an event", id)
	}

	if _, err := q.DB.ExecContext(
		ctx,
		`INSERT INTO attendance (id, actor, event) VALUES(?, ?, ?) ON CONFLICT(actor, event) DO NOTHING`,
		activity.ID,
		sender.ID,
		id,
	); err != nil {
		return fmt.Errorf("failed to join %s: %w", id, err)
	}

	slog.Info("Actor is attending event", "actor", sender.ID, "event", id)
	return nil
}

// leave withdraws previously recorded attendance.
func (q *Queue) leave(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	id := objectID(activity)
	if id == "" {
		return errors.New("received an invalid leave")
	}

	if _, err := q.DB.ExecContext(
		ctx,
		`delete from attendance where actor = ? and event = ?`,
		sender.ID,
		id,
	); err != nil {
		return fmt.Errorf("failed to leave %s: %w", id, err)
	}

	return nil
}

// announce records a share of a known public object.
func (q *Queue) announce(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	id := objectID(activity)
	if id == "" {
		slog.Debug("Ignoring unsupported Announce object")
		return nil
	}

	var public int
	if err := q.DB.QueryRowContext(ctx, `select public from objects where id = ?`, id).Scan(&public); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("Ignoring announce of unknown object", "object", id)
			return nil
		}
		return fmt.Errorf("failed to announce %s: %w", id, err)
	}

	if public == 0 {
		return fmt.Errorf("received Announce for private object %s", id)
	}

	if _, err := q.DB.ExecContext(
		ctx,
		`INSERT INTO shares (id, by, object) VALUES(?, ?, ?) ON CONFLICT(by, object) DO NOTHING`,
		activity.ID,
		sender.ID,
		id,
	); err != nil {
		return fmt.Errorf("failed to announce %s: %w", id, err)
	}

	return nil
}
