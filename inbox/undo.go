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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gatherfed/gather/ap"
)

// undo reverses an earlier Follow, Like, Join or Announce by the sender.
// Only the original actor can undo its own activity.
func (q *Queue) undo(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	inner, ok := activity.Object.(*ap.Activity)
	if !ok {
		return errors.New("received a request to undo a non-activity object")
	}

	if inner.Actor != "" && inner.Actor != sender.ID {
		return fmt.Errorf("%s cannot undo activity by %s", sender.ID, inner.Actor)
	}

	switch inner.Type {
	case ap.Follow:
		followed := objectID(inner)
		if followed == "" {
			return errors.New("received an undo request with empty ID")
		}

		prefix := fmt.Sprintf("https://%s/", q.Domain)
		if !strings.HasPrefix(followed, prefix) {
			return errors.New("received an undo request for a federated actor")
		}

		if _, err := q.DB.ExecContext(
			ctx,
			`delete from follows where follower = ? and followed = ?`,
			sender.ID,
			followed,
		); err != nil {
			return fmt.Errorf("failed to remove follow of %s by %s: %w", followed, sender.ID, err)
		}

		slog.Info("Removed a follow", "follower", sender.ID, "followed", followed)
		return nil

	case ap.Like:
		if _, err := q.DB.ExecContext(
			ctx,
			`delete from likes where (id = $1 or object = $1) and actor = $2`,
			objectOrInnerID(inner),
			sender.ID,
		); err != nil {
			return fmt.Errorf("failed to undo like: %w", err)
		}
		return nil

	case ap.Join:
		if _, err := q.DB.ExecContext(
			ctx,
			`delete from attendance where (id = $1 or event = $1) and actor = $2`,
			objectOrInnerID(inner),
			sender.ID,
		); err != nil {
			return fmt.Errorf("failed to undo join: %w", err)
		}
		return nil

	case ap.Announce:
		if _, err := q.DB.ExecContext(
			ctx,
			`delete from shares where (id = $1 or object = $1) and by = $2`,
			objectOrInnerID(inner),
			sender.ID,
		); err != nil {
			return fmt.Errorf("failed to undo announce: %w", err)
		}
		return nil

	default:
		slog.Debug("Ignoring request to undo an unsupported activity", "type", inner.Type)
		return nil
	}
}

// objectOrInnerID returns the inner activity's ID if known, otherwise
// the ID of the object it acted on. Some servers undo by activity ID,
// others send the full inner activity.
func objectOrInnerID(inner *ap.Activity) string {
	if inner.ID != "" {
		return inner.ID
	}
	return objectID(inner)
}
