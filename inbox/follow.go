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
	"github.com/gatherfed/gather/outbox"
)

// follow handles a Follow request sent to a local actor. Follows are
// approved automatically unless the followed actor requires manual
// approval.
func (q *Queue) follow(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	followed, ok := activity.Object.(string)
	if !ok || followed == "" {
		return errors.New("received an invalid follow request")
	}

	prefix := fmt.Sprintf("https://%s/", q.Domain)
	if strings.HasPrefix(activity.Actor, prefix) || !strings.HasPrefix(followed, prefix) {
		return fmt.Errorf("received an invalid follow request for %s by %s", followed, activity.Actor)
	}

	var followedActor ap.Actor
	if err := q.DB.QueryRowContext(ctx, `select actor from persons where id = ? and host = ?`, followed, q.Domain).Scan(&followedActor); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", followed, err)
	}

	tx, err := q.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to accept follow %s: %w", activity.ID, err)
	}
	defer tx.Rollback()

	if followedActor.ManuallyApprovesFollowers {
		slog.Info("Rejecting follow request", "follower", activity.Actor, "followed", followed)

		if err := outbox.Reject(ctx, q.Domain, followed, activity.Actor, activity.ID, tx); err != nil {
			return fmt.Errorf("failed to reject follow %s: %w", activity.ID, err)
		}

		return tx.Commit()
	}

	slog.Info("Approving follow request", "follower", activity.Actor, "followed", followed)

	if err := outbox.Accept(ctx, q.Domain, followed, activity.Actor, activity.ID, sender.Inbox, sender.SharedInbox(), tx); err != nil {
		return fmt.Errorf("failed to accept follow %s: %w", activity.ID, err)
	}

	return tx.Commit()
}
