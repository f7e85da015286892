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

	"github.com/gatherfed/gather/ap"
)

func followIDFromObject(activity *ap.Activity) string {
	if followID, ok := activity.Object.(string); ok {
		return followID
	}
	if follow, ok := activity.Object.(*ap.Activity); ok && follow.Type == ap.Follow {
		return follow.ID
	}
	return ""
}

// accept handles acceptance of a Follow sent by a local actor. The
// remote side's inbox is snapshotted on the follow edge, so fan-out to
// followers works without fetching each follower again.
func (q *Queue) accept(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	followID := followIDFromObject(activity)
	if followID == "" {
		return errors.New("received an invalid accept notification")
	}

	slog.Info("Follow is accepted", "follow", followID, "followed", sender.ID)

	if res, err := q.DB.ExecContext(
		ctx,
		`update follows set accepted = 1, inbox = ?, shared_inbox = ? where id = ? and followed = ?`,
		sender.Inbox,
		sender.SharedInbox(),
		followID,
		sender.ID,
	); err != nil {
		return fmt.Errorf("failed to accept follow %s: %w", followID, err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to accept follow %s: %w", followID, err)
	} else if n == 0 {
		return fmt.Errorf("failed to accept follow %s: no such follow", followID)
	}

	return nil
}

// reject handles rejection of a Follow sent by a local actor.
func (q *Queue) reject(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	followID := followIDFromObject(activity)
	if followID == "" {
		return errors.New("received an invalid reject notification")
	}

	slog.Info("Follow is rejected", "follow", followID, "followed", sender.ID)

	if _, err := q.DB.ExecContext(
		ctx,
		`delete from follows where id = ? and followed = ?`,
		followID,
		sender.ID,
	); err != nil {
		return fmt.Errorf("failed to reject follow %s: %w", followID, err)
	}

	return nil
}
