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
	"log/slog"

	"github.com/gatherfed/gather/ap"
)

// delete handles a Delete of an object or of the sending actor itself.
func (q *Queue) delete(ctx context.Context, sender *ap.Actor, activity *ap.Activity) error {
	deleted := ""
	if obj, ok := activity.Object.(*ap.Object); ok {
		deleted = obj.ID
	} else if s, ok := activity.Object.(string); ok {
		deleted = s
	}
	if deleted == "" {
		return errors.New("received an invalid delete request")
	}

	slog.Info("Received delete request", "deleted", deleted, "sender", sender.ID)

	if deleted == sender.ID {
		for _, query := range []string{
			`delete from objects where author = ?`,
			`delete from likes where actor = ?`,
			`delete from attendance where actor = ?`,
			`delete from shares where by = ?`,
			`delete from follows where follower = $1 or followed = $1`,
			`delete from persons where id = ?`,
		} {
			if _, err := q.DB.ExecContext(ctx, query, deleted); err != nil {
				return err
			}
		}

		return nil
	}

	// dependent rows go first: their ownership check reads objects
	for _, query := range []string{
		`delete from likes where object = $1 and exists (select 1 from objects where objects.id = $1 and objects.author = $2)`,
		`delete from attendance where event = $1 and exists (select 1 from objects where objects.id = $1 and objects.author = $2)`,
		`delete from shares where object = $1 and exists (select 1 from objects where objects.id = $1 and objects.author = $2)`,
		`delete from objects where id = $1 and author = $2`,
	} {
		if _, err := q.DB.ExecContext(ctx, query, deleted, sender.ID); err != nil {
			return err
		}
	}

	return nil
}
