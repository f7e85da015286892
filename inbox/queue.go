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

// Package inbox processes activities received from other servers.
package inbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatherfed/gather/ap"
	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/data"
	"github.com/gatherfed/gather/fed"
	"github.com/gatherfed/gather/httpsig"
)

// Queue processes the queue of incoming activities.
type Queue struct {
	Domain   string
	Config   *cfg.Config
	DB       *sql.DB
	Resolver *fed.Resolver

	// Key signs fetches made while processing, on behalf of the
	// application actor
	Key httpsig.Key
}

func (q *Queue) processActivity(ctx context.Context, sender *ap.Actor, activity *ap.Activity, rawActivity []byte) error {
	slog.Debug("Processing activity", "activity", activity.ID, "type", activity.Type, "sender", sender.ID)

	switch activity.Type {
	case ap.Follow:
		return q.follow(ctx, sender, activity)

	case ap.Accept:
		return q.accept(ctx, sender, activity)

	case ap.Reject:
		return q.reject(ctx, sender, activity)

	case ap.Create:
		return q.create(ctx, sender, activity)

	case ap.Update:
		return q.update(ctx, sender, activity)

	case ap.Delete:
		return q.delete(ctx, sender, activity)

	case ap.Like:
		return q.like(ctx, sender, activity)

	case ap.Join:
		return q.join(ctx, sender, activity)

	case ap.Leave:
		return q.leave(ctx, sender, activity)

	case ap.Announce:
		return q.announce(ctx, sender, activity)

	case ap.Undo:
		return q.undo(ctx, sender, activity)

	default:
		slog.Warn("Ignoring unsupported activity type", "activity", activity.ID, "type", activity.Type)
		return nil
	}
}

func (q *Queue) processActivityWithTimeout(parent context.Context, sender *ap.Actor, activity *ap.Activity, rawActivity []byte) {
	ctx, cancel := context.WithTimeout(parent, q.Config.ActivityProcessingTimeout)
	defer cancel()

	if activity.Actor != sender.ID {
		slog.Warn("Dropping activity not attributed to sender", "activity", activity.ID, "actor", activity.Actor, "sender", sender.ID)
		return
	}

	admitted, err := Admit(ctx, q.DB, activity.ID, q.Config.ProcessedTTL)
	if err != nil {
		slog.Error("Failed to admit activity", "activity", activity.ID, "error", err)
		return
	}
	if !admitted {
		slog.Debug("Skipping already-processed activity", "activity", activity.ID)
		return
	}

	if err := q.processActivity(ctx, sender, activity, rawActivity); err != nil {
		slog.Warn("Failed to process activity", "activity", activity.ID, "type", activity.Type, "error", err)
	}
}

// ProcessBatch processes one batch of incoming activities, in arrival
// order, and returns the number of processed rows.
func (q *Queue) ProcessBatch(ctx context.Context) (int, error) {
	slog.Debug("Polling activities queue")

	rows, err := q.DB.QueryContext(
		ctx,
		`select inbox.rowid, persons.actor, inbox.activity from inbox left join persons on persons.id = inbox.sender order by inbox.rowid limit ?`,
		q.Config.InboxBatchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch activities to process: %w", err)
	}
	defer rows.Close()

	activities := data.OrderedMap[string, string]{}
	var maxID int64
	var rowsCount int

	for rows.Next() {
		rowsCount++

		var id int64
		var activityString string
		var senderString sql.NullString
		if err := rows.Scan(&id, &senderString, &activityString); err != nil {
			slog.Error("Failed to scan activity", "error", err)
			continue
		}

		maxID = id

		if !senderString.Valid {
			slog.Warn("Sender is unknown", "id", id)
			continue
		}

		activities.Store(activityString, senderString.String)
	}
	rows.Close()

	if rowsCount == 0 {
		return 0, nil
	}

	activities.Range(func(activityString, senderString string) bool {
		var activity ap.Activity
		if err := json.Unmarshal([]byte(activityString), &activity); err != nil {
			slog.Error("Failed to unmarshal activity", "error", err)
			return true
		}

		var sender ap.Actor
		if err := json.Unmarshal([]byte(senderString), &sender); err != nil {
			slog.Error("Failed to unmarshal actor", "error", err)
			return true
		}

		q.processActivityWithTimeout(ctx, &sender, &activity, []byte(activityString))
		return true
	})

	if _, err := q.DB.ExecContext(ctx, `delete from inbox where rowid <= ?`, maxID); err != nil {
		return 0, fmt.Errorf("failed to delete processed activities: %w", err)
	}

	return rowsCount, nil
}

// Process polls the queue of incoming activities and processes them.
func (q *Queue) Process(ctx context.Context) error {
	t := time.NewTicker(q.Config.InboxPollingInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-t.C:
			for {
				n, err := q.ProcessBatch(ctx)
				if err != nil {
					return err
				}

				if n < q.Config.InboxBatchSize {
					break
				}
			}
		}
	}
}
