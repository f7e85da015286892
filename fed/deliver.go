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

package fed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gatherfed/gather/ap"
	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/httpsig"
)

// Delivery status values. Pending and retrying rows are picked up again
// once their next attempt time passes; delivered and failed are terminal.
const (
	DeliveryPending = iota
	DeliveryRetrying
	DeliveryDelivered
	DeliveryFailed
)

// Queue delivers queued outgoing activities to remote inboxes.
//
// Each activity is first expanded into one row per target inbox, then
// rows are attempted independently: one slow or dead server never blocks
// delivery to the others. Failed attempts are retried with exponential
// backoff until [cfg.Config.MaxDeliveryAttempts] is reached.
type Queue struct {
	Domain   string
	Config   *cfg.Config
	DB       *sql.DB
	Resolver *Resolver
}

type deliveryJob struct {
	activityID  string
	rawActivity string
	inbox       string
	host        string
	attempts    int
	key         httpsig.Key
}

// Process polls the queue and delivers due activities.
func (q *Queue) Process(ctx context.Context) error {
	t := time.NewTicker(q.Config.OutboxPollingInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-t.C:
			if err := q.ProcessBatch(ctx); err != nil {
				slog.Error("Failed to deliver activities", "error", err)
			}
		}
	}
}

// ProcessBatch expands newly queued activities into per-inbox rows, then
// attempts every row that is due.
func (q *Queue) ProcessBatch(ctx context.Context) error {
	if err := q.resolveOutbox(ctx); err != nil {
		return err
	}

	return q.deliverDue(ctx)
}

func (q *Queue) resolveOutbox(ctx context.Context) error {
	rows, err := q.DB.QueryContext(
		ctx,
		`select outbox.activity, outbox.bcc, outbox.sender, persons.actor from outbox join persons on persons.id = outbox.sender where outbox.resolved = 0 limit ?`,
		q.Config.DeliveryBatchSize,
	)
	if err != nil {
		return fmt.Errorf("failed to fetch unresolved activities: %w", err)
	}
	defer rows.Close()

	type unresolved struct {
		raw    string
		bcc    sql.NullString
		sender string
		actor  ap.Actor
	}
	var batch []unresolved

	for rows.Next() {
		var u unresolved
		if err := rows.Scan(&u.raw, &u.bcc, &u.sender, &u.actor); err != nil {
			slog.Error("Failed to fetch unresolved activity", "error", err)
			continue
		}
		batch = append(batch, u)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to fetch unresolved activities: %w", err)
	}
	rows.Close()

	for _, u := range batch {
		var activity ap.Activity
		if err := json.Unmarshal([]byte(u.raw), &activity); err != nil {
			slog.Error("Failed to unmarshal queued activity", "error", err)
			continue
		}

		addressing := ap.Addressing{To: activity.To, CC: activity.CC}
		if u.bcc.Valid && u.bcc.String != "" {
			if err := json.Unmarshal([]byte(u.bcc.String), &addressing.BCC); err != nil {
				slog.Error("Failed to unmarshal bcc list", "activity", activity.ID, "error", err)
				continue
			}
		}

		key, err := LoadKey(ctx, q.DB, q.Config, u.sender)
		if err != nil {
			slog.Error("Failed to load sender key", "activity", activity.ID, "error", err)
			continue
		}

		inboxes, err := q.Resolver.ResolveAudience(ctx, key, &u.actor, &addressing)
		if err != nil {
			slog.Error("Failed to resolve audience", "activity", activity.ID, "error", err)
			continue
		}

		tx, err := q.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to queue deliveries for %s: %w", activity.ID, err)
		}

		ok := true
		inboxes.Range(func(inbox, host string) bool {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO deliveries(activity, inbox, host) VALUES(?, ?, ?) ON CONFLICT(activity, inbox) DO NOTHING`,
				activity.ID,
				inbox,
				host,
			); err != nil {
				slog.Error("Failed to queue delivery", "activity", activity.ID, "inbox", inbox, "error", err)
				ok = false
				return false
			}
			return true
		})

		if !ok {
			tx.Rollback()
			continue
		}

		if _, err := tx.ExecContext(
			ctx,
			`update outbox set resolved = 1 where activity->>'$.id' = ?`,
			activity.ID,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to mark %s as resolved: %w", activity.ID, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to queue deliveries for %s: %w", activity.ID, err)
		}

		slog.Info("Queued activity for delivery", "activity", activity.ID, "inboxes", len(inboxes))
	}

	return nil
}

func (q *Queue) deliverDue(ctx context.Context) error {
	rows, err := q.DB.QueryContext(
		ctx,
		`select deliveries.activity, deliveries.inbox, deliveries.host, deliveries.attempts, outbox.activity, outbox.sender from deliveries join outbox on outbox.activity->>'$.id' = deliveries.activity where deliveries.status in (?, ?) and deliveries.next <= unixepoch() order by deliveries.next limit ?`,
		DeliveryPending,
		DeliveryRetrying,
		q.Config.DeliveryBatchSize,
	)
	if err != nil {
		return fmt.Errorf("failed to fetch due deliveries: %w", err)
	}
	defer rows.Close()

	keys := map[string]httpsig.Key{}
	var jobs []deliveryJob

	for rows.Next() {
		var job deliveryJob
		var sender string
		if err := rows.Scan(&job.activityID, &job.inbox, &job.host, &job.attempts, &job.rawActivity, &sender); err != nil {
			slog.Error("Failed to fetch due delivery", "error", err)
			continue
		}

		key, ok := keys[sender]
		if !ok {
			key, err = LoadKey(ctx, q.DB, q.Config, sender)
			if err != nil {
				slog.Error("Failed to load sender key", "activity", job.activityID, "error", err)
				continue
			}
			keys[sender] = key
		}
		job.key = key

		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to fetch due deliveries: %w", err)
	}
	rows.Close()

	if len(jobs) == 0 {
		return nil
	}

	ch := make(chan deliveryJob, min(len(jobs), q.Config.DeliveryWorkerBuffer))

	var wg sync.WaitGroup
	for range min(len(jobs), q.Config.DeliveryWorkers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range ch {
				q.deliver(ctx, job)
			}
		}()
	}

	for _, job := range jobs {
		ch <- job
	}
	close(ch)
	wg.Wait()

	return nil
}

func (q *Queue) deliver(ctx context.Context, job deliveryJob) {
	ctx, cancel := context.WithTimeout(ctx, q.Config.DeliveryTimeout)
	defer cancel()

	var err error
	if q.Resolver.IsBlocked(ctx, job.host) {
		err = ErrBlockedDomain
	} else {
		err = q.Resolver.post(ctx, job.key, job.inbox, []byte(job.rawActivity))
	}

	if err == nil {
		// the delivery deadline must not prevent recording the outcome,
		// or a successful POST is re-sent on the next pass
		if _, err := q.DB.ExecContext(
			context.WithoutCancel(ctx),
			`update deliveries set status = ?, attempts = attempts + 1, last = unixepoch(), error = null where activity = ? and inbox = ?`,
			DeliveryDelivered,
			job.activityID,
			job.inbox,
		); err != nil {
			slog.Error("Failed to mark delivery as completed", "activity", job.activityID, "inbox", job.inbox, "error", err)
		}

		slog.Info("Successfully delivered activity", "activity", job.activityID, "inbox", job.inbox, "attempts", job.attempts+1)
		return
	}

	status := DeliveryRetrying
	if errors.Is(err, ErrBlockedDomain) || errors.Is(err, ErrUnroutableAddress) || errors.Is(err, ErrInvalidScheme) || job.attempts+1 >= q.Config.MaxDeliveryAttempts {
		status = DeliveryFailed
	}

	// unixepoch() at update time plus base * 2^attempts
	shift := min(job.attempts, 16)
	backoff := q.Config.DeliveryRetryInterval << shift

	if _, err2 := q.DB.ExecContext(
		context.WithoutCancel(ctx),
		`update deliveries set status = ?, attempts = attempts + 1, last = unixepoch(), next = unixepoch() + ?, error = ? where activity = ? and inbox = ?`,
		status,
		backoff,
		err.Error(),
		job.activityID,
		job.inbox,
	); err2 != nil {
		slog.Error("Failed to record delivery failure", "activity", job.activityID, "inbox", job.inbox, "error", err2)
	}

	if status == DeliveryFailed {
		slog.Warn("Giving up on delivery", "activity", job.activityID, "inbox", job.inbox, "attempts", job.attempts+1, "error", err)
	} else {
		slog.Warn("Failed to deliver activity", "activity", job.activityID, "inbox", job.inbox, "attempts", job.attempts+1, "error", err)
	}
}
