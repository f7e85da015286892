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

package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gatherfed/gather/cfg"
)

// Delivery status values, redeclared from the fed package because fed
// depends on this one. Must stay in sync with fed's enum.
const (
	deliveryPending = iota
	deliveryRetrying
	deliveryDelivered
	deliveryFailed
)

// GarbageCollector deletes old data: expired idempotency records,
// settled deliveries, stale remote objects and idle remote actors.
type GarbageCollector struct {
	Domain string
	Config *cfg.Config
	DB     *sql.DB
}

// Collect deletes old data.
func (gc *GarbageCollector) Collect(ctx context.Context) error {
	now := time.Now()

	if _, err := gc.DB.ExecContext(ctx, `delete from processed where expires <= unixepoch()`); err != nil {
		return fmt.Errorf("failed to remove expired idempotency records: %w", err)
	}

	if _, err := gc.DB.ExecContext(ctx, `delete from deliveries where status in (?, ?) and inserted < ?`, deliveryDelivered, deliveryFailed, now.Add(-gc.Config.DeliveryTTL).Unix()); err != nil {
		return fmt.Errorf("failed to remove settled deliveries: %w", err)
	}

	if _, err := gc.DB.ExecContext(ctx, `delete from outbox where resolved = 1 and inserted < ? and not exists (select 1 from deliveries where deliveries.activity = outbox.activity->>'$.id' and deliveries.status in (?, ?))`, now.Add(-gc.Config.DeliveryTTL).Unix(), deliveryPending, deliveryRetrying); err != nil {
		return fmt.Errorf("failed to remove delivered activities: %w", err)
	}

	if _, err := gc.DB.ExecContext(ctx, `delete from objects where host != ? and updated < ? and not exists (select 1 from attendance where attendance.event = objects.id)`, gc.Domain, now.Add(-gc.Config.ObjectTTL).Unix()); err != nil {
		return fmt.Errorf("failed to remove old remote objects: %w", err)
	}

	if _, err := gc.DB.ExecContext(ctx, `delete from likes where not exists (select 1 from objects where objects.id = likes.object)`); err != nil {
		return fmt.Errorf("failed to remove orphaned likes: %w", err)
	}

	if _, err := gc.DB.ExecContext(ctx, `delete from attendance where not exists (select 1 from objects where objects.id = attendance.event)`); err != nil {
		return fmt.Errorf("failed to remove orphaned attendance: %w", err)
	}

	if _, err := gc.DB.ExecContext(ctx, `delete from shares where not exists (select 1 from objects where objects.id = shares.object)`); err != nil {
		return fmt.Errorf("failed to remove orphaned shares: %w", err)
	}

	if _, err := gc.DB.ExecContext(ctx, `delete from persons where host != ? and updated < ? and not exists (select 1 from follows where follower = persons.id or followed = persons.id) and not exists (select 1 from objects where objects.author = persons.id)`, gc.Domain, now.Add(-gc.Config.ActorTTL).Unix()); err != nil {
		return fmt.Errorf("failed to remove idle actors: %w", err)
	}

	return nil
}

// Run collects garbage periodically until the context is cancelled.
func (gc *GarbageCollector) Run(ctx context.Context) error {
	ticker := time.NewTicker(gc.Config.GarbageCollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if err := gc.Collect(ctx); err != nil {
				return err
			}
		}
	}
}
