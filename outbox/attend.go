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

// Join queues a Join activity that marks the actor as attending an event.
func Join(ctx context.Context, domain string, tx *sql.Tx, actor *ap.Actor, event *ap.Object) error {
	if event.Type != ap.Event {
		return fmt.Errorf("cannot join %s: not an event", event.ID)
	}

	id, err := NewID(domain, "join")
	if err != nil {
		return err
	}

	if res, err := tx.ExecContext(
		ctx,
		`INSERT INTO attendance (id, actor, event) VALUES(?, ?, ?) ON CONFLICT(actor, event) DO NOTHING`,
		id,
		actor.ID,
		event.ID,
	); err != nil {
		return fmt.Errorf("failed to join %s: %w", event.ID, err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to join %s: %w", event.ID, err)
	} else if n == 0 {
		return fmt.Errorf("failed to join %s: already attending", event.ID)
	}

	recipients := ap.Audience{}
	recipients.Add(event.AttributedTo)

	join := ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      id,
		Type:    ap.Join,
		Actor:   actor.ID,
		Object:  event.ID,
		To:      recipients,
	}

	return queue(ctx, tx, &join, actor.ID, ap.Audience{})
}

// Leave queues a Leave activity that withdraws the actor's attendance.
func Leave(ctx context.Context, domain string, tx *sql.Tx, actor *ap.Actor, event *ap.Object) error {
	id, err := NewID(domain, "leave")
	if err != nil {
		return err
	}

	if res, err := tx.ExecContext(
		ctx,
		`delete from attendance where actor = ? and event = ?`,
		actor.ID,
		event.ID,
	); err != nil {
		return fmt.Errorf("failed to leave %s: %w", event.ID, err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to leave %s: %w", event.ID, err)
	} else if n == 0 {
		return fmt.Errorf("failed to leave %s: not attending", event.ID)
	}

	recipients := ap.Audience{}
	recipients.Add(event.AttributedTo)

	leave := ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      id,
		Type:    ap.Leave,
		Actor:   actor.ID,
		Object:  event.ID,
		To:      recipients,
	}

	return queue(ctx, tx, &leave, actor.ID, ap.Audience{})
}
