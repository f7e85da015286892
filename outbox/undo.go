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
	"errors"
	"fmt"

	"github.com/gatherfed/gather/ap"
)

func undo(ctx context.Context, domain string, tx *sql.Tx, actor string, inner *ap.Activity, to string) error {
	id, err := NewID(domain, "undo")
	if err != nil {
		return err
	}

	recipients := ap.Audience{}
	recipients.Add(to)

	u := ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		ID:      id,
		Type:    ap.Undo,
		Actor:   actor,
		Object:  inner,
		To:      recipients,
	}

	return queue(ctx, tx, &u, actor, ap.Audience{})
}

// Unfollow queues an Undo for an earlier Follow and drops the follow
// edge, whether or not it was accepted.
func Unfollow(ctx context.Context, domain string, tx *sql.Tx, follower *ap.Actor, followed string) error {
	var followID string
	if err := tx.QueryRowContext(
		ctx,
		`select id from follows where follower = ? and followed = ?`,
		follower.ID,
		followed,
	).Scan(&followID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s does not follow %s", follower.ID, followed)
		}
		return fmt.Errorf("failed to unfollow %s: %w", followed, err)
	}

	if err := undo(ctx, domain, tx, follower.ID, &ap.Activity{
		ID:     followID,
		Type:   ap.Follow,
		Actor:  follower.ID,
		Object: followed,
	}, followed); err != nil {
		return err
	}

	if _, err := tx.ExecContext(
		ctx,
		`delete from follows where follower = ? and followed = ?`,
		follower.ID,
		followed,
	); err != nil {
		return fmt.Errorf("failed to unfollow %s: %w", followed, err)
	}

	return nil
}

// UndoLike queues an Undo for an earlier Like.
func UndoLike(ctx context.Context, domain string, tx *sql.Tx, actor *ap.Actor, post *ap.Object) error {
	var likeID string
	if err := tx.QueryRowContext(
		ctx,
		`select id from likes where actor = ? and object = ?`,
		actor.ID,
		post.ID,
	).Scan(&likeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s has not liked %s", actor.ID, post.ID)
		}
		return fmt.Errorf("failed to undo like on %s: %w", post.ID, err)
	}

	if err := undo(ctx, domain, tx, actor.ID, &ap.Activity{
		ID:     likeID,
		Type:   ap.Like,
		Actor:  actor.ID,
		Object: post.ID,
	}, post.AttributedTo); err != nil {
		return err
	}

	if _, err := tx.ExecContext(
		ctx,
		`delete from likes where actor = ? and object = ?`,
		actor.ID,
		post.ID,
	); err != nil {
		return fmt.Errorf("failed to undo like on %s: %w", post.ID, err)
	}

	return nil
}

// UndoAnnounce queues an Undo for an earlier Announce.
func UndoAnnounce(ctx context.Context, domain string, tx *sql.Tx, actor *ap.Actor, post *ap.Object) error {
	var shareID string
	if err := tx.QueryRowContext(
		ctx,
		`select id from shares where by = ? and object = ?`,
		actor.ID,
		post.ID,
	).Scan(&shareID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s has not announced %s", actor.ID, post.ID)
		}
		return fmt.Errorf("failed to undo announce of %s: %w", post.ID, err)
	}

	if err := undo(ctx, domain, tx, actor.ID, &ap.Activity{
		ID:     shareID,
		Type:   ap.Announce,
		Actor:  actor.ID,
		Object: post.ID,
	}, post.AttributedTo); err != nil {
		return err
	}

	if _, err := tx.ExecContext(
		ctx,
		`delete from shares where by = ? and object = ?`,
		actor.ID,
		post.ID,
	); err != nil {
		return fmt.Errorf("failed to undo announce of %s: %w", post.ID, err)
	}

	return nil
}
