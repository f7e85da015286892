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
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/gatherfed/gather/ap"
	"github.com/gatherfed/gather/data"
	"github.com/gatherfed/gather/httpsig"
	"golang.org/x/sync/semaphore"
)

// ResolveAudience expands the declared recipients of an activity into a
// deduplicated set of inbox URLs, keyed by inbox and mapped to host.
//
// The public collection and followers collections expand to the sender's
// accepted followers using the inbox snapshots taken when each follow was
// accepted, without any network traffic. Direct recipients are resolved
// concurrently and receive the activity in their personal inbox; follower
// fan-out prefers shared inboxes. Local recipients and blocked domains
// are excluded.
func (r *Resolver) ResolveAudience(ctx context.Context, key httpsig.Key, sender *ap.Actor, addressing *ap.Addressing) (data.OrderedMap[string, string], error) {
	recipients := ap.Audience{}
	for _, audience := range []ap.Audience{addressing.To, addressing.CC, addressing.BCC} {
		for _, id := range audience.Keys() {
			recipients.Add(id)
		}
	}

	inboxes := data.OrderedMap[string, string]{}
	var direct []string

	localPrefix := "https://" + r.Domain + "/"

	for _, recipient := range recipients.Keys() {
		switch {
		case recipient == ap.Public, recipient == sender.Followers:
			if err := r.expandFollowers(ctx, sender.ID, inboxes); err != nil {
				return nil, err
			}

		case strings.HasPrefix(recipient, localPrefix+"followers/"):
			// a followers collection of another local actor
			followed, err := r.localActorByFollowers(ctx, recipient)
			if err != nil {
				slog.Warn("Skipping unknown followers collection", "collection", recipient, "error", err)
				continue
			}
			if err := r.expandFollowers(ctx, followed, inboxes); err != nil {
				return nil, err
			}

		case strings.HasPrefix(recipient, localPrefix):
			// local recipients don't go through federation

		default:
			direct = append(direct, recipient)
		}
	}

	if len(direct) > 0 {
		r.resolveDirect(ctx, key, direct, inboxes)
	}

	return inboxes, nil
}

func (r *Resolver) localActorByFollowers(ctx context.Context, collection string) (string, error) {
	var id string
	if err := r.db.QueryRowContext(
		ctx,
		`select id from persons where actor->>'$.followers' = ? and host = ?`,
		collection,
		r.Domain,
	).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to map %s to an actor: %w", collection, err)
	}
	return id, nil
}

func (r *Resolver) expandFollowers(ctx context.Context, followed string, inboxes data.OrderedMap[string, string]) error {
	rows, err := r.db.QueryContext(
		ctx,
		`select follower, inbox, shared_inbox from follows where followed = ? and accepted = 1`,
		followed,
	)
	if err != nil {
		return fmt.Errorf("failed to list followers of %s: %w", followed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var follower string
		var inbox, sharedInbox sql.NullString
		if err := rows.Scan(&follower, &inbox, &sharedInbox); err != nil {
			return fmt.Errorf("failed to list followers of %s: %w", followed, err)
		}

		to := inbox.String
		if sharedInbox.Valid && sharedInbox.String != "" {
			to = sharedInbox.String
		}
		if to == "" {
			slog.Warn("Skipping follower without a known inbox", "follower", follower)
			continue
		}

		r.addInbox(ctx, to, inboxes, nil)
	}

	return rows.Err()
}

func (r *Resolver) resolveDirect(ctx context.Context, key httpsig.Key, recipients []string, inboxes data.OrderedMap[string, string]) {
	sem := semaphore.NewWeighted(r.Config.MaxAudienceRequests)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, recipient := range recipients {
		if err := sem.Acquire(ctx, 1); err != nil {
			slog.Warn("Failed to resolve recipient", "recipient", recipient, "error", err)
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			actor, err := r.ResolveID(ctx, key, recipient, 0)
			if err != nil {
				if !errors.Is(err, ErrBlockedDomain) {
					slog.Warn("Failed to resolve recipient", "recipient", recipient, "error", err)
				}
				return
			}

			if actor.Inbox == "" {
				slog.Warn("Recipient has no inbox", "recipient", recipient)
				return
			}

			r.addInbox(ctx, actor.Inbox, inboxes, &mu)
		}()
	}

	wg.Wait()
}

func (r *Resolver) addInbox(ctx context.Context, inbox string, inboxes data.OrderedMap[string, string], mu *sync.Mutex) {
	u, err := url.Parse(inbox)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		slog.Warn("Skipping invalid inbox", "inbox", inbox, "error", err)
		return
	}

	if u.Host == r.Domain || r.IsBlocked(ctx, u.Host) {
		return
	}

	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	inboxes.Store(inbox, u.Host)
}
