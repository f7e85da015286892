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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gatherfed/gather/ap"
)

func (l *Listener) doHandleInbox(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > l.Config.MaxRequestBodySize {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, l.Config.MaxRequestBodySize))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	var activity ap.Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		slog.Warn("Failed to unmarshal activity", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if activity.ID == "" {
		slog.Warn("Received activity without ID")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// if the actor is deleted, don't try to fetch it just to drop the
	// activity: accept if cached, otherwise ignore
	var flags ap.ResolverFlag
	if activity.Type == ap.Delete {
		flags |= ap.Offline
	}

	sender, err := l.Verifier.Verify(r.Context(), r, body, l.ActorKey, flags)
	if err != nil {
		if errors.Is(err, ErrActorGone) || errors.Is(err, ErrActorNotCached) {
			w.WriteHeader(http.StatusOK)
			return
		}
		if errors.Is(err, ErrBlockedDomain) {
			slog.Debug("Rejecting activity from blocked domain", "activity", activity.ID, "type", activity.Type)
		} else {
			slog.Warn("Failed to verify activity", "activity", activity.ID, "type", activity.Type, "error", err)
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if sender.ID != activity.Actor {
		slog.Warn("Activity actor does not match signer", "activity", activity.ID, "actor", activity.Actor, "signer", sender.ID)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	// receipt and processing are decoupled: the activity is queued and
	// the queue is drained by a separate worker
	if _, err = l.DB.ExecContext(
		r.Context(),
		`INSERT OR IGNORE INTO inbox(sender, activity) VALUES(?, ?)`,
		sender.ID,
		string(body),
	); err != nil {
		slog.Error("Failed to insert activity", "sender", sender.ID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (l *Listener) handleInbox(w http.ResponseWriter, r *http.Request) {
	receiver := r.PathValue("username")

	var registered int
	if err := l.DB.QueryRowContext(r.Context(), `select exists (select 1 from persons where actor->>'$.preferredUsername' = ? and host = ?)`, receiver, l.Domain).Scan(&registered); err != nil {
		slog.Warn("Failed to check if receiving user exists", "receiver", receiver, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	} else if registered == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	l.doHandleInbox(w, r)
}

func (l *Listener) handleSharedInbox(w http.ResponseWriter, r *http.Request) {
	l.doHandleInbox(w, r)
}
