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
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
)

func (l *Listener) serveActor(w http.ResponseWriter, r *http.Request, id string) {
	var actor string
	if err := l.DB.QueryRowContext(r.Context(), `select actor from persons where id = ? and host = ?`, id, l.Domain).Scan(&actor); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Warn("Failed to fetch actor", "id", id, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/activity+json; charset=utf-8")
	w.Write([]byte(actor))
}

func (l *Listener) handleUser(w http.ResponseWriter, r *http.Request) {
	l.serveActor(w, r, "https://"+l.Domain+"/user/"+r.PathValue("username"))
}

func (l *Listener) handleApplicationActor(w http.ResponseWriter, r *http.Request) {
	l.serveActor(w, r, "https://"+l.Domain+"/actor")
}
