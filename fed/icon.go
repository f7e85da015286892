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
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatherfed/gather/icon"
)

func (l *Listener) handleIcon(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")

	name := strings.TrimSuffix(file, icon.FileNameExtension)
	if name == "" || name == file {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	actorID := "https://" + l.Domain + "/user/" + name

	var exists int
	if err := l.DB.QueryRowContext(r.Context(), `select exists (select 1 from persons where id = ? and host = ?)`, actorID, l.Domain).Scan(&exists); err != nil {
		slog.Warn("Failed to check if user exists", "id", actorID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if exists == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	buf, err := icon.Generate(actorID, l.Config.AvatarSize)
	if err != nil {
		slog.Warn("Failed to generate icon", "id", actorID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", icon.MediaType)
	w.Write(buf)
}
