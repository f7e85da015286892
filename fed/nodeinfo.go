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
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gatherfed/gather/buildinfo"
)

func (l *Listener) nodeInfo20(users, events int64) map[string]any {
	usage := map[string]any{
		"users":      map[string]any{},
		"localPosts": 0,
	}
	if l.Config.FillNodeInfoUsage {
		usage = map[string]any{
			"users": map[string]any{
				"total": users,
			},
			"localPosts": events,
		}
	}

	return map[string]any{
		"version": "2.0",
		"software": map[string]any{
			"name":    "gather",
			"version": buildinfo.Version,
		},
		"protocols": []string{
			"activitypub",
		},
		"services": map[string]any{
			"outbound": []any{},
			"inbound":  []any{},
		},
		"usage":             usage,
		"openRegistrations": false,
		"metadata":          map[string]any{},
	}
}

func (l *Listener) addNodeInfo(mux *http.ServeMux) error {
	links, err := json.Marshal(map[string]any{
		"links": []map[string]any{
			{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				"href": fmt.Sprintf("https://%s/nodeinfo/2.0", l.Domain),
			},
			{
				"rel":  "https://www.w3.org/ns/activitystreams#Application",
				"href": fmt.Sprintf("https://%s/actor", l.Domain),
			},
		},
	})
	if err != nil {
		return err
	}

	mux.HandleFunc("GET /.well-known/nodeinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(links)
	})

	var cacheLock sync.Mutex
	var users, events int64
	var last time.Time

	mux.HandleFunc("GET /nodeinfo/2.0", func(w http.ResponseWriter, r *http.Request) {
		if l.Config.FillNodeInfoUsage {
			cacheLock.Lock()
			defer cacheLock.Unlock()

			now := time.Now()
			if now.Sub(last) >= l.Config.NodeInfoRefreshInterval {
				if err := l.DB.QueryRowContext(
					r.Context(),
					// the application actor doesn't count as a user
					`select (select count(*)-1 from persons where host = $1), (select count(*) from objects where host = $1 and object->>'$.type' = 'Event')`,
					l.Domain,
				).Scan(&users, &events); err != nil {
					slog.Warn("Failed to build nodeinfo response", "error", err)
					w.WriteHeader(http.StatusInternalServerError)
					return
				}

				last = now
			}
		}

		body, err := json.Marshal(l.nodeInfo20(users, events))
		if err != nil {
			slog.Warn("Failed to build nodeinfo response", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	return nil
}
