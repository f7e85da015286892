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
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gatherfed/gather/cfg"
)

// Instances discovers the software behind peer servers using NodeInfo
// and records fetch failures, so unreachable servers can be told apart
// from misbehaving ones.
type Instances struct {
	Domain string
	Config *cfg.Config
	DB     *sql.DB
	client Client
	queue  chan string
}

type nodeInfoLinks struct {
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

type nodeInfo struct {
	Software struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
	Usage struct {
		Users struct {
			Total int64 `json:"total"`
		} `json:"users"`
		LocalPosts int64 `json:"localPosts"`
	} `json:"usage"`
}

// NewInstances returns a new [Instances].
func NewInstances(domain string, config *cfg.Config, client Client, db *sql.DB) *Instances {
	return &Instances{
		Domain: domain,
		Config: config,
		DB:     db,
		client: client,
		queue:  make(chan string, config.InstanceQueueSize),
	}
}

// Track queues a host for NodeInfo discovery. Track never blocks: if the
// queue is full, the host is dropped and picked up by a later refresh.
func (t *Instances) Track(host string) {
	if host == t.Domain {
		return
	}

	select {
	case t.queue <- host:
	default:
	}
}

// Process discovers queued hosts and refreshes stale instance metadata.
func (t *Instances) Process(ctx context.Context) error {
	ticker := time.NewTicker(t.Config.NodeInfoRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case host := <-t.queue:
			var known int
			if err := t.DB.QueryRowContext(ctx, `select exists (select 1 from instances where host = ? and fetched >= unixepoch() - ?)`, host, int64(t.Config.NodeInfoRefreshInterval/time.Second)).Scan(&known); err != nil {
				slog.Error("Failed to check instance freshness", "host", host, "error", err)
				continue
			}
			if known == 1 {
				continue
			}

			t.discover(ctx, host)

		case <-ticker.C:
			if err := t.refresh(ctx); err != nil {
				slog.Error("Failed to refresh instances", "error", err)
			}
		}
	}
}

func (t *Instances) refresh(ctx context.Context) error {
	rows, err := t.DB.QueryContext(
		ctx,
		`select host from instances where blocked = 0 and (fetched is null or fetched < unixepoch() - ?)`,
		int64(t.Config.NodeInfoRefreshInterval/time.Second),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return err
		}
		hosts = append(hosts, host)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, host := range hosts {
		t.discover(ctx, host)
	}

	return nil
}

func (t *Instances) discover(ctx context.Context, host string) {
	info, err := t.fetch(ctx, host)
	if err != nil {
		slog.Warn("Failed to fetch nodeinfo", "host", host, "error", err)

		if _, err2 := t.DB.ExecContext(
			ctx,
			`INSERT INTO instances(host, error, error_at) VALUES(?, ?, UNIXEPOCH()) ON CONFLICT(host) DO UPDATE SET error = excluded.error, error_at = excluded.error_at`,
			host,
			err.Error(),
		); err2 != nil {
			slog.Error("Failed to record nodeinfo failure", "host", host, "error", err2)
		}
		return
	}

	if _, err := t.DB.ExecContext(
		ctx,
		`INSERT INTO instances(host, software, version, users, posts, fetched) VALUES(?, ?, ?, ?, ?, UNIXEPOCH()) ON CONFLICT(host) DO UPDATE SET software = excluded.software, version = excluded.version, users = excluded.users, posts = excluded.posts, fetched = excluded.fetched, error = null, error_at = null`,
		host,
		info.Software.Name,
		info.Software.Version,
		info.Usage.Users.Total,
		info.Usage.LocalPosts,
	); err != nil {
		slog.Error("Failed to record instance", "host", host, "error", err)
		return
	}

	slog.Info("Discovered instance", "host", host, "software", info.Software.Name, "version", info.Software.Version)
}

func (t *Instances) getJSON(ctx context.Context, url string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, t.Config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.Config.MaxResponseBodySize))
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

func (t *Instances) fetch(ctx context.Context, host string) (*nodeInfo, error) {
	var links nodeInfoLinks
	if err := t.getJSON(ctx, fmt.Sprintf("https://%s/.well-known/nodeinfo", host), &links); err != nil {
		return nil, err
	}

	var href string
	for _, link := range links.Links {
		if strings.HasSuffix(link.Rel, "/schema/2.0") || strings.HasSuffix(link.Rel, "/schema/2.1") {
			href = link.Href
		}
	}
	if href == "" {
		return nil, fmt.Errorf("no nodeinfo document on %s", host)
	}

	u, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" {
		return nil, ErrInvalidScheme
	}
	if u.Host != host && !strings.HasSuffix(u.Host, "."+host) {
		return nil, fmt.Errorf("nodeinfo link host is %s: %w", u.Host, ErrInvalidHost)
	}

	var info nodeInfo
	if err := t.getJSON(ctx, href, &info); err != nil {
		return nil, err
	}

	if info.Software.Name == "" {
		return nil, fmt.Errorf("empty software name on %s", host)
	}

	return &info, nil
}
