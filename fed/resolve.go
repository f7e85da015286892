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
	"hash/crc32"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gatherfed/gather/ap"
	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/httpsig"
	"golang.org/x/sync/semaphore"
)

// Resolver retrieves actor objects given their ID or handle.
// Actors are cached, refreshed periodically and deleted once gone from
// their home server.
type Resolver struct {
	sender
	BlockedDomains *BlockList
	Instances      *Instances
	db             *sql.DB
	locks          []*semaphore.Weighted
}

var (
	ErrActorGone      = errors.New("actor is gone")
	ErrNoLocalActor   = errors.New("no such local user")
	ErrActorNotCached = errors.New("actor is not cached")
	ErrBlockedDomain  = errors.New("domain is blocked")
	ErrInvalidScheme  = errors.New("invalid scheme")
	ErrInvalidHost    = errors.New("invalid host")
)

type webFingerResponse struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

// NewResolver returns a new [Resolver].
func NewResolver(blockedDomains *BlockList, domain string, config *cfg.Config, client Client, db *sql.DB, instances *Instances) *Resolver {
	r := Resolver{
		sender: sender{
			Domain: domain,
			Config: config,
			client: client,
		},
		BlockedDomains: blockedDomains,
		Instances:      instances,
		db:             db,
		locks:          make([]*semaphore.Weighted, config.MaxResolverRequests),
	}
	for i := range r.locks {
		r.locks[i] = semaphore.NewWeighted(1)
	}

	return &r
}

// IsBlocked determines if a domain is blocked, either through the
// blocklist file or through the instances table.
func (r *Resolver) IsBlocked(ctx context.Context, host string) bool {
	if r.BlockedDomains != nil && r.BlockedDomains.Contains(host) {
		return true
	}

	var blocked int
	if err := r.db.QueryRowContext(ctx, `select exists (select 1 from instances where host = ? and blocked = 1)`, host).Scan(&blocked); err != nil {
		slog.Warn("Failed to check if domain is blocked", "host", host, "error", err)
		return false
	}

	return blocked == 1
}

// ResolveID retrieves an actor object by its ID or key ID.
func (r *Resolver) ResolveID(ctx context.Context, key httpsig.Key, id string, flags ap.ResolverFlag) (*ap.Actor, error) {
	if id == "" {
		return nil, errors.New("empty ID")
	}

	u, err := url.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve %s: %w", id, err)
	}

	if u.Scheme != "https" {
		return nil, ErrInvalidScheme
	}

	return r.validate(func() (*ap.Actor, *ap.Actor, error) { return r.tryResolveID(ctx, key, u, id, flags) })
}

// Resolve retrieves an actor object by host and preferred username.
func (r *Resolver) Resolve(ctx context.Context, key httpsig.Key, host, name string, flags ap.ResolverFlag) (*ap.Actor, error) {
	return r.validate(func() (*ap.Actor, *ap.Actor, error) { return r.tryResolve(ctx, key, host, name, flags) })
}

func (r *Resolver) validate(try func() (*ap.Actor, *ap.Actor, error)) (*ap.Actor, error) {
	actor, cachedActor, err := try()
	if err != nil && cachedActor != nil {
		slog.Warn("Using old cache entry for actor", "id", cachedActor.ID, "error", err)
		return cachedActor, nil
	} else if actor == nil {
		return cachedActor, err
	}
	return actor, err
}

func deleteActor(ctx context.Context, db *sql.DB, id string) {
	if _, err := db.ExecContext(ctx, `delete from objects where author = ?`, id); err != nil {
		slog.Warn("Failed to delete objects by actor", "id", id, "error", err)
	}

	if _, err := db.ExecContext(ctx, `delete from likes where actor = ?`, id); err != nil {
		slog.Warn("Failed to delete likes by actor", "id", id, "error", err)
	}

	if _, err := db.ExecContext(ctx, `delete from attendance where actor = ?`, id); err != nil {
		slog.Warn("Failed to delete attendance by actor", "id", id, "error", err)
	}

	if _, err := db.ExecContext(ctx, `delete from shares where by = ?`, id); err != nil {
		slog.Warn("Failed to delete shares by actor", "id", id, "error", err)
	}

	if _, err := db.ExecContext(ctx, `delete from follows where follower = $1 or followed = $1`, id); err != nil {
		slog.Warn("Failed to delete follows for actor", "id", id, "error", err)
	}

	if _, err := db.ExecContext(ctx, `delete from persons where id = ?`, id); err != nil {
		slog.Warn("Failed to delete actor", "id", id, "error", err)
	}
}

func (r *Resolver) handleFetchFailure(ctx context.Context, fetched string, cachedActor *ap.Actor, sinceLastUpdate time.Duration, resp *http.Response, err error) (*ap.Actor, *ap.Actor, error) {
	if resp != nil && (resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound) {
		if cachedActor != nil {
			slog.Warn("Actor is gone, deleting associated rows", "id", cachedActor.ID)
			deleteActor(ctx, r.db, cachedActor.ID)
		}
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", fetched, ErrActorGone)
	}

	var (
		urlError *url.Error
		opError  *net.OpError
		dnsError *net.DNSError
	)
	// the server's domain expired (NXDOMAIN) and enough time has passed
	if sinceLastUpdate > r.Config.MaxInstanceRecoveryTime && errors.As(err, &urlError) && errors.As(urlError.Err, &opError) && errors.As(opError.Err, &dnsError) && dnsError.IsNotFound {
		if cachedActor != nil {
			slog.Warn("Server is probably gone, deleting associated rows", "id", cachedActor.ID)
			deleteActor(ctx, r.db, cachedActor.ID)
		}
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", fetched, err)
	}

	return nil, cachedActor, fmt.Errorf("failed to fetch %s: %w", fetched, err)
}

// needFetch determines if a cache entry is too old and enough time has
// passed since the last fetch attempt against this actor.
func (r *Resolver) needFetch(sinceLastUpdate time.Duration, fetched sql.NullInt64, flags ap.ResolverFlag) bool {
	if flags&ap.Refresh != 0 {
		return true
	}

	return sinceLastUpdate >= r.Config.ResolverCacheTTL && (!fetched.Valid || time.Since(time.Unix(fetched.Int64, 0)) >= r.Config.ResolverRetryInterval)
}

func (r *Resolver) tryResolve(ctx context.Context, key httpsig.Key, host, name string, flags ap.ResolverFlag) (*ap.Actor, *ap.Actor, error) {
	slog.Debug("Resolving actor", "host", host, "name", name)

	if name == "" {
		return nil, nil, fmt.Errorf("cannot resolve @%s: empty name", host)
	}

	if r.IsBlocked(ctx, host) {
		return nil, nil, ErrBlockedDomain
	}

	isLocal := host == r.Domain

	var lockID uint32
	if !isLocal && flags&ap.Offline == 0 {
		lockID = crc32.ChecksumIEEE([]byte(host+name)) % uint32(len(r.locks))
		lock := r.locks[lockID]
		if err := lock.Acquire(ctx, 1); err != nil {
			return nil, nil, err
		}
		defer lock.Release(1)
	}

	var tmp ap.Actor
	var cachedActor *ap.Actor

	var updated int64
	var fetched sql.NullInt64
	var sinceLastUpdate time.Duration
	if err := r.db.QueryRowContext(ctx, `select actor, updated, fetched from persons where actor->>'$.preferredUsername' = $1 and host = $2`, name, host).Scan(&tmp, &updated, &fetched); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("failed to fetch %s@%s cache: %w", name, host, err)
	} else if err == nil {
		cachedActor = &tmp

		sinceLastUpdate = time.Since(time.Unix(updated, 0))
		if !isLocal && flags&ap.Offline == 0 && r.needFetch(sinceLastUpdate, fetched, flags) {
			slog.Info("Updating old cache entry for actor", "id", cachedActor.ID)
		} else {
			slog.Debug("Resolved actor using cache", "id", cachedActor.ID)
			return nil, cachedActor, nil
		}
	}

	if isLocal {
		return nil, nil, fmt.Errorf("cannot resolve %s@%s: %w", name, host, ErrNoLocalActor)
	}

	if flags&ap.Offline != 0 {
		return nil, nil, fmt.Errorf("cannot resolve %s@%s: %w", name, host, ErrActorNotCached)
	}

	if cachedActor != nil {
		if _, err := r.db.ExecContext(
			ctx,
			`UPDATE persons SET fetched = UNIXEPOCH() WHERE id = ?`,
			cachedActor.ID,
		); err != nil {
			return nil, cachedActor, fmt.Errorf("failed to update last fetch time for %s: %w", cachedActor.ID, err)
		}
	}

	finger := fmt.Sprintf("https://%s/.well-known/webfinger?resource=acct:%s@%s", host, url.QueryEscape(name), host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finger, nil)
	if err != nil {
		return nil, cachedActor, fmt.Errorf("failed to fetch %s: %w", finger, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/jrd+json")

	resp, err := r.send(key, req)
	if err != nil {
		return r.handleFetchFailure(ctx, finger, cachedActor, sinceLastUpdate, resp, err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > r.Config.MaxResponseBodySize {
		return nil, cachedActor, fmt.Errorf("failed to decode %s response: response is too big", finger)
	}

	var fingerResponse webFingerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, r.Config.MaxResponseBodySize)).Decode(&fingerResponse); err != nil {
		return nil, cachedActor, fmt.Errorf("failed to decode %s response: %w", finger, err)
	}

	for _, link := range fingerResponse.Links {
		if link.Rel != "self" {
			continue
		}

		if link.Type != "application/activity+json" && link.Type != `application/ld+json; profile="https://www.w3.org/ns/activitystreams"` {
			continue
		}

		if link.Href == "" {
			continue
		}

		if cachedActor != nil && link.Href != cachedActor.ID {
			return nil, cachedActor, fmt.Errorf("%s does not match %s", link.Href, cachedActor.ID)
		}

		return r.fetchActor(ctx, key, host, link.Href, cachedActor, sinceLastUpdate)
	}

	return nil, cachedActor, fmt.Errorf("no profile link in %s response", finger)
}

func (r *Resolver) tryResolveID(ctx context.Context, key httpsig.Key, u *url.URL, id string, flags ap.ResolverFlag) (*ap.Actor, *ap.Actor, error) {
	slog.Debug("Resolving actor", "id", id)

	if r.IsBlocked(ctx, u.Host) {
		return nil, nil, ErrBlockedDomain
	}

	isLocal := u.Host == r.Domain

	if !isLocal && flags&ap.Offline == 0 {
		lock := r.locks[crc32.ChecksumIEEE([]byte(id))%uint32(len(r.locks))]
		if err := lock.Acquire(ctx, 1); err != nil {
			return nil, nil, err
		}
		defer lock.Release(1)
	}

	var tmp ap.Actor
	var cachedActor *ap.Actor

	var updated int64
	var fetched sql.NullInt64
	var sinceLastUpdate time.Duration
	if err := r.db.QueryRowContext(ctx, `select actor, updated, fetched from persons where id = $1 or actor->>'$.publicKey.id' = $1`, id).Scan(&tmp, &updated, &fetched); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("failed to fetch %s cache: %w", id, err)
	} else if err == nil {
		cachedActor = &tmp

		sinceLastUpdate = time.Since(time.Unix(updated, 0))
		if !isLocal && flags&ap.Offline == 0 && r.needFetch(sinceLastUpdate, fetched, flags) {
			slog.Info("Updating old cache entry for actor", "id", cachedActor.ID)
		} else {
			slog.Debug("Resolved actor using cache", "id", cachedActor.ID)
			return nil, cachedActor, nil
		}
	}

	if isLocal {
		return nil, nil, fmt.Errorf("cannot resolve %s: %w", id, ErrNoLocalActor)
	}

	if flags&ap.Offline != 0 {
		return nil, nil, fmt.Errorf("cannot resolve %s: %w", id, ErrActorNotCached)
	}

	if cachedActor != nil {
		if _, err := r.db.ExecContext(
			ctx,
			`UPDATE persons SET fetched = UNIXEPOCH() WHERE id = ?`,
			cachedActor.ID,
		); err != nil {
			return nil, cachedActor, fmt.Errorf("failed to update last fetch time for %s: %w", cachedActor.ID, err)
		}

		return r.fetchActor(ctx, key, u.Host, cachedActor.ID, cachedActor, sinceLastUpdate)
	}

	return r.fetchActor(ctx, key, u.Host, id, nil, sinceLastUpdate)
}

func (r *Resolver) fetchActor(ctx context.Context, key httpsig.Key, host, profile string, cachedActor *ap.Actor, sinceLastUpdate time.Duration) (*ap.Actor, *ap.Actor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profile, nil)
	if err != nil {
		return nil, cachedActor, fmt.Errorf("failed to fetch %s: %w", profile, err)
	}

	if req.URL.Host != host && !strings.HasSuffix(req.URL.Host, "."+host) {
		return nil, cachedActor, fmt.Errorf("actor link host is %s: %w", req.URL.Host, ErrInvalidHost)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/activity+json")

	resp, err := r.send(key, req)
	if err != nil {
		return r.handleFetchFailure(ctx, profile, cachedActor, sinceLastUpdate, resp, err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > r.Config.MaxResponseBodySize {
		return nil, cachedActor, fmt.Errorf("failed to fetch %s: response is too big", profile)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.Config.MaxResponseBodySize))
	if err != nil {
		return nil, cachedActor, fmt.Errorf("failed to fetch %s: %w", profile, err)
	}

	var actor ap.Actor
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, cachedActor, fmt.Errorf("failed to unmarshal %s: %w", profile, err)
	}

	if actor.ID != profile && actor.PublicKey.ID != profile {
		return nil, cachedActor, fmt.Errorf("%s does not match %s", actor.ID, profile)
	}

	if _, err := r.db.ExecContext(
		ctx,
		`INSERT INTO persons(id, actor, host, fetched) VALUES ($1, $2, $3, UNIXEPOCH()) ON CONFLICT(id) DO UPDATE SET actor = $2, updated = UNIXEPOCH(), fetched = UNIXEPOCH()`,
		actor.ID,
		string(body),
		host,
	); err != nil {
		return nil, cachedActor, fmt.Errorf("failed to cache %s: %w", actor.ID, err)
	}

	if r.Instances != nil {
		r.Instances.Track(host)
	}

	return &actor, cachedActor, nil
}
