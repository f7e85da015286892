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

package fedtest

import (
	"context"
	"database/sql"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/fed"
	"github.com/gatherfed/gather/httpsig"
	"github.com/gatherfed/gather/inbox"
	"github.com/gatherfed/gather/migrations"
	"github.com/gatherfed/gather/user"
	_ "github.com/mattn/go-sqlite3"
)

// Server is one in-process server.
type Server struct {
	Domain    string
	Config    *cfg.Config
	DB        *sql.DB
	Resolver  *fed.Resolver
	Verifier  *fed.Verifier
	Handler   http.Handler
	Deliverer *fed.Queue
	Inbox     *inbox.Queue
	ActorKey  httpsig.Key
}

// NewServer starts an in-process server and registers it with the
// client, so other servers can reach it by domain.
func NewServer(t *testing.T, domain string, client Client) *Server {
	t.Helper()

	config := cfg.Config{}
	config.FillDefaults()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "db.sqlite3?"+config.DatabaseOptions))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()

	if err := migrations.Run(ctx, domain, db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	if _, err := user.CreateApplication(ctx, domain, db, &config); err != nil {
		t.Fatalf("Failed to create application actor: %v", err)
	}

	actorKey, err := fed.LoadKey(ctx, db, &config, "https://"+domain+"/actor")
	if err != nil {
		t.Fatalf("Failed to load application actor key: %v", err)
	}

	resolver := fed.NewResolver(nil, domain, &config, client, db, nil)
	verifier := fed.NewVerifier(domain, &config, resolver)

	listener := fed.Listener{
		Domain:   domain,
		Config:   &config,
		DB:       db,
		Resolver: resolver,
		Verifier: verifier,
		ActorKey: actorKey,
	}

	handler, err := listener.Handler()
	if err != nil {
		t.Fatalf("Failed to build handler: %v", err)
	}

	s := &Server{
		Domain:   domain,
		Config:   &config,
		DB:       db,
		Resolver: resolver,
		Verifier: verifier,
		Handler:  handler,
		Deliverer: &fed.Queue{
			Domain:   domain,
			Config:   &config,
			DB:       db,
			Resolver: resolver,
		},
		Inbox: &inbox.Queue{
			Domain:   domain,
			Config:   &config,
			DB:       db,
			Resolver: resolver,
			Key:      actorKey,
		},
		ActorKey: actorKey,
	}

	client[domain] = s
	return s
}

// Register creates a local actor.
func (s *Server) Register(t *testing.T, name string) *Server {
	t.Helper()

	if _, err := user.Create(context.Background(), s.Domain, s.DB, s.Config, name); err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}

	return s
}

// Settle drains the delivery and processing queues of every server until
// no work remains, so a test can assert on the post-federation state.
func (f Client) Settle(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for {
		busy := false

		for _, s := range f {
			if err := s.Deliverer.ProcessBatch(ctx); err != nil {
				t.Fatalf("Failed to deliver activities on %s: %v", s.Domain, err)
			}

			n, err := s.Inbox.ProcessBatch(ctx)
			if err != nil {
				t.Fatalf("Failed to process activities on %s: %v", s.Domain, err)
			}
			if n > 0 {
				busy = true
			}

			var pending int
			if err := s.DB.QueryRowContext(ctx, `select exists (select 1 from outbox where resolved = 0 union select 1 from deliveries where status in (0, 1) and next <= unixepoch())`).Scan(&pending); err != nil {
				t.Fatalf("Failed to check queues on %s: %v", s.Domain, err)
			}
			if pending == 1 {
				busy = true
			}
		}

		if !busy {
			return
		}

		if ctx.Err() != nil {
			t.Fatal("Queues did not settle")
		}
	}
}
