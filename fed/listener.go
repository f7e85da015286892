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

// Package fed implements federation: signed delivery of activities to
// other servers, verification and queueing of incoming activities, actor
// and instance discovery, and audience resolution.
package fed

import (
	"context"
	"database/sql"
	"net"
	"net/http"

	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/httpsig"
)

// Listener handles requests from other servers: inbox POSTs, WebFinger
// and NodeInfo lookups and actor document GETs.
type Listener struct {
	Domain   string
	Config   *cfg.Config
	DB       *sql.DB
	Resolver *Resolver
	Verifier *Verifier

	// ActorKey signs outgoing fetches triggered by incoming requests,
	// on behalf of the application actor
	ActorKey httpsig.Key
}

func robots(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("User-agent: *\n"))
	w.Write([]byte("Disallow: /\n"))
}

// Handler builds the routing table.
func (l *Listener) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /robots.txt", robots)
	mux.HandleFunc("GET /.well-known/webfinger", l.handleWebFinger)
	mux.HandleFunc("GET /user/{username}", l.handleUser)
	mux.HandleFunc("GET /icon/{file}", l.handleIcon)
	mux.HandleFunc("GET /actor", l.handleApplicationActor)
	mux.HandleFunc("POST /inbox/{username}", l.handleInbox)
	mux.HandleFunc("POST /inbox", l.handleSharedInbox)

	if err := l.addNodeInfo(mux); err != nil {
		return nil, err
	}

	return mux, nil
}

// ListenAndServe handles requests from other servers.
func (l *Listener) ListenAndServe(ctx context.Context, addr, cert, key string) error {
	handler, err := l.Handler()
	if err != nil {
		return err
	}

	server := http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	if cert == "" && key == "" {
		// plain HTTP, for deployments behind a TLS-terminating proxy
		return server.ListenAndServe()
	}

	return server.ListenAndServeTLS(cert, key)
}
