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

// gather is a federation daemon for a federated events platform. It
// delivers queued activities to other servers, receives and verifies
// incoming ones and keeps the local cache of remote actors fresh.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gatherfed/gather/buildinfo"
	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/data"
	"github.com/gatherfed/gather/fed"
	"github.com/gatherfed/gather/inbox"
	"github.com/gatherfed/gather/migrations"
	"github.com/gatherfed/gather/user"
	_ "github.com/mattn/go-sqlite3"
)

var (
	domain    = flag.String("domain", "localhost.localdomain:8443", "server domain")
	dbPath    = flag.String("db", "gather.sqlite3", "database path")
	cfgPath   = flag.String("cfg", "", "configuration file path")
	blockList = flag.String("blocklist", "", "blocklist CSV path")
	cert      = flag.String("cert", "", "TLS certificate path")
	key       = flag.String("key", "", "TLS key path")
	addr      = flag.String("addr", ":8443", "listening address")
	logLevel  = flag.Int("loglevel", int(slog.LevelInfo), "log level")
	version   = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *version {
		os.Stdout.WriteString(buildinfo.Version + "\n")
		return
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(*logLevel)})))

	var config cfg.Config
	if *cfgPath != "" {
		f, err := os.Open(*cfgPath)
		if err != nil {
			slog.Error("Failed to open configuration file", "path", *cfgPath, "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&config); err != nil {
			f.Close()
			slog.Error("Failed to parse configuration file", "path", *cfgPath, "error", err)
			os.Exit(1)
		}
		f.Close()
	}
	config.FillDefaults()

	db, err := sql.Open("sqlite3", *dbPath+"?"+config.DatabaseOptions)
	if err != nil {
		slog.Error("Failed to open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		slog.Info("Received termination signal")
		cancel()
	}()

	if err := migrations.Run(ctx, *domain, db); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	applicationActor, err := user.CreateApplication(ctx, *domain, db, &config)
	if err != nil {
		slog.Error("Failed to create application actor", "error", err)
		os.Exit(1)
	}

	actorKey, err := fed.LoadKey(ctx, db, &config, applicationActor.ID)
	if err != nil {
		slog.Error("Failed to load application actor key", "error", err)
		os.Exit(1)
	}

	var blockedDomains *fed.BlockList
	if *blockList != "" {
		blockedDomains, err = fed.NewBlockList(*blockList)
		if err != nil {
			slog.Error("Failed to load blocklist", "path", *blockList, "error", err)
			os.Exit(1)
		}
		defer blockedDomains.Close()
	}

	client := fed.NewClient(&config)
	instances := fed.NewInstances(*domain, &config, client, db)
	resolver := fed.NewResolver(blockedDomains, *domain, &config, client, db, instances)
	verifier := fed.NewVerifier(*domain, &config, resolver)

	listener := fed.Listener{
		Domain:   *domain,
		Config:   &config,
		DB:       db,
		Resolver: resolver,
		Verifier: verifier,
		ActorKey: actorKey,
	}

	deliverer := fed.Queue{
		Domain:   *domain,
		Config:   &config,
		DB:       db,
		Resolver: resolver,
	}

	inboxQueue := inbox.Queue{
		Domain:   *domain,
		Config:   &config,
		DB:       db,
		Resolver: resolver,
		Key:      actorKey,
	}

	gc := data.GarbageCollector{
		Domain: *domain,
		Config: &config,
		DB:     db,
	}

	slog.Info("Starting", "version", buildinfo.Version, "domain", *domain)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.ListenAndServe(ctx, *addr, *cert, *key); err != nil {
			slog.Error("Listener has failed", "error", err)
		}
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := deliverer.Process(ctx); err != nil {
			slog.Error("Delivery queue has failed", "error", err)
		}
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := inboxQueue.Process(ctx); err != nil {
			slog.Error("Inbox queue has failed", "error", err)
		}
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := instances.Process(ctx); err != nil {
			slog.Error("Instance discovery has failed", "error", err)
		}
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gc.Run(ctx); err != nil {
			slog.Error("Garbage collection has failed", "error", err)
		}
		cancel()
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	wg.Wait()
}
