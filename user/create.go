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

// Package user creates local actors and manages their keys.
package user

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/gatherfed/gather/ap"
	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/icon"
)

var ErrInvalidUserName = errors.New("invalid user name")

func genKey() ([]byte, []byte, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	privDer, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	pubDer, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	privPem := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDer})
	pubPem := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDer})

	return privPem, pubPem, nil
}

func insert(ctx context.Context, domain string, db *sql.DB, config *cfg.Config, actor *ap.Actor, privPem []byte) error {
	body, err := json.Marshal(actor)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", actor.ID, err)
	}

	privkey, err := EncryptKey(config.KeySecret, privPem)
	if err != nil {
		return fmt.Errorf("failed to encrypt key for %s: %w", actor.ID, err)
	}

	if _, err := db.ExecContext(
		ctx,
		`INSERT INTO persons(id, actor, privkey, host) VALUES(?,?,?,?)`,
		actor.ID,
		string(body),
		privkey,
		domain,
	); err != nil {
		return fmt.Errorf("failed to insert %s: %w", actor.ID, err)
	}

	return nil
}

// Create creates a local actor with a fresh RSA keypair.
func Create(ctx context.Context, domain string, db *sql.DB, config *cfg.Config, name string) (*ap.Actor, error) {
	if !config.CompiledUserNameRegex.MatchString(name) {
		return nil, fmt.Errorf("cannot create %s: %w", name, ErrInvalidUserName)
	}

	privPem, pubPem, err := genKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair for %s: %w", name, err)
	}

	id := fmt.Sprintf("https://%s/user/%s", domain, name)

	actor := ap.Actor{
		Context: []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		ID:                id,
		Type:              ap.Person,
		PreferredUsername: name,
		Inbox:             fmt.Sprintf("https://%s/inbox/%s", domain, name),
		Outbox:            fmt.Sprintf("https://%s/outbox/%s", domain, name),
		Followers:         fmt.Sprintf("https://%s/followers/%s", domain, name),
		Endpoints: map[string]string{
			"sharedInbox": fmt.Sprintf("https://%s/inbox", domain),
		},
		PublicKey: ap.PublicKey{
			ID:           id + "#main-key",
			Owner:        id,
			PublicKeyPem: string(pubPem),
		},
		Icon: ap.Attachment{
			Type:      ap.ImageAttachment,
			MediaType: icon.MediaType,
			URL:       fmt.Sprintf("https://%s/icon/%s%s", domain, name, icon.FileNameExtension),
		},
	}

	if err := insert(ctx, domain, db, config, &actor, privPem); err != nil {
		return nil, err
	}

	return &actor, nil
}

// CreateApplication creates the instance-wide application actor used to
// sign fetches on behalf of the server itself.
func CreateApplication(ctx context.Context, domain string, db *sql.DB, config *cfg.Config) (*ap.Actor, error) {
	id := fmt.Sprintf("https://%s/actor", domain)

	var existing ap.Actor
	if err := db.QueryRowContext(ctx, `select actor from persons where id = ?`, id).Scan(&existing); err == nil {
		return &existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to fetch %s: %w", id, err)
	}

	privPem, pubPem, err := genKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair for %s: %w", id, err)
	}

	actor := ap.Actor{
		Context: []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		ID:                id,
		Type:              ap.Application,
		PreferredUsername: domain,
		Inbox:             fmt.Sprintf("https://%s/inbox", domain),
		PublicKey: ap.PublicKey{
			ID:           id + "#main-key",
			Owner:        id,
			PublicKeyPem: string(pubPem),
		},
		ManuallyApprovesFollowers: true,
	}

	if err := insert(ctx, domain, db, config, &actor, privPem); err != nil {
		return nil, err
	}

	return &actor, nil
}
