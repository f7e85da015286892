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
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"fmt"

	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/httpsig"
	"github.com/gatherfed/gather/user"
)

func parsePrivateKey(pemBytes []byte) (any, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// fallback for keys generated by openssl<3.0.0
		priv, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
	}

	return priv, nil
}

// LoadKey loads and decrypts the signing key of a local actor.
func LoadKey(ctx context.Context, db *sql.DB, config *cfg.Config, actorID string) (httpsig.Key, error) {
	var keyID, privkey string
	if err := db.QueryRowContext(
		ctx,
		`select actor->>'$.publicKey.id', privkey from persons where id = ?`,
		actorID,
	).Scan(&keyID, &privkey); err != nil {
		return httpsig.Key{}, fmt.Errorf("failed to fetch key for %s: %w", actorID, err)
	}

	pemBytes, err := user.DecryptKey(config.KeySecret, privkey)
	if err != nil {
		return httpsig.Key{}, fmt.Errorf("failed to decrypt key for %s: %w", actorID, err)
	}

	priv, err := parsePrivateKey(pemBytes)
	if err != nil {
		return httpsig.Key{}, fmt.Errorf("failed to parse key for %s: %w", actorID, err)
	}

	return httpsig.Key{ID: keyID, PrivateKey: priv}, nil
}
