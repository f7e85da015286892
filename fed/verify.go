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
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gatherfed/gather/ap"
	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/httpsig"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Verifier verifies signatures on incoming requests and resolves the
// signing actor. Public keys are cached to avoid a fetch per request.
type Verifier struct {
	Domain   string
	Config   *cfg.Config
	Resolver *Resolver
	keys     *lru.LRU[string, *rsa.PublicKey]
}

// NewVerifier returns a new [Verifier].
func NewVerifier(domain string, config *cfg.Config, resolver *Resolver) *Verifier {
	return &Verifier{
		Domain:   domain,
		Config:   config,
		Resolver: resolver,
		keys:     lru.NewLRU[string, *rsa.PublicKey](config.KeyCacheSize, nil, config.KeyCacheTTL),
	}
}

func parsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, errors.New("no PEM block in public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		rsaPub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return rsaPub, nil
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}

	return rsaPub, nil
}

func (v *Verifier) verifyWithActor(ctx context.Context, sig *httpsig.Signature, key httpsig.Key, flags ap.ResolverFlag) (*ap.Actor, error) {
	actor, err := v.Resolver.ResolveID(ctx, key, sig.KeyID, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", sig.KeyID, err)
	}

	pub, err := parsePublicKey(actor.PublicKey.PublicKeyPem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key %s: %w", sig.KeyID, err)
	}

	if err := sig.Verify(pub); err != nil {
		return nil, err
	}

	v.keys.Add(sig.KeyID, pub)
	return actor, nil
}

// Verify verifies the signature on an incoming request and returns the
// signing actor. If a cached key no longer verifies, the actor is fetched
// again once: the key may have been rotated.
func (v *Verifier) Verify(ctx context.Context, r *http.Request, body []byte, key httpsig.Key, flags ap.ResolverFlag) (*ap.Actor, error) {
	sig, err := httpsig.Extract(r, body, v.Domain, time.Now(), v.Config.MaxRequestAge)
	if err != nil {
		return nil, err
	}

	if pub, ok := v.keys.Get(sig.KeyID); ok {
		if err := sig.Verify(pub); err == nil {
			return v.Resolver.ResolveID(ctx, key, sig.KeyID, flags)
		}

		// cached key is stale or wrong, drop it and fetch a fresh one
		v.keys.Remove(sig.KeyID)
		return v.verifyWithActor(ctx, sig, key, flags|ap.Refresh)
	}

	actor, err := v.verifyWithActor(ctx, sig, key, flags)
	if err == nil {
		return actor, nil
	}

	if flags&ap.Offline != 0 || errors.Is(err, ErrBlockedDomain) || errors.Is(err, ErrActorGone) {
		return nil, err
	}

	// the cached actor document may carry a rotated-out key
	return v.verifyWithActor(ctx, sig, key, flags|ap.Refresh)
}
