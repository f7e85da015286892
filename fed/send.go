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
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatherfed/gather/buildinfo"
	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/httpsig"
	"github.com/gowebpki/jcs"
)

var userAgent = "gather/" + buildinfo.Version

// sender sends signed requests to other servers.
type sender struct {
	Domain string
	Config *cfg.Config
	client Client
}

func (s *sender) send(key httpsig.Key, req *http.Request) (*http.Response, error) {
	urlString := req.URL.String()

	if req.URL.Scheme != "https" {
		return nil, fmt.Errorf("cannot send request to %s: %w", urlString, ErrInvalidScheme)
	}

	if err := httpsig.Sign(req, key, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to sign request for %s: %w", urlString, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", urlString, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, err := io.ReadAll(io.LimitReader(resp.Body, s.Config.MaxResponseBodySize))
		resp.Body.Close()
		if err != nil {
			return resp, fmt.Errorf("failed to send request to %s: %d, %w", urlString, resp.StatusCode, err)
		}
		return resp, fmt.Errorf("failed to send request to %s: %d, %s", urlString, resp.StatusCode, string(body))
	}

	return resp, nil
}

// get sends a signed GET request and returns the response.
func (s *sender) get(ctx context.Context, key httpsig.Key, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/activity+json")

	return s.send(key, req)
}

// post sends a signed POST request carrying an activity.
// The payload is canonicalized (RFC 8785) before signing, so the digest
// covers the exact bytes that reach the wire.
func (s *sender) post(ctx context.Context, key httpsig.Key, inbox string, body []byte) error {
	if inbox == "" {
		return fmt.Errorf("cannot send activity: empty inbox")
	}

	canonical, err := jcs.Transform(body)
	if err != nil {
		return fmt.Errorf("failed to canonicalize activity for %s: %w", inbox, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(canonical))
	if err != nil {
		return fmt.Errorf("failed to send activity to %s: %w", inbox, err)
	}

	if req.URL.Host == s.Domain {
		slog.Info("Skipping delivery to local inbox", "inbox", inbox)
		return nil
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)

	resp, err := s.send(key, req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}
