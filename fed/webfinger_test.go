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
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/user"
	"github.com/stretchr/testify/assert"
)

func newTestListener(t *testing.T, config *cfg.Config) (http.Handler, *sql.DB) {
	t.Helper()

	db := newTestDB(t, "localhost.localdomain", config)
	key := newTestActorKey(t, "localhost.localdomain", db, config)

	if _, err := user.Create(context.Background(), "localhost.localdomain", db, config, "alice"); err != nil {
		t.Fatalf("Failed to create alice: %v", err)
	}

	l := Listener{
		Domain:   "localhost.localdomain",
		Config:   config,
		DB:       db,
		ActorKey: key,
	}

	handler, err := l.Handler()
	if err != nil {
		t.Fatalf("Failed to build handler: %v", err)
	}

	return handler, db
}

func finger(t *testing.T, handler http.Handler, resource string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource="+url.QueryEscape(resource), nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestWebFinger_Acct(t *testing.T) {
	assert := assert.New(t)

	var config cfg.Config
	config.FillDefaults()

	handler, _ := newTestListener(t, &config)

	w := finger(t, handler, "acct:alice@localhost.localdomain")
	assert.Equal(http.StatusOK, w.Code)
	assert.Equal("application/jrd+json; charset=utf-8", w.Header().Get("Content-Type"))

	var jrd struct {
		Subject string   `json:"subject"`
		Aliases []string `json:"aliases"`
		Links   []struct {
			Rel  string `json:"rel"`
			Type string `json:"type"`
			Href string `json:"href"`
		} `json:"links"`
	}
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &jrd))

	assert.Equal("acct:alice@localhost.localdomain", jrd.Subject)
	assert.Equal([]string{"https://localhost.localdomain/user/alice"}, jrd.Aliases)
	assert.Len(jrd.Links, 2)
	for _, link := range jrd.Links {
		assert.Equal("self", link.Rel)
		assert.Equal("https://localhost.localdomain/user/alice", link.Href)
	}
}

func TestWebFinger_ActorURL(t *testing.T) {
	assert := assert.New(t)

	var config cfg.Config
	config.FillDefaults()

	handler, _ := newTestListener(t, &config)

	w := finger(t, handler, "https://localhost.localdomain/user/alice")
	assert.Equal(http.StatusOK, w.Code)

	var jrd struct {
		Subject string `json:"subject"`
	}
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &jrd))
	assert.Equal("acct:alice@localhost.localdomain", jrd.Subject)
}

func TestWebFinger_UnknownUser(t *testing.T) {
	assert := assert.New(t)

	var config cfg.Config
	config.FillDefaults()

	handler, _ := newTestListener(t, &config)

	w := finger(t, handler, "acct:bob@localhost.localdomain")
	assert.Equal(http.StatusNotFound, w.Code)
}

func TestWebFinger_NoResource(t *testing.T) {
	assert := assert.New(t)

	var config cfg.Config
	config.FillDefaults()

	handler, _ := newTestListener(t, &config)

	r := httptest.NewRequest(http.MethodGet, "/.well-known/webfinger", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(http.StatusBadRequest, w.Code)
}

func TestWebFinger_WrongDomain(t *testing.T) {
	assert := assert.New(t)

	var config cfg.Config
	config.FillDefaults()

	handler, _ := newTestListener(t, &config)

	w := finger(t, handler, "acct:alice@ip6-allnodes")
	assert.Equal(http.StatusBadRequest, w.Code)
}

func TestWebFinger_MalformedResource(t *testing.T) {
	assert := assert.New(t)

	var config cfg.Config
	config.FillDefaults()

	handler, _ := newTestListener(t, &config)

	w := finger(t, handler, "acct:alice@localhost.localdomain@ip6-allnodes")
	assert.Equal(http.StatusBadRequest, w.Code)
}
