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

package httpsig

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testKey, _ = rsa.GenerateKey(rand.Reader, 2048)

const testKeyID = "https://ip6-allnodes/user/dan#main-key"

func signedRequest(t *testing.T, method, url string, body []byte, now time.Time) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	var r *http.Request
	var err error
	if body == nil {
		r, err = http.NewRequest(method, url, nil)
	} else {
		r, err = http.NewRequest(method, url, reader)
	}
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	if err := Sign(r, Key{ID: testKeyID, PrivateKey: testKey}, now); err != nil {
		t.Fatalf("Failed to sign request: %v", err)
	}

	return r
}

func TestSign_GetRoundTrip(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	r := signedRequest(t, http.MethodGet, "https://localhost.localdomain/user/alice", nil, now)

	sig, err := Extract(r, nil, "localhost.localdomain", now, time.Minute*5)
	assert.NoError(err)
	assert.Equal(testKeyID, sig.KeyID)
	assert.NoError(sig.Verify(&testKey.PublicKey))
}

func TestSign_PostRoundTrip(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	body := []byte(`{"id":"https://ip6-allnodes/create/1","type":"Create"}`)
	r := signedRequest(t, http.MethodPost, "https://localhost.localdomain/inbox/alice", body, now)

	assert.NotEmpty(r.Header.Get("Digest"))

	sig, err := Extract(r, body, "localhost.localdomain", now, time.Minute*5)
	assert.NoError(err)
	assert.NoError(sig.Verify(&testKey.PublicKey))
}

func TestExtract_TamperedBody(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	body := []byte(`{"id":"https://ip6-allnodes/create/1","type":"Create"}`)
	r := signedRequest(t, http.MethodPost, "https://localhost.localdomain/inbox/alice", body, now)

	_, err := Extract(r, []byte(`{"id":"https://ip6-allnodes/create/2","type":"Create"}`), "localhost.localdomain", now, time.Minute*5)
	assert.Error(err)
}

func TestExtract_TamperedDate(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	r := signedRequest(t, http.MethodGet, "https://localhost.localdomain/user/alice", nil, now)
	r.Header.Set("Date", now.Add(time.Minute).UTC().Format(http.TimeFormat))

	sig, err := Extract(r, nil, "localhost.localdomain", now, time.Minute*5)
	assert.NoError(err)
	assert.Error(sig.Verify(&testKey.PublicKey))
}

func TestExtract_WrongKey(t *testing.T) {
	assert := assert.New(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(err)

	now := time.Now()
	r := signedRequest(t, http.MethodGet, "https://localhost.localdomain/user/alice", nil, now)

	sig, err := Extract(r, nil, "localhost.localdomain", now, time.Minute*5)
	assert.NoError(err)
	assert.Error(sig.Verify(&otherKey.PublicKey))
}

func TestExtract_StaleDate(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	r := signedRequest(t, http.MethodGet, "https://localhost.localdomain/user/alice", nil, now.Add(-time.Minute*10))

	_, err := Extract(r, nil, "localhost.localdomain", now, time.Minute*5)
	assert.Error(err)
}

func TestExtract_FutureDate(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	r := signedRequest(t, http.MethodGet, "https://localhost.localdomain/user/alice", nil, now.Add(time.Minute*10))

	_, err := Extract(r, nil, "localhost.localdomain", now, time.Minute*5)
	assert.Error(err)
}

func TestExtract_WrongHost(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	r := signedRequest(t, http.MethodGet, "https://localhost.localdomain/user/alice", nil, now)

	_, err := Extract(r, nil, "ip6-allrouters", now, time.Minute*5)
	assert.Error(err)
}

func TestExtract_UnsignedDigest(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	r := signedRequest(t, http.MethodGet, "https://localhost.localdomain/user/alice", nil, now)

	// the request was signed without a body, so digest is not covered
	_, err := Extract(r, []byte(`{}`), "localhost.localdomain", now, time.Minute*5)
	assert.Error(err)
}

func TestExtract_TwoSignatures(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	r := signedRequest(t, http.MethodGet, "https://localhost.localdomain/user/alice", nil, now)
	r.Header.Add("Signature", r.Header.Get("Signature"))

	_, err := Extract(r, nil, "localhost.localdomain", now, time.Minute*5)
	assert.Error(err)
}

func TestExtract_MissingSignature(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	r := signedRequest(t, http.MethodGet, "https://localhost.localdomain/user/alice", nil, now)
	r.Header.Del("Signature")

	_, err := Extract(r, nil, "localhost.localdomain", now, time.Minute*5)
	assert.Error(err)
}

func TestVerify_SmallKey(t *testing.T) {
	assert := assert.New(t)

	smallKey, err := rsa.GenerateKey(rand.Reader, 1024)
	assert.NoError(err)

	now := time.Now()
	r, err := http.NewRequest(http.MethodGet, "https://localhost.localdomain/user/alice", nil)
	assert.NoError(err)
	assert.NoError(Sign(r, Key{ID: testKeyID, PrivateKey: smallKey}, now))

	sig, err := Extract(r, nil, "localhost.localdomain", now, time.Minute*5)
	assert.NoError(err)
	assert.Error(sig.Verify(&smallKey.PublicKey))
}

func TestSign_EmptyKeyID(t *testing.T) {
	assert := assert.New(t)

	r, err := http.NewRequest(http.MethodGet, "https://localhost.localdomain/user/alice", nil)
	assert.NoError(err)
	assert.Error(Sign(r, Key{PrivateKey: testKey}, time.Now()))
}
