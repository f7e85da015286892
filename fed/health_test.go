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
	"testing"
	"time"

	"github.com/gatherfed/gather/cfg"
	"github.com/stretchr/testify/assert"
)

func TestHealth_AggregatesPerDomain(t *testing.T) {
	assert := assert.New(t)

	var config cfg.Config
	config.FillDefaults()

	db := newTestDB(t, "localhost.localdomain", &config)

	_, err := db.Exec(`
		insert into deliveries (activity, inbox, host, status) values
		('https://localhost.localdomain/create/1', 'https://ip6-allnodes/inbox/dan', 'ip6-allnodes', ?),
		('https://localhost.localdomain/create/2', 'https://ip6-allnodes/inbox/dan', 'ip6-allnodes', ?),
		('https://localhost.localdomain/create/3', 'https://ip6-allnodes/inbox/dan', 'ip6-allnodes', ?),
		('https://localhost.localdomain/create/1', 'https://ip6-allrouters/inbox', 'ip6-allrouters', ?),
		('https://localhost.localdomain/create/2', 'https://ip6-allrouters/inbox', 'ip6-allrouters', ?),
		('https://localhost.localdomain/create/3', 'https://ip6-allrouters/inbox', 'ip6-allrouters', ?)
	`, DeliveryDelivered, DeliveryFailed, DeliveryRetrying, DeliveryDelivered, DeliveryDelivered, DeliveryPending)
	assert.NoError(err)

	_, err = db.Exec(`insert into instances (host, software) values ('ip6-allnodes', 'mastodon')`)
	assert.NoError(err)

	health, err := Health(context.Background(), db, time.Now().Add(-time.Hour))
	assert.NoError(err)
	assert.Len(health, 2)

	// domains with failures come first
	assert.Equal("ip6-allnodes", health[0].Host)
	assert.Equal("mastodon", health[0].Software)
	assert.Equal(int64(1), health[0].Delivered)
	assert.Equal(int64(1), health[0].Failed)
	assert.Equal(int64(1), health[0].Retrying)
	assert.Equal(0.5, health[0].FailureRate())

	assert.Equal("ip6-allrouters", health[1].Host)
	assert.Equal("", health[1].Software)
	assert.Equal(int64(2), health[1].Delivered)
	assert.Equal(int64(0), health[1].Failed)
	assert.Equal(int64(0), health[1].Retrying)
	assert.Equal(0.0, health[1].FailureRate())
}

func TestHealth_SinceCutoff(t *testing.T) {
	assert := assert.New(t)

	var config cfg.Config
	config.FillDefaults()

	db := newTestDB(t, "localhost.localdomain", &config)

	_, err := db.Exec(`
		insert into deliveries (activity, inbox, host, status, inserted) values
		('https://localhost.localdomain/create/1', 'https://ip6-allnodes/inbox/dan', 'ip6-allnodes', ?, 0),
		('https://localhost.localdomain/create/2', 'https://ip6-allnodes/inbox/dan', 'ip6-allnodes', ?, unixepoch())
	`, DeliveryFailed, DeliveryDelivered)
	assert.NoError(err)

	health, err := Health(context.Background(), db, time.Now().Add(-time.Hour))
	assert.NoError(err)
	assert.Len(health, 1)
	assert.Equal(int64(1), health[0].Delivered)
	assert.Equal(int64(0), health[0].Failed)
}

func TestHealth_Empty(t *testing.T) {
	assert := assert.New(t)

	var config cfg.Config
	config.FillDefaults()

	db := newTestDB(t, "localhost.localdomain", &config)

	health, err := Health(context.Background(), db, time.Now().Add(-time.Hour))
	assert.NoError(err)
	assert.Empty(health)
}

func TestFailureRate_NoTerminalDeliveries(t *testing.T) {
	assert := assert.New(t)

	h := DomainHealth{Host: "ip6-allnodes", Retrying: 3}
	assert.Equal(0.0, h.FailureRate())
}
