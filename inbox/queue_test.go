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

package inbox

import (
	"context"
	"database/sql"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/gatherfed/gather/ap"
	"github.com/gatherfed/gather/cfg"
	"github.com/gatherfed/gather/fed"
	"github.com/gatherfed/gather/migrations"
	"github.com/gatherfed/gather/user"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

// stubClient fails the test if a handler tries to go to the network.
type stubClient struct {
	t *testing.T
}

func (c stubClient) Do(r *http.Request) (*http.Response, error) {
	c.t.Fatalf("Unexpected request to %s", r.URL)
	return nil, nil
}

const (
	testBobID    = "https://ip6-allnodes/user/bob"
	testBobActor = `{"type":"Person","id":"https://ip6-allnodes/user/bob","preferredUsername":"bob","inbox":"https://ip6-allnodes/inbox/bob","endpoints":{"sharedInbox":"https://ip6-allnodes/inbox"},"publicKey":{"id":"https://ip6-allnodes/user/bob#main-key"}}`

	testFollow = `{"id":"https://ip6-allnodes/follow/1","type":"Follow","actor":"https://ip6-allnodes/user/bob","object":"https://localhost.localdomain/user/alice"}`
	testEvent  = `{"id":"https://ip6-allnodes/create/1","type":"Create","actor":"https://ip6-allnodes/user/bob","object":{"id":"https://ip6-allnodes/event/1","type":"Event","attributedTo":"https://ip6-allnodes/user/bob","name":"picnic","to":["https://www.w3.org/ns/activitystreams#Public"]},"to":["https://www.w3.org/ns/activitystreams#Public"]}`
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	var config cfg.Config
	config.FillDefaults()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "db.sqlite3?"+config.DatabaseOptions))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Run(context.Background(), "localhost.localdomain", db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return &Queue{
		Domain:   "localhost.localdomain",
		Config:   &config,
		DB:       db,
		Resolver: fed.NewResolver(nil, "localhost.localdomain", &config, stubClient{t}, db, nil),
	}
}

func (q *Queue) register(t *testing.T, name string) *ap.Actor {
	t.Helper()

	actor, err := user.Create(context.Background(), q.Domain, q.DB, q.Config, name)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}

	return actor
}

func (q *Queue) receive(t *testing.T, sender, activity string) {
	t.Helper()

	if _, err := q.DB.Exec(`insert into inbox (sender, activity) values(?, ?)`, sender, activity); err != nil {
		t.Fatalf("Failed to insert activity: %v", err)
	}

	if _, err := q.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("Failed to process batch: %v", err)
	}
}

func TestProcessBatch_FollowAccepted(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)
	q.register(t, "alice")

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testFollow)

	var accepted int
	var inbox, sharedInbox sql.NullString
	assert.NoError(q.DB.QueryRow(`select accepted, inbox, shared_inbox from follows where id = 'https://ip6-allnodes/follow/1'`).Scan(&accepted, &inbox, &sharedInbox))
	assert.Equal(1, accepted)
	assert.Equal("https://ip6-allnodes/inbox/bob", inbox.String)
	assert.Equal("https://ip6-allnodes/inbox", sharedInbox.String)

	var accepts int
	assert.NoError(q.DB.QueryRow(`select count(*) from outbox where activity->>'$.type' = 'Accept'`).Scan(&accepts))
	assert.Equal(1, accepts)
}

func TestProcessBatch_ReplayedFollowIgnored(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)
	q.register(t, "alice")

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testFollow)
	q.receive(t, testBobID, testFollow)

	var accepts int
	assert.NoError(q.DB.QueryRow(`select count(*) from outbox where activity->>'$.type' = 'Accept'`).Scan(&accepts))
	assert.Equal(1, accepts)
}

func TestProcessBatch_MismatchedActorDropped(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)
	q.register(t, "alice")

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/follow/1","type":"Follow","actor":"https://ip6-allnodes/user/erin","object":"https://localhost.localdomain/user/alice"}`)

	var follows int
	assert.NoError(q.DB.QueryRow(`select count(*) from follows`).Scan(&follows))
	assert.Equal(0, follows)
}

func TestProcessBatch_ManualApprovalRejected(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)
	alice := q.register(t, "alice")

	_, err := q.DB.Exec(`update persons set actor = json_set(actor, '$.manuallyApprovesFollowers', json('true')) where id = ?`, alice.ID)
	assert.NoError(err)

	_, err = q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testFollow)

	var follows int
	assert.NoError(q.DB.QueryRow(`select count(*) from follows`).Scan(&follows))
	assert.Equal(0, follows)

	var rejects int
	assert.NoError(q.DB.QueryRow(`select count(*) from outbox where activity->>'$.type' = 'Reject'`).Scan(&rejects))
	assert.Equal(1, rejects)
}

func TestProcessBatch_CreateEvent(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testEvent)

	var public int
	assert.NoError(q.DB.QueryRow(`select public from objects where id = 'https://ip6-allnodes/event/1'`).Scan(&public))
	assert.Equal(1, public)
}

func TestProcessBatch_CreateNotAttributedToSender(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/create/1","type":"Create","actor":"https://ip6-allnodes/user/bob","object":{"id":"https://ip6-allnodes/event/1","type":"Event","attributedTo":"https://ip6-allnodes/user/erin","name":"picnic"}}`)

	var objects int
	assert.NoError(q.DB.QueryRow(`select count(*) from objects`).Scan(&objects))
	assert.Equal(0, objects)
}

func TestProcessBatch_UpdateEvent(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testEvent)

	// backdate the stored object so the update is newer
	_, err = q.DB.Exec(`update objects set inserted = 0, updated = 0`)
	assert.NoError(err)

	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/update/1","type":"Update","actor":"https://ip6-allnodes/user/bob","object":{"id":"https://ip6-allnodes/event/1","type":"Event","attributedTo":"https://ip6-allnodes/user/bob","name":"bigger picnic","updated":"2026-08-24T10:00:00Z","to":["https://www.w3.org/ns/activitystreams#Public"]}}`)

	var name string
	assert.NoError(q.DB.QueryRow(`select object->>'$.name' from objects where id = 'https://ip6-allnodes/event/1'`).Scan(&name))
	assert.Equal("bigger picnic", name)
}

func TestProcessBatch_StaleUpdateDiscarded(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testEvent)

	// the stored object is newer than the update
	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/update/1","type":"Update","actor":"https://ip6-allnodes/user/bob","object":{"id":"https://ip6-allnodes/event/1","type":"Event","attributedTo":"https://ip6-allnodes/user/bob","name":"bigger picnic","updated":"2020-01-01T00:00:00Z","to":["https://www.w3.org/ns/activitystreams#Public"]}}`)

	var name string
	assert.NoError(q.DB.QueryRow(`select object->>'$.name' from objects where id = 'https://ip6-allnodes/event/1'`).Scan(&name))
	assert.Equal("picnic", name)
}

func TestProcessBatch_JoinEvent(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testEvent)
	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/join/1","type":"Join","actor":"https://ip6-allnodes/user/bob","object":"https://ip6-allnodes/event/1"}`)

	var attending int
	assert.NoError(q.DB.QueryRow(`select exists (select 1 from attendance where actor = ? and event = 'https://ip6-allnodes/event/1')`, testBobID).Scan(&attending))
	assert.Equal(1, attending)

	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/leave/1","type":"Leave","actor":"https://ip6-allnodes/user/bob","object":"https://ip6-allnodes/event/1"}`)

	assert.NoError(q.DB.QueryRow(`select exists (select 1 from attendance where actor = ? and event = 'https://ip6-allnodes/event/1')`, testBobID).Scan(&attending))
	assert.Equal(0, attending)
}

func TestProcessBatch_LikeUnknownObjectIgnored(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/like/1","type":"Like","actor":"https://ip6-allnodes/user/bob","object":"https://ip6-allnodes/event/404"}`)

	var likes int
	assert.NoError(q.DB.QueryRow(`select count(*) from likes`).Scan(&likes))
	assert.Equal(0, likes)
}

func TestProcessBatch_DeleteObject(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testEvent)
	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/like/1","type":"Like","actor":"https://ip6-allnodes/user/bob","object":"https://ip6-allnodes/event/1"}`)
	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/delete/1","type":"Delete","actor":"https://ip6-allnodes/user/bob","object":{"id":"https://ip6-allnodes/event/1","type":"Tombstone"}}`)

	var objects, likes int
	assert.NoError(q.DB.QueryRow(`select count(*) from objects`).Scan(&objects))
	assert.NoError(q.DB.QueryRow(`select count(*) from likes`).Scan(&likes))
	assert.Equal(0, objects)
	assert.Equal(0, likes)
}

func TestProcessBatch_DeleteSomeoneElsesObject(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)
	_, err = q.DB.Exec(`insert into persons (id, actor, host) values('https://ip6-allrouters/user/erin', '{"type":"Person","id":"https://ip6-allrouters/user/erin","preferredUsername":"erin","inbox":"https://ip6-allrouters/inbox/erin","publicKey":{"id":"https://ip6-allrouters/user/erin#main-key"}}', 'ip6-allrouters')`)
	assert.NoError(err)

	q.receive(t, testBobID, testEvent)
	q.receive(t, "https://ip6-allrouters/user/erin", `{"id":"https://ip6-allrouters/delete/1","type":"Delete","actor":"https://ip6-allrouters/user/erin","object":"https://ip6-allnodes/event/1"}`)

	var objects int
	assert.NoError(q.DB.QueryRow(`select count(*) from objects`).Scan(&objects))
	assert.Equal(1, objects)
}

func TestProcessBatch_DeletedActorCascades(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)
	alice := q.register(t, "alice")

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testEvent)
	q.receive(t, testBobID, testFollow)
	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/delete/1","type":"Delete","actor":"https://ip6-allnodes/user/bob","object":"https://ip6-allnodes/user/bob"}`)

	var objects, follows, persons int
	assert.NoError(q.DB.QueryRow(`select count(*) from objects where author = ?`, testBobID).Scan(&objects))
	assert.NoError(q.DB.QueryRow(`select count(*) from follows where follower = ?`, testBobID).Scan(&follows))
	assert.NoError(q.DB.QueryRow(`select count(*) from persons where id = ?`, testBobID).Scan(&persons))
	assert.Equal(0, objects)
	assert.Equal(0, follows)
	assert.Equal(0, persons)

	var alicePersons int
	assert.NoError(q.DB.QueryRow(`select count(*) from persons where id = ?`, alice.ID).Scan(&alicePersons))
	assert.Equal(1, alicePersons)
}

func TestProcessBatch_UndoFollow(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)
	q.register(t, "alice")

	_, err := q.DB.Exec(`insert into persons (id, actor, host) values(?, ?, 'ip6-allnodes')`, testBobID, testBobActor)
	assert.NoError(err)

	q.receive(t, testBobID, testFollow)

	var follows int
	assert.NoError(q.DB.QueryRow(`select count(*) from follows`).Scan(&follows))
	assert.Equal(1, follows)

	q.receive(t, testBobID, `{"id":"https://ip6-allnodes/undo/1","type":"Undo","actor":"https://ip6-allnodes/user/bob","object":{"id":"https://ip6-allnodes/follow/1","type":"Follow","actor":"https://ip6-allnodes/user/bob","object":"https://localhost.localdomain/user/alice"}}`)

	assert.NoError(q.DB.QueryRow(`select count(*) from follows`).Scan(&follows))
	assert.Equal(0, follows)
}

func TestProcessBatch_UnknownSenderSkipped(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)
	q.register(t, "alice")

	// no persons row for the sender
	q.receive(t, testBobID, testFollow)

	var follows, pending int
	assert.NoError(q.DB.QueryRow(`select count(*) from follows`).Scan(&follows))
	assert.NoError(q.DB.QueryRow(`select count(*) from inbox`).Scan(&pending))
	assert.Equal(0, follows)
	assert.Equal(0, pending)
}
