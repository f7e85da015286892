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

package fedtest

import (
	"context"
	"testing"

	"github.com/gatherfed/gather/ap"
	"github.com/gatherfed/gather/fed"
	"github.com/gatherfed/gather/outbox"
	"github.com/stretchr/testify/assert"
)

func (s *Server) actor(t *testing.T, name string) *ap.Actor {
	t.Helper()

	var actor ap.Actor
	if err := s.DB.QueryRow(`select actor from persons where id = ?`, "https://"+s.Domain+"/user/"+name).Scan(&actor); err != nil {
		t.Fatalf("Failed to fetch %s: %v", name, err)
	}

	return &actor
}

func follow(t *testing.T, client Client, from *Server, follower *ap.Actor, followed string) {
	t.Helper()

	if err := outbox.Follow(context.Background(), from.Domain, follower, followed, from.DB); err != nil {
		t.Fatalf("Failed to follow %s: %v", followed, err)
	}

	client.Settle(t)
}

func TestFederation_Follow(t *testing.T) {
	assert := assert.New(t)

	client := Client{}
	a := NewServer(t, "a.localdomain", client).Register(t, "alice")
	b := NewServer(t, "b.localdomain", client).Register(t, "bob")

	alice := a.actor(t, "alice")
	bob := b.actor(t, "bob")

	follow(t, client, b, bob, alice.ID)

	// both sides agree the follow is accepted
	var accepted int
	assert.NoError(b.DB.QueryRow(`select accepted from follows where follower = ? and followed = ?`, bob.ID, alice.ID).Scan(&accepted))
	assert.Equal(1, accepted)

	var inbox string
	assert.NoError(a.DB.QueryRow(`select coalesce(shared_inbox, inbox) from follows where follower = ? and followed = ? and accepted = 1`, bob.ID, alice.ID).Scan(&inbox))
	assert.Equal("https://b.localdomain/inbox", inbox)
}

func TestFederation_FollowRequiresApproval(t *testing.T) {
	assert := assert.New(t)

	client := Client{}
	a := NewServer(t, "a.localdomain", client).Register(t, "alice")
	b := NewServer(t, "b.localdomain", client).Register(t, "bob")

	alice := a.actor(t, "alice")
	bob := b.actor(t, "bob")

	_, err := a.DB.Exec(`update persons set actor = json_set(actor, '$.manuallyApprovesFollowers', json('true')) where id = ?`, alice.ID)
	assert.NoError(err)

	follow(t, client, b, bob, alice.ID)

	// the follow was rejected and the edge is gone on both sides
	var follows int
	assert.NoError(a.DB.QueryRow(`select count(*) from follows`).Scan(&follows))
	assert.Equal(0, follows)

	assert.NoError(b.DB.QueryRow(`select count(*) from follows`).Scan(&follows))
	assert.Equal(0, follows)
}

func TestFederation_CreateEvent(t *testing.T) {
	assert := assert.New(t)

	client := Client{}
	a := NewServer(t, "a.localdomain", client).Register(t, "alice")
	b := NewServer(t, "b.localdomain", client).Register(t, "bob")

	alice := a.actor(t, "alice")
	bob := b.actor(t, "bob")

	follow(t, client, b, bob, alice.ID)

	id, err := outbox.NewID(a.Domain, "event")
	assert.NoError(err)

	to := ap.Audience{}
	to.Add(ap.Public)

	event := ap.Object{
		ID:           id,
		Type:         ap.Event,
		AttributedTo: alice.ID,
		Name:         "picnic",
		To:           to,
	}

	tx, err := a.DB.Begin()
	assert.NoError(err)
	assert.NoError(outbox.Create(context.Background(), a.Domain, tx, &event, alice, ap.Audience{}))
	assert.NoError(tx.Commit())

	client.Settle(t)

	// the event reached bob's server through the shared inbox
	var name string
	assert.NoError(b.DB.QueryRow(`select object->>'$.name' from objects where id = ?`, id).Scan(&name))
	assert.Equal("picnic", name)

	var status int
	assert.NoError(a.DB.QueryRow(`select status from deliveries where inbox = 'https://b.localdomain/inbox'`).Scan(&status))
	assert.Equal(fed.DeliveryDelivered, status)
}

func TestFederation_ReplayedCreateIgnored(t *testing.T) {
	assert := assert.New(t)

	client := Client{}
	a := NewServer(t, "a.localdomain", client).Register(t, "alice")
	b := NewServer(t, "b.localdomain", client).Register(t, "bob")

	alice := a.actor(t, "alice")
	bob := b.actor(t, "bob")

	follow(t, client, b, bob, alice.ID)

	id, err := outbox.NewID(a.Domain, "event")
	assert.NoError(err)

	to := ap.Audience{}
	to.Add(ap.Public)

	event := ap.Object{
		ID:           id,
		Type:         ap.Event,
		AttributedTo: alice.ID,
		Name:         "picnic",
		To:           to,
	}

	tx, err := a.DB.Begin()
	assert.NoError(err)
	assert.NoError(outbox.Create(context.Background(), a.Domain, tx, &event, alice, ap.Audience{}))
	assert.NoError(tx.Commit())

	client.Settle(t)

	var raw string
	assert.NoError(a.DB.QueryRow(`select activity from outbox where activity->>'$.type' = 'Create'`).Scan(&raw))

	// a redundant delivery of an already-processed activity must not
	// resurrect the object
	_, err = b.DB.Exec(`delete from objects where id = ?`, id)
	assert.NoError(err)

	_, err = b.DB.Exec(`insert into inbox (sender, activity) values(?, ?)`, alice.ID, raw)
	assert.NoError(err)

	_, err = b.Inbox.ProcessBatch(context.Background())
	assert.NoError(err)

	var objects int
	assert.NoError(b.DB.QueryRow(`select count(*) from objects where id = ?`, id).Scan(&objects))
	assert.Equal(0, objects)
}

func TestFederation_JoinEvent(t *testing.T) {
	assert := assert.New(t)

	client := Client{}
	a := NewServer(t, "a.localdomain", client).Register(t, "alice")
	b := NewServer(t, "b.localdomain", client).Register(t, "bob")

	alice := a.actor(t, "alice")
	bob := b.actor(t, "bob")

	follow(t, client, b, bob, alice.ID)

	id, err := outbox.NewID(a.Domain, "event")
	assert.NoError(err)

	to := ap.Audience{}
	to.Add(ap.Public)

	event := ap.Object{
		ID:           id,
		Type:         ap.Event,
		AttributedTo: alice.ID,
		Name:         "picnic",
		To:           to,
	}

	tx, err := a.DB.Begin()
	assert.NoError(err)
	assert.NoError(outbox.Create(context.Background(), a.Domain, tx, &event, alice, ap.Audience{}))
	assert.NoError(tx.Commit())

	client.Settle(t)

	// bob joins the event he received
	var received ap.Object
	assert.NoError(b.DB.QueryRow(`select object from objects where id = ?`, id).Scan(&received))

	tx, err = b.DB.Begin()
	assert.NoError(err)
	assert.NoError(outbox.Join(context.Background(), b.Domain, tx, bob, &received))
	assert.NoError(tx.Commit())

	client.Settle(t)

	var attending int
	assert.NoError(a.DB.QueryRow(`select exists (select 1 from attendance where actor = ? and event = ?)`, bob.ID, id).Scan(&attending))
	assert.Equal(1, attending)
}

func TestFederation_Unfollow(t *testing.T) {
	assert := assert.New(t)

	client := Client{}
	a := NewServer(t, "a.localdomain", client).Register(t, "alice")
	b := NewServer(t, "b.localdomain", client).Register(t, "bob")

	alice := a.actor(t, "alice")
	bob := b.actor(t, "bob")

	follow(t, client, b, bob, alice.ID)

	tx, err := b.DB.Begin()
	assert.NoError(err)
	assert.NoError(outbox.Unfollow(context.Background(), b.Domain, tx, bob, alice.ID))
	assert.NoError(tx.Commit())

	client.Settle(t)

	var follows int
	assert.NoError(a.DB.QueryRow(`select count(*) from follows`).Scan(&follows))
	assert.Equal(0, follows)

	assert.NoError(b.DB.QueryRow(`select count(*) from follows`).Scan(&follows))
	assert.Equal(0, follows)
}
