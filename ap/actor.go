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

package ap

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type ActorType string

const (
	Person      ActorType = "Person"
	Group       ActorType = "Group"
	Service     ActorType = "Service"
	Application ActorType = "Application"
)

// PublicKey is the RSA public key attached to an actor document.
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Actor represents a local or remote federated identity.
type Actor struct {
	Context                   any               `json:"@context,omitempty"`
	ID                        string            `json:"id"`
	Type                      ActorType         `json:"type"`
	Inbox                     string            `json:"inbox"`
	Outbox                    string            `json:"outbox,omitempty"`
	Endpoints                 map[string]string `json:"endpoints,omitempty"`
	PreferredUsername         string            `json:"preferredUsername"`
	Name                      string            `json:"name,omitempty"`
	Summary                   string            `json:"summary,omitempty"`
	Followers                 string            `json:"followers,omitempty"`
	Following                 string            `json:"following,omitempty"`
	PublicKey                 PublicKey         `json:"publicKey"`
	Icon                      Attachment        `json:"icon,omitempty"`
	Image                     Attachment        `json:"image,omitempty"`
	Published                 Time              `json:"published,omitzero"`
	ManuallyApprovesFollowers bool              `json:"manuallyApprovesFollowers"`
}

// SharedInbox returns the actor's shared inbox URL, or "" if the actor
// does not advertise one.
func (a *Actor) SharedInbox() string {
	return a.Endpoints["sharedInbox"]
}

func (a *Actor) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return json.Unmarshal([]byte(v), a)
	case []byte:
		return json.Unmarshal(v, a)
	default:
		return fmt.Errorf("unsupported conversion from %T to %T", src, a)
	}
}

func (a *Actor) Value() (driver.Value, error) {
	buf, err := json.Marshal(a)
	return string(buf), err
}
