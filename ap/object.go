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

type ObjectType string

const (
	Event     ObjectType = "Event"
	Note      ObjectType = "Note"
	Tombstone ObjectType = "Tombstone"
)

// Place is the location of an event.
type Place struct {
	Type    string `json:"type,omitempty"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Object represents events, comments and tombstones.
// Actors are represented by [Actor].
type Object struct {
	Context      any          `json:"@context,omitempty"`
	ID           string       `json:"id"`
	Type         ObjectType   `json:"type"`
	AttributedTo string       `json:"attributedTo,omitempty"`
	InReplyTo    string       `json:"inReplyTo,omitempty"`
	Content      string       `json:"content,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	Name         string       `json:"name,omitempty"`
	Published    Time         `json:"published,omitzero"`
	Updated      Time         `json:"updated,omitzero"`
	To           Audience     `json:"to,omitzero"`
	CC           Audience     `json:"cc,omitzero"`
	Attachment   []Attachment `json:"attachment,omitempty"`
	URL          string       `json:"url,omitempty"`

	// events
	StartTime Time   `json:"startTime,omitzero"`
	EndTime   Time   `json:"endTime,omitzero"`
	Location  *Place `json:"location,omitempty"`
}

func (o *Object) IsPublic() bool {
	return o.To.Contains(Public) || o.CC.Contains(Public)
}

func (o *Object) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return json.Unmarshal([]byte(v), o)
	case []byte:
		return json.Unmarshal(v, o)
	default:
		return fmt.Errorf("unsupported conversion from %T to %T", src, o)
	}
}

func (o *Object) Value() (driver.Value, error) {
	buf, err := json.Marshal(o)
	return string(buf), err
}
