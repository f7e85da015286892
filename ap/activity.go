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

type ActivityType string

const (
	Create   ActivityType = "Create"
	Update   ActivityType = "Update"
	Delete   ActivityType = "Delete"
	Follow   ActivityType = "Follow"
	Accept   ActivityType = "Accept"
	Reject   ActivityType = "Reject"
	Like     ActivityType = "Like"
	Join     ActivityType = "Join"
	Leave    ActivityType = "Leave"
	Undo     ActivityType = "Undo"
	Announce ActivityType = "Announce"
)

type anyActivity struct {
	ID        string          `json:"id"`
	Type      ActivityType    `json:"type"`
	Actor     string          `json:"actor"`
	Object    json.RawMessage `json:"object"`
	To        Audience        `json:"to"`
	CC        Audience        `json:"cc"`
	Published Time            `json:"published"`
}

type Activity struct {
	Context   any          `json:"@context,omitempty"`
	ID        string       `json:"id"`
	Type      ActivityType `json:"type"`
	Actor     string       `json:"actor"`
	Object    any          `json:"object,omitempty"`
	To        Audience     `json:"to,omitzero"`
	CC        Audience     `json:"cc,omitzero"`
	Published Time         `json:"published,omitzero"`
}

func (a *Activity) IsPublic() bool {
	return a.To.Contains(Public) || a.CC.Contains(Public)
}

// UnmarshalJSON parses an activity into one of the known object shapes:
// a bare ID, a nested activity, an actor or an object. Anything else is
// rejected instead of being passed inward as a loosely-typed map.
func (a *Activity) UnmarshalJSON(b []byte) error {
	var common anyActivity
	if err := json.Unmarshal(b, &common); err != nil {
		return err
	}

	a.ID = common.ID
	a.Type = common.Type
	a.Actor = common.Actor
	a.To = common.To
	a.CC = common.CC
	a.Published = common.Published

	if len(common.Object) == 0 {
		a.Object = nil
		return nil
	}

	var link string
	if err := json.Unmarshal(common.Object, &link); err == nil {
		a.Object = link
		return nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(common.Object, &probe); err != nil {
		return fmt.Errorf("invalid activity %s: %w", common.ID, err)
	}

	switch probe.Type {
	case string(Create), string(Update), string(Delete), string(Follow), string(Accept), string(Reject), string(Like), string(Join), string(Leave), string(Undo), string(Announce):
		var inner Activity
		if err := json.Unmarshal(common.Object, &inner); err != nil {
			return fmt.Errorf("invalid activity %s: %w", common.ID, err)
		}
		a.Object = &inner

	case string(Person), string(Group), string(Service), string(Application):
		var actor Actor
		if err := json.Unmarshal(common.Object, &actor); err != nil {
			return fmt.Errorf("invalid activity %s: %w", common.ID, err)
		}
		a.Object = &actor

	case string(Event), string(Note), string(Tombstone):
		var object Object
		if err := json.Unmarshal(common.Object, &object); err != nil {
			return fmt.Errorf("invalid activity %s: %w", common.ID, err)
		}
		a.Object = &object

	default:
		return fmt.Errorf("invalid activity %s: unsupported object type %s", common.ID, probe.Type)
	}

	return nil
}

func (a *Activity) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return json.Unmarshal([]byte(v), a)
	case []byte:
		return json.Unmarshal(v, a)
	default:
		return fmt.Errorf("unsupported conversion from %T to %T", src, a)
	}
}

func (a *Activity) Value() (driver.Value, error) {
	buf, err := json.Marshal(a)
	return string(buf), err
}
