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

// Addressing is the declared recipient set of an activity before it is
// expanded into concrete inboxes. BCC recipients receive the activity but
// are never serialized into the wire payload.
type Addressing struct {
	To  Audience `json:"to,omitzero"`
	CC  Audience `json:"cc,omitzero"`
	BCC Audience `json:"bcc,omitzero"`
}

// IsPublic determines if the addressing includes the public collection.
func (a *Addressing) IsPublic() bool {
	return a.To.Contains(Public) || a.CC.Contains(Public)
}
