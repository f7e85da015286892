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

// Package httpsig signs and verifies HTTP requests using draft-cavage
// HTTP signatures with the rsa-sha256 algorithm.
package httpsig

// Key is a private key and the ID under which its public half is published.
type Key struct {
	ID         string
	PrivateKey any
}
