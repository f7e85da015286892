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

// ResolverFlag changes the behavior of actor resolution.
type ResolverFlag int

const (
	// Offline disables fetching: only cached actors are returned.
	Offline ResolverFlag = 1 << iota
	// Refresh bypasses the cache TTL and forces a live fetch.
	Refresh
)
