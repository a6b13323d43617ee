// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache provides the attribute cache used by the NFS export.
//
// Entries are keyed by normalized path and invalidated per path: a mutation
// drops the path, everything below it and its ancestors, never the whole
// cache.
package cache

import "os"

// Disabled turns every cache into a permanent miss.
// Set via SHADOWFS_CACHE=0 environment variable.
var Disabled = os.Getenv("SHADOWFS_CACHE") == "0"

// Invalidator is implemented by all caches that support full invalidation.
type Invalidator interface {
	// Invalidate clears all entries from the cache.
	Invalidate()
}
