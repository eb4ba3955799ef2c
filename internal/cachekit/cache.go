// Copyright 2024 Celine Data Platform Authors
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

// Package cachekit provides the bounded, TTL-evicting cache the access gate
// uses for policy decisions. The row-filter engine keeps its resolved plans
// in its own rowfilter.PlanCache instead.
package cachekit

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// TTLCache is a concurrency-safe, size-bounded cache with per-entry
// expiration. A single default TTL applies to the cache; callers that need a
// tighter effective TTL (e.g. "min(token remaining ttl, default)") should
// build the cache with that narrower duration up front via New.
type TTLCache[K comparable, V any] struct {
	lru *lru.LRU[K, V]
}

// New creates a TTLCache bounded to size entries, each expiring ttl after
// insertion. On overflow the least-recently-used entry is evicted whether or
// not it has expired; expired entries are otherwise dropped on Get and by the
// library's periodic sweep.
func New[K comparable, V any](size int, ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{lru: lru.NewLRU[K, V](size, nil, ttl)}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

func (c *TTLCache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

func (c *TTLCache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

func (c *TTLCache[K, V]) Len() int {
	return c.lru.Len()
}
