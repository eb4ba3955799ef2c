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

package cachekit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheGetSet(t *testing.T) {
	c := New[string, int](4, time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTTLCacheExpires(t *testing.T) {
	c := New[string, int](4, 10*time.Millisecond)
	c.Set("a", 1)

	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok, "entry should have expired")
}

func TestTTLCacheBoundedSize(t *testing.T) {
	c := New[int, int](2, time.Minute)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(3, 3) // evicts key 1 (least recently used)

	assert.LessOrEqual(t, c.Len(), 2)
	_, ok := c.Get(3)
	assert.True(t, ok)
}
