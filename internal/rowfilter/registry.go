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

package rowfilter

import (
	"fmt"
	"sync"
)

// Registry maps a handler name to its Handler instance. Registration is
// append-only: a second Register call for an already-registered name is
// fatal at load time, the same guarantee the teacher's tool/source
// registries give for "kind" names.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.registerBuiltins()
	return r
}

// Register adds name → handler. It panics on a duplicate name; callers
// wire this up at startup, before any request is served, where a duplicate
// handler name is a configuration bug that must not reach production.
func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("row-filter handler %q already registered", name))
	}
	r.handlers[name] = handler
}

// Lookup returns the handler registered under name, or false if none.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) registerBuiltins() {
	r.Register("direct_user_match", HandlerFunc(resolveDirectUserMatch))
	r.Register("table_pointer", HandlerFunc(resolveTablePointer))
}
