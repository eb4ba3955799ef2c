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

package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPolicyEngineDecidesFromResponse(t *testing.T) {
	var received PolicyInput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(PolicyDecision{Allow: false, Reason: "not entitled"})
	}))
	defer srv.Close()

	engine := NewHTTPPolicyEngine(srv.Client(), srv.URL)
	input := PolicyInput{Subject: PolicySubject{ID: "alice"}, Resource: PolicyResource{ID: "ds_internal"}}

	decision, err := engine.Decide(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, "not entitled", decision.Reason)
	assert.Equal(t, "alice", received.Subject.ID)
}

func TestHTTPPolicyEngineNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := NewHTTPPolicyEngine(srv.Client(), srv.URL)
	_, err := engine.Decide(context.Background(), PolicyInput{})
	require.Error(t, err)
}
