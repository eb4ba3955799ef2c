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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPPolicyEngine evaluates a PolicyInput by POSTing it as JSON to a
// configured endpoint and decoding a PolicyDecision back, the out-of-process
// shape spec.md §6's "policy engine enablement, package/dir" env var
// describes for a service-backed engine (as opposed to an embedded one).
type HTTPPolicyEngine struct {
	client   *http.Client
	endpoint string
}

// NewHTTPPolicyEngine builds an engine that calls endpoint for every
// Decide, using client (which the caller configures with its own timeout).
func NewHTTPPolicyEngine(client *http.Client, endpoint string) *HTTPPolicyEngine {
	return &HTTPPolicyEngine{client: client, endpoint: endpoint}
}

func (e *HTTPPolicyEngine) Decide(ctx context.Context, input PolicyInput) (PolicyDecision, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return PolicyDecision{}, fmt.Errorf("encode policy input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return PolicyDecision{}, fmt.Errorf("build policy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return PolicyDecision{}, fmt.Errorf("policy engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return PolicyDecision{}, fmt.Errorf("policy engine returned status %d", resp.StatusCode)
	}

	var decision PolicyDecision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return PolicyDecision{}, fmt.Errorf("decode policy decision: %w", err)
	}
	return decision, nil
}
