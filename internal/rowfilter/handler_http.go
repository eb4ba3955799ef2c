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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/celine-eu/dataset-api/internal/gwerror"
	"github.com/celine-eu/dataset-api/internal/identity"
)

// HTTPHandlerConfig parameterises the http_in_list built-in and its
// rec_registry specialisation: the shared HTTP client, mirroring the
// teacher's http.Source construction. The per-call timeout comes from each
// spec's timeout_seconds arg (5 seconds when absent).
type HTTPHandlerConfig struct {
	Client *http.Client
}

// NewHTTPHandlers registers http_in_list and rec_registry on registry,
// both backed by client.
func NewHTTPHandlers(registry *Registry, client *http.Client) {
	cfg := HTTPHandlerConfig{Client: client}
	registry.Register("http_in_list", HandlerFunc(cfg.resolveHTTPInList))
	registry.Register("rec_registry", HandlerFunc(cfg.resolveRecRegistry))
}

// templateVars is the substitution set spec.md §4.4 names for http_in_list
// headers/params/json templating: {sub, username, email, token}.
func templateVars(user *identity.AuthenticatedUser) map[string]string {
	if user == nil {
		return map[string]string{}
	}
	return map[string]string{
		"sub":      user.Sub,
		"username": user.Username,
		"email":    user.Email,
		"token":    user.Token(),
	}
}

func renderTemplate(s string, vars map[string]string) string {
	out := s
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

func (c HTTPHandlerConfig) resolveHTTPInList(ctx context.Context, table string, user *identity.AuthenticatedUser, args map[string]any, _ RequestContext) (*RowFilterPlan, error) {
	column, _ := args["column"].(string)
	rawURL, _ := args["url"].(string)
	if column == "" || rawURL == "" {
		return nil, gwerror.ConfigError("http_in_list requires args.column and args.url")
	}

	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, gwerror.ConfigError("http_in_list args.method must be GET or POST")
	}

	timeoutSeconds := 5
	if v, ok := numericArg(args, "timeout_seconds"); ok && v > 0 {
		timeoutSeconds = int(v)
	}
	maxItems := 2000
	if v, ok := numericArg(args, "max_items"); ok && v > 0 {
		maxItems = int(v)
	}
	emptyMeansDeny := true
	if v, ok := args["empty_means_deny"].(bool); ok {
		emptyMeansDeny = v
	}
	forwardToken, _ := args["forward_token"].(bool)
	responsePath, _ := args["response_path"].(string)

	vars := templateVars(user)
	values, err := c.fetchList(ctx, rawURL, method, args, vars, forwardToken, responsePath, time.Duration(timeoutSeconds)*time.Second)
	if err != nil {
		return nil, gwerror.Upstream("http_in_list handler call failed", err)
	}
	if len(values) > maxItems {
		values = values[:maxItems]
	}

	if len(values) == 0 {
		if emptyMeansDeny {
			return &RowFilterPlan{Table: table, Kind: KindDeny}, nil
		}
		return &RowFilterPlan{
			Table:              table,
			Kind:               KindPredicate,
			PredicateTemplates: []*Predicate{{Op: "TRUE"}},
		}, nil
	}

	return &RowFilterPlan{
		Table: table,
		Kind:  KindPredicate,
		PredicateTemplates: []*Predicate{{
			Column:  column,
			Op:      "IN",
			Literal: values,
		}},
	}, nil
}

// resolveRecRegistry is the domain-plugin example spec.md §4.4 names: a
// partner service enumerating owned asset IDs for the caller's token, then
// applying column IN (...). It reuses the same HTTP fetch as http_in_list
// with forward_token defaulted on, since a partner registry call is always
// made on the user's own behalf.
func (c HTTPHandlerConfig) resolveRecRegistry(ctx context.Context, table string, user *identity.AuthenticatedUser, args map[string]any, reqCtx RequestContext) (*RowFilterPlan, error) {
	if _, ok := args["forward_token"]; !ok {
		args = withDefault(args, "forward_token", true)
	}
	if _, ok := args["response_path"]; !ok {
		args = withDefault(args, "response_path", "asset_ids")
	}
	return c.resolveHTTPInList(ctx, table, user, args, reqCtx)
}

func withDefault(args map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out[key] = value
	return out
}

func (c HTTPHandlerConfig) fetchList(ctx context.Context, rawURL, method string, args map[string]any, vars map[string]string, forwardToken bool, responsePath string, timeout time.Duration) ([]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	targetURL := renderTemplate(rawURL, vars)

	var body io.Reader
	if method == http.MethodPost {
		if jsonBody, ok := args["json"].(map[string]any); ok {
			rendered := renderMap(jsonBody, vars)
			b, err := json.Marshal(rendered)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			body = bytes.NewReader(b)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, renderTemplate(s, vars))
			}
		}
	}
	if params, ok := args["params"].(map[string]any); ok {
		q := req.URL.Query()
		for k, v := range params {
			if s, ok := v.(string); ok {
				q.Set(k, renderTemplate(s, vars))
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	if forwardToken && vars["token"] != "" {
		req.Header.Set("Authorization", "Bearer "+vars["token"])
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	node := payload
	if responsePath != "" {
		node, err = dotPath(payload, responsePath)
		if err != nil {
			return nil, err
		}
	}

	list, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("response_path %q did not resolve to a list", responsePath)
	}
	return list, nil
}

func renderMap(m map[string]any, vars map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = renderTemplate(s, vars)
			continue
		}
		out[k] = v
	}
	return out
}

// dotPath resolves a simple "a.b.c" dot-path into a decoded JSON value.
func dotPath(v any, path string) (any, error) {
	parts := strings.Split(path, ".")
	cur := v
	for _, p := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("response_path segment %q: not an object", p)
		}
		next, ok := obj[p]
		if !ok {
			return nil, fmt.Errorf("response_path segment %q: not found", p)
		}
		cur = next
	}
	return cur, nil
}
