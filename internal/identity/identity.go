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

// Package identity normalises a bearer token into an AuthenticatedUser. It
// consumes JWT signature verification via JWKS as the black box spec.md §4.6
// describes; it never logs the raw token.
package identity

import "strings"

// AuthenticatedUser is the immutable identity derived from a validated
// bearer token. A nil *AuthenticatedUser represents an anonymous request.
type AuthenticatedUser struct {
	Sub       string
	Username  string
	Email     string
	Roles     []string
	Groups    []string
	Scopes    []string
	Audiences []string
	Issuer    string
	Claims    map[string]any

	// token is the original opaque bearer token. It is intentionally
	// unexported so it can never be reached by a field logger and is only
	// used to forward authorization to row-filter handlers that need it
	// (http_in_list with forward_token, rec_registry).
	token string
}

// Token returns the original bearer token for outbound forwarding. Callers
// must never log or persist the returned value.
func (u *AuthenticatedUser) Token() string {
	if u == nil {
		return ""
	}
	return u.token
}

// SubjectType discriminates between a human user and a service
// (client-credentials) caller, per spec.md §4.3: presence of scopes without
// groups indicates a service token.
func (u *AuthenticatedUser) SubjectType() string {
	if u == nil {
		return "anonymous"
	}
	if len(u.Scopes) > 0 && len(u.Groups) == 0 {
		return "service"
	}
	return "user"
}

// HasAnyGroup reports whether the user belongs to any of the named groups.
// Used by the admin-group bypass check in the row-filter engine.
func (u *AuthenticatedUser) HasAnyGroup(groups []string) bool {
	if u == nil || len(groups) == 0 {
		return false
	}
	for _, g := range u.Groups {
		for _, want := range groups {
			if g == want {
				return true
			}
		}
	}
	return false
}

// rolesFromRealmAndClient merges realm_access.roles with
// resource_access[clientID].roles, the Keycloak-shaped claim layout the
// teacher's azure.go analogue generalises from a single "roles" claim.
func rolesFromRealmAndClient(claims map[string]any, clientID string) []string {
	var roles []string
	if realm, ok := claims["realm_access"].(map[string]any); ok {
		roles = append(roles, stringSlice(realm["roles"])...)
	}
	if resource, ok := claims["resource_access"].(map[string]any); ok {
		if client, ok := resource[clientID].(map[string]any); ok {
			roles = append(roles, stringSlice(client["roles"])...)
		}
	}
	// fall back to a flat "roles" claim for issuers that don't nest by client.
	if len(roles) == 0 {
		roles = stringSlice(claims["roles"])
	}
	return roles
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func spaceSeparated(v any) []string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return strings.Fields(s)
}
