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

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectTypeService(t *testing.T) {
	u := &AuthenticatedUser{Scopes: []string{"read:data"}}
	assert.Equal(t, "service", u.SubjectType())
}

func TestSubjectTypeUser(t *testing.T) {
	u := &AuthenticatedUser{Groups: []string{"analysts"}}
	assert.Equal(t, "user", u.SubjectType())
}

func TestSubjectTypeAnonymous(t *testing.T) {
	var u *AuthenticatedUser
	assert.Equal(t, "anonymous", u.SubjectType())
}

func TestHasAnyGroup(t *testing.T) {
	u := &AuthenticatedUser{Groups: []string{"eng", "admins"}}
	assert.True(t, u.HasAnyGroup([]string{"admins", "finance"}))
	assert.False(t, u.HasAnyGroup([]string{"finance"}))
	assert.False(t, u.HasAnyGroup(nil))
}

func TestTokenNeverNilPanics(t *testing.T) {
	var u *AuthenticatedUser
	assert.Equal(t, "", u.Token())
}

func TestRolesFromRealmAndClient(t *testing.T) {
	claims := map[string]any{
		"realm_access":    map[string]any{"roles": []any{"realm-viewer"}},
		"resource_access": map[string]any{"dataset-api": map[string]any{"roles": []any{"dataset-admin"}}},
	}
	roles := rolesFromRealmAndClient(claims, "dataset-api")
	assert.ElementsMatch(t, []string{"realm-viewer", "dataset-admin"}, roles)
}

func TestRolesFallbackFlatClaim(t *testing.T) {
	claims := map[string]any{"roles": []any{"flat-role"}}
	roles := rolesFromRealmAndClient(claims, "dataset-api")
	assert.Equal(t, []string{"flat-role"}, roles)
}

func TestSpaceSeparatedScopes(t *testing.T) {
	assert.Equal(t, []string{"read:data", "write:data"}, spaceSeparated("read:data write:data"))
	assert.Nil(t, spaceSeparated(""))
	assert.Nil(t, spaceSeparated(42))
}
