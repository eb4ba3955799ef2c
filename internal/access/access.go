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

// Package access implements the per-dataset gate: map access_level to the
// auth/policy requirement tier, then call an optional policy engine with a
// cached decision.
package access

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/celine-eu/dataset-api/internal/cachekit"
	"github.com/celine-eu/dataset-api/internal/catalog"
	"github.com/celine-eu/dataset-api/internal/gwerror"
	"github.com/celine-eu/dataset-api/internal/identity"
	"github.com/celine-eu/dataset-api/internal/log"
)

// Requirement is the per-access_level tier resolved from the fixed table in
// spec.md §4.3.
type Requirement struct {
	AuthRequired   bool
	PolicyRequired bool
}

var requirements = map[catalog.AccessLevel]Requirement{
	catalog.AccessOpen:       {AuthRequired: false, PolicyRequired: false},
	catalog.AccessInternal:   {AuthRequired: true, PolicyRequired: true},
	catalog.AccessRestricted: {AuthRequired: true, PolicyRequired: true},
}

// RequirementFor returns the auth/policy tier for level, or an error if
// level is missing/unparseable — spec.md §4.3 forbids defaulting silently.
func RequirementFor(level catalog.AccessLevel) (Requirement, error) {
	r, ok := requirements[level]
	if !ok {
		return Requirement{}, gwerror.ConfigError("unknown access_level " + string(level))
	}
	return r, nil
}

// PolicyInput is the structured document handed to the policy engine,
// matching spec.md §4.3's wire shape exactly.
type PolicyInput struct {
	Subject     PolicySubject     `json:"subject"`
	Resource    PolicyResource    `json:"resource"`
	Action      PolicyAction      `json:"action"`
	Environment PolicyEnvironment `json:"environment"`
}

type PolicySubject struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Groups []string       `json:"groups"`
	Scopes []string       `json:"scopes"`
	Claims map[string]any `json:"claims"`
}

type PolicyResource struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Attributes PolicyResourceAttrs    `json:"attributes"`
}

type PolicyResourceAttrs struct {
	AccessLevel catalog.AccessLevel `json:"access_level"`
	BackendType catalog.BackendType `json:"backend_type"`
	Namespace   string              `json:"namespace,omitempty"`
	Governance  map[string]any      `json:"governance,omitempty"`
}

type PolicyAction struct {
	Name string `json:"name"`
}

type PolicyEnvironment struct {
	Timestamp     time.Time `json:"timestamp"`
	SourceService string    `json:"source_service"`
}

// PolicyDecision is what the engine returns for a PolicyInput.
type PolicyDecision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// PolicyEngine evaluates a PolicyInput. Implementations may call out to an
// external service, an embedded OPA bundle, or any other decision source;
// the Gate only depends on this interface.
type PolicyEngine interface {
	Decide(ctx context.Context, input PolicyInput) (PolicyDecision, error)
}

// Gate is the per-request access check: it resolves the requirement tier
// for a dataset's access_level, checks authentication, and — when required —
// calls the policy engine with a cached decision.
type Gate struct {
	engine        PolicyEngine
	engineEnabled bool
	cache         *cachekit.TTLCache[string, PolicyDecision]
	sourceService string
	logger        log.Logger
}

// NewGate builds a Gate. A nil engine with engineEnabled=false makes every
// policy-required check log-and-allow, per spec.md §4.3.
func NewGate(engine PolicyEngine, engineEnabled bool, cacheSize int, cacheTTL time.Duration, sourceService string, logger log.Logger) *Gate {
	if cacheTTL <= 0 {
		cacheTTL = 300 * time.Second
	}
	if cacheSize <= 0 {
		cacheSize = 10_000
	}
	return &Gate{
		engine:        engine,
		engineEnabled: engineEnabled,
		cache:         cachekit.New[string, PolicyDecision](cacheSize, cacheTTL),
		sourceService: sourceService,
		logger:        logger,
	}
}

// Check runs the access gate for one dataset against one user. user may be
// nil for an anonymous request.
func (g *Gate) Check(ctx context.Context, entry *catalog.DatasetEntry, user *identity.AuthenticatedUser) error {
	req, err := RequirementFor(entry.AccessLevel)
	if err != nil {
		return err
	}

	if req.AuthRequired && user == nil {
		return gwerror.Unauthenticated("authentication required for this dataset")
	}

	if !req.PolicyRequired {
		return nil
	}

	if !g.engineEnabled {
		g.logger.Info("policy engine disabled, allowing by default",
			log.String("dataset_id", entry.DatasetID))
		return nil
	}

	input := buildPolicyInput(entry, user, g.sourceService)
	key := decisionKey(input)

	if decision, ok := g.cache.Get(key); ok {
		return decisionToError(decision)
	}

	if g.engine == nil {
		return gwerror.New(gwerror.KindUpstream, "policy engine unavailable")
	}
	decision, err := g.engine.Decide(ctx, input)
	if err != nil {
		return gwerror.Wrap(gwerror.KindUpstream, "policy engine unavailable", err)
	}
	g.cache.Set(key, decision)
	return decisionToError(decision)
}

func decisionToError(decision PolicyDecision) error {
	if decision.Allow {
		return nil
	}
	reason := decision.Reason
	if reason == "" {
		reason = "access denied by policy"
	}
	return gwerror.Forbidden(reason)
}

func buildPolicyInput(entry *catalog.DatasetEntry, user *identity.AuthenticatedUser, sourceService string) PolicyInput {
	return PolicyInput{
		Subject: PolicySubject{
			ID:     subjectID(user),
			Type:   user.SubjectType(),
			Groups: orEmpty(userGroups(user)),
			Scopes: orEmpty(userScopes(user)),
			Claims: userClaims(user),
		},
		Resource: PolicyResource{
			Type: "dataset",
			ID:   entry.DatasetID,
			Attributes: PolicyResourceAttrs{
				AccessLevel: entry.AccessLevel,
				BackendType: entry.BackendType,
				Namespace:   entry.Namespace,
				Governance:  entry.Governance.Attributes,
			},
		},
		Action: PolicyAction{Name: "read"},
		Environment: PolicyEnvironment{
			Timestamp:     time.Now().UTC(),
			SourceService: sourceService,
		},
	}
}

func subjectID(user *identity.AuthenticatedUser) string {
	if user == nil {
		return ""
	}
	return user.Sub
}

func userGroups(user *identity.AuthenticatedUser) []string {
	if user == nil {
		return nil
	}
	return user.Groups
}

func userScopes(user *identity.AuthenticatedUser) []string {
	if user == nil {
		return nil
	}
	return user.Scopes
}

func userClaims(user *identity.AuthenticatedUser) map[string]any {
	if user == nil {
		return nil
	}
	return user.Claims
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// decisionKey derives a stable cache key from input, excluding the
// environment.timestamp (which would otherwise defeat caching on every
// call), environment.source_service, the resource's governance attributes,
// and the full claims map (reduced to subject id/type/groups/scopes, which
// are already the fields a policy typically keys on).
func decisionKey(input PolicyInput) string {
	keyable := struct {
		SubjectID     string
		SubjectType   string
		Groups        []string
		Scopes        []string
		ResourceType  string
		ResourceID    string
		AccessLevel   catalog.AccessLevel
		BackendType   catalog.BackendType
		Namespace     string
		ActionName    string
	}{
		SubjectID:    input.Subject.ID,
		SubjectType:  input.Subject.Type,
		Groups:       input.Subject.Groups,
		Scopes:       input.Subject.Scopes,
		ResourceType: input.Resource.Type,
		ResourceID:   input.Resource.ID,
		AccessLevel:  input.Resource.Attributes.AccessLevel,
		BackendType:  input.Resource.Attributes.BackendType,
		Namespace:    input.Resource.Attributes.Namespace,
		ActionName:   input.Action.Name,
	}
	b, _ := json.Marshal(keyable)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
