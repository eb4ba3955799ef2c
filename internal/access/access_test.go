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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celine-eu/dataset-api/internal/catalog"
	"github.com/celine-eu/dataset-api/internal/gwerror"
	"github.com/celine-eu/dataset-api/internal/identity"
	"github.com/celine-eu/dataset-api/internal/log"
)

type countingEngine struct {
	calls    int
	decision PolicyDecision
	err      error
}

func (e *countingEngine) Decide(_ context.Context, _ PolicyInput) (PolicyDecision, error) {
	e.calls++
	return e.decision, e.err
}

func noopLogger(t *testing.T) log.Logger {
	t.Helper()
	l, err := log.NewStdLogger(&discardWriter{}, &discardWriter{}, "info")
	require.NoError(t, err)
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestOpenDatasetNoAuthNoPolicy(t *testing.T) {
	g := NewGate(nil, false, 0, 0, "dataset-api", noopLogger(t))
	entry := &catalog.DatasetEntry{DatasetID: "ds_open", AccessLevel: catalog.AccessOpen}
	assert.NoError(t, g.Check(context.Background(), entry, nil))
}

func TestInternalDatasetRequiresAuth(t *testing.T) {
	g := NewGate(nil, false, 0, 0, "dataset-api", noopLogger(t))
	entry := &catalog.DatasetEntry{DatasetID: "ds_internal", AccessLevel: catalog.AccessInternal}
	err := g.Check(context.Background(), entry, nil)
	ge, ok := gwerror.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerror.KindUnauthenticated, ge.Kind)
}

func TestEngineDisabledAllowsByDefault(t *testing.T) {
	g := NewGate(nil, false, 0, 0, "dataset-api", noopLogger(t))
	entry := &catalog.DatasetEntry{DatasetID: "ds_internal", AccessLevel: catalog.AccessInternal}
	user := &identity.AuthenticatedUser{Sub: "alice"}
	assert.NoError(t, g.Check(context.Background(), entry, user))
}

func TestEngineEnabledButNilIsUpstream(t *testing.T) {
	g := NewGate(nil, true, 0, 0, "dataset-api", noopLogger(t))
	entry := &catalog.DatasetEntry{DatasetID: "ds_internal", AccessLevel: catalog.AccessInternal}
	user := &identity.AuthenticatedUser{Sub: "alice"}
	err := g.Check(context.Background(), entry, user)
	ge, ok := gwerror.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerror.KindUpstream, ge.Kind)
}

func TestEngineDenyMapsTo403WithReason(t *testing.T) {
	engine := &countingEngine{decision: PolicyDecision{Allow: false, Reason: "not in allowed group"}}
	g := NewGate(engine, true, 0, 0, "dataset-api", noopLogger(t))
	entry := &catalog.DatasetEntry{DatasetID: "ds_restricted", AccessLevel: catalog.AccessRestricted}
	user := &identity.AuthenticatedUser{Sub: "alice"}

	err := g.Check(context.Background(), entry, user)
	ge, ok := gwerror.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerror.KindForbidden, ge.Kind)
	assert.Equal(t, "not in allowed group", ge.Message)
}

func TestDecisionIsCached(t *testing.T) {
	engine := &countingEngine{decision: PolicyDecision{Allow: true}}
	g := NewGate(engine, true, 100, time.Minute, "dataset-api", noopLogger(t))
	entry := &catalog.DatasetEntry{DatasetID: "ds_restricted", AccessLevel: catalog.AccessRestricted}
	user := &identity.AuthenticatedUser{Sub: "alice"}

	for i := 0; i < 5; i++ {
		assert.NoError(t, g.Check(context.Background(), entry, user))
	}
	assert.Equal(t, 1, engine.calls, "policy engine should be invoked once per TTL window")
}

func TestServiceSubjectType(t *testing.T) {
	user := &identity.AuthenticatedUser{Sub: "svc-1", Scopes: []string{"read:data"}}
	input := buildPolicyInput(&catalog.DatasetEntry{DatasetID: "d", AccessLevel: catalog.AccessInternal}, user, "dataset-api")
	assert.Equal(t, "service", input.Subject.Type)
}

func TestBuildPolicyInputUsesConfiguredSourceService(t *testing.T) {
	user := &identity.AuthenticatedUser{Sub: "alice"}
	input := buildPolicyInput(&catalog.DatasetEntry{DatasetID: "d", AccessLevel: catalog.AccessInternal}, user, "billing-gateway")
	assert.Equal(t, "billing-gateway", input.Environment.SourceService)
}

func TestUnknownAccessLevelIsConfigError(t *testing.T) {
	_, err := RequirementFor("bogus")
	ge, ok := gwerror.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerror.KindConfigError, ge.Kind)
}
