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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// Config configures a JWKS-backed Normalizer. One Config is built per
// configured issuer; the gateway may trust several issuers at once.
type Config struct {
	// JWKSURL is the issuer's JSON Web Key Set endpoint.
	JWKSURL string `yaml:"jwksURL" validate:"required"`
	// Issuer is the exact "iss" claim value this Normalizer accepts.
	Issuer string `yaml:"issuer" validate:"required"`
	// Audiences is the set of acceptable "aud" values. A token is accepted
	// if it carries any one of them.
	Audiences []string `yaml:"audiences"`
	// ClientID is used to resolve resource_access.<clientID>.roles from a
	// Keycloak-shaped token; optional.
	ClientID string `yaml:"clientID"`
	// RefreshInterval controls how often the JWKS is re-fetched in the
	// background. Zero selects one hour.
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// Normalizer verifies a bearer token's signature against a refreshed JWKS and
// converts its claims into an AuthenticatedUser. It never logs the raw token.
type Normalizer struct {
	cfg Config
	jwk *keyfunc.JWKS
}

// NewNormalizer fetches the JWKS at cfg.JWKSURL and starts its background
// refresh, mirroring the teacher's Azure JWKS bootstrap.
func NewNormalizer(ctx context.Context, cfg Config) (*Normalizer, error) {
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = time.Hour
	}
	jwk, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		Ctx:                 ctx,
		RefreshInterval:     refresh,
		RefreshErrorHandler: func(err error) {},
	})
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindConfigError, "fetch jwks", err)
	}
	return &Normalizer{cfg: cfg, jwk: jwk}, nil
}

// Verify parses and validates rawToken (without the "Bearer " prefix) and
// returns the resulting AuthenticatedUser, or a gwerror.KindUnauthenticated
// error for any validation failure. The raw token is retained only on the
// returned user's unexported token field, for later forwarding.
func (n *Normalizer) Verify(rawToken string) (*AuthenticatedUser, error) {
	rawToken = strings.TrimSpace(strings.TrimPrefix(rawToken, "Bearer "))
	if rawToken == "" {
		return nil, gwerror.Unauthenticated("missing bearer token")
	}

	token, err := jwt.Parse(rawToken, n.jwk.Keyfunc, jwt.WithValidMethods([]string{
		"RS256", "RS384", "RS512", "ES256", "ES384", "ES512",
	}))
	if err != nil || !token.Valid {
		return nil, gwerror.Unauthenticated("invalid bearer token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, gwerror.Unauthenticated("invalid token claims")
	}

	iss, _ := claims["iss"].(string)
	if iss != n.cfg.Issuer {
		return nil, gwerror.Unauthenticated("unexpected issuer")
	}

	if !n.audienceAccepted(claims) {
		return nil, gwerror.Unauthenticated("unexpected audience")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, gwerror.Unauthenticated("token missing subject")
	}

	username, _ := claims["preferred_username"].(string)
	if username == "" {
		username, _ = claims["username"].(string)
	}
	email, _ := claims["email"].(string)

	user := &AuthenticatedUser{
		Sub:       sub,
		Username:  username,
		Email:     email,
		Roles:     rolesFromRealmAndClient(claims, n.cfg.ClientID),
		Groups:    stringSlice(claims["groups"]),
		Scopes:    spaceSeparated(claims["scope"]),
		Audiences: audienceList(claims["aud"]),
		Issuer:    iss,
		Claims:    claims,
		token:     rawToken,
	}
	return user, nil
}

// acceptedAudiences is the deduped set of audience values this Normalizer
// trusts: the configured audience, the client ID, and the Keycloak default
// "account" audience, per spec.md §4.6.
func (n *Normalizer) acceptedAudiences() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, a := range n.cfg.Audiences {
		add(a)
	}
	add(n.cfg.ClientID)
	add("account")
	return out
}

func (n *Normalizer) audienceAccepted(claims jwt.MapClaims) bool {
	tokenAuds := audienceList(claims["aud"])
	if len(tokenAuds) == 0 {
		return false
	}
	accepted := n.acceptedAudiences()
	for _, ta := range tokenAuds {
		for _, a := range accepted {
			if ta == a {
				return true
			}
		}
	}
	return false
}

func audienceList(v any) []string {
	switch vv := v.(type) {
	case string:
		return []string{vv}
	case []any:
		return stringSlice(vv)
	default:
		return nil
	}
}

// configuredIssuer returns the issuer this Normalizer trusts, used for routing an
// incoming token to the right Normalizer when several issuers are configured.
func (n *Normalizer) configuredIssuer() string { return n.cfg.Issuer }

// MultiNormalizer dispatches a bearer token to the Normalizer matching its
// unverified "iss" claim, letting the gateway trust several issuers at once.
type MultiNormalizer struct {
	byIssuer map[string]*Normalizer
}

// NewMultiNormalizer builds a MultiNormalizer from a set of already-built
// Normalizers, indexed by their configured issuer.
func NewMultiNormalizer(normalizers ...*Normalizer) *MultiNormalizer {
	m := &MultiNormalizer{byIssuer: make(map[string]*Normalizer, len(normalizers))}
	for _, n := range normalizers {
		m.byIssuer[n.configuredIssuer()] = n
	}
	return m
}

// Verify peeks at the token's issuer claim (without verifying the signature
// yet) to select the matching Normalizer, then fully verifies it.
func (m *MultiNormalizer) Verify(rawToken string) (*AuthenticatedUser, error) {
	rawToken = strings.TrimSpace(strings.TrimPrefix(rawToken, "Bearer "))
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(rawToken, claims); err != nil {
		return nil, gwerror.Unauthenticated("malformed bearer token")
	}
	iss, _ := claims["iss"].(string)
	n, ok := m.byIssuer[iss]
	if !ok {
		return nil, gwerror.Unauthenticated(fmt.Sprintf("untrusted issuer %q", iss))
	}
	return n.Verify(rawToken)
}
