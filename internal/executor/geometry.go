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

package executor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
)

// normalizeValue replaces a column value with its GeoJSON form when it
// looks like a PostGIS geometry (hex-encoded WKB/EWKB, the text form pgx
// returns for an untyped "geometry" column). Any other value passes
// through unchanged.
func normalizeValue(ctx context.Context, tx pgx.Tx, v any) any {
	raw, ok := v.(string)
	if !ok || !looksLikeWKBHex(raw) {
		return v
	}
	if geo, ok := decodeWKBHex(raw); ok {
		return geo
	}
	if geo, ok := asGeoJSONRoundTrip(ctx, tx, raw); ok {
		return geo
	}
	return v
}

// looksLikeWKBHex is a cheap pre-filter: even-length, all hex digits, long
// enough to hold at minimum an EWKB byte-order + type + SRID header (9 bytes
// = 18 hex chars). Ordinary text columns rarely satisfy this.
func looksLikeWKBHex(s string) bool {
	if len(s) < 18 || len(s)%2 != 0 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func decodeWKBHex(raw string) (any, bool) {
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, false
	}
	geom, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, false
	}
	encoded, err := json.Marshal(geojson.NewGeometry(geom))
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, false
	}
	return out, true
}

// asGeoJSONRoundTrip handles EWKB variants orb's plain-WKB decoder rejects
// (notably the SRID flag Postgres sets on geometry(..., 4326) columns) by
// asking the database to do the conversion instead, in the same
// transaction the row came from.
func asGeoJSONRoundTrip(ctx context.Context, tx pgx.Tx, rawHex string) (any, bool) {
	if tx == nil {
		return nil, false
	}
	var geoJSONText string
	err := tx.QueryRow(ctx, "SELECT ST_AsGeoJSON(decode($1, 'hex')::geometry)", rawHex).Scan(&geoJSONText)
	if err != nil || strings.TrimSpace(geoJSONText) == "" {
		return nil, false
	}
	var out any
	if err := json.Unmarshal([]byte(geoJSONText), &out); err != nil {
		return nil, false
	}
	return out, true
}
