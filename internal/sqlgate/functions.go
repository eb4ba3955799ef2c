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

package sqlgate

// defaultAllowedFunctions is the case-insensitive function allow-list from
// spec.md §4.1: common scalar, aggregate, date, and a documented PostGIS
// extension set. Keys are lower-cased function names.
func defaultAllowedFunctions() map[string]struct{} {
	names := []string{
		// scalar
		"lower", "upper", "length", "trim", "ltrim", "rtrim", "substring",
		"replace", "abs", "round", "ceil", "floor", "coalesce", "nullif",
		"greatest", "least",
		// aggregation
		"min", "max", "avg", "sum", "count",
		// date
		"current_date", "current_timestamp", "date", "date_trunc", "extract",
		// PostGIS
		"st_intersects", "st_within", "st_contains", "st_distance",
		"st_setsrid", "st_geomfromgeojson", "st_point", "st_asgeojson",
		"st_astext", "st_x", "st_y", "st_transform", "st_dwithin",
		"st_area", "st_length", "st_buffer", "st_makepoint", "st_geomfromtext",
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
