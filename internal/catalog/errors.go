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

package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

func errInvalidAccessLevel(datasetID string, level AccessLevel) *gwerror.Error {
	return gwerror.ConfigError(fmt.Sprintf("dataset %q has invalid or missing access_level %q", datasetID, level))
}

func errMissingTable(datasetID string) *gwerror.Error {
	return gwerror.ConfigError(fmt.Sprintf("dataset %q is backend_type postgres but has no backend_config.table", datasetID))
}

func errMalformedBackendConfig(datasetID string) *gwerror.Error {
	return gwerror.ConfigError(fmt.Sprintf("dataset %q has a malformed backend_config", datasetID))
}

func errNotFound(datasetID string) *gwerror.Error {
	return gwerror.NotFound(fmt.Sprintf("dataset %q not found", datasetID))
}

// errUnknownDatasets reports the subset of requested logical ids that have
// no catalogue entry, per spec.md §4.2: resolve_for_tables is 400 on an
// empty input set and 400 listing any unknown names.
func errUnknownDatasets(unknown []string) *gwerror.Error {
	sorted := append([]string(nil), unknown...)
	sort.Strings(sorted)
	return gwerror.InvalidRequest("unknown dataset(s): %s", strings.Join(sorted, ", "))
}

func errEmptyTableSet() *gwerror.Error {
	return gwerror.InvalidRequest("no tables referenced in query")
}
