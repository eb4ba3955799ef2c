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

package server

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/celine-eu/dataset-api/internal/gwerror"
)

// errResponse is the JSON body sent back for any failed request, keyed off
// the gwerror.Kind -> HTTP status mapping in spec.md §7.
type errResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *errResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// newErrResponse translates err into a client-safe errResponse. A *gwerror.Error
// carries a user-safe Message and a Kind with a fixed status; anything else is
// treated as an unexpected internal failure and its detail is never returned.
func newErrResponse(err error) *errResponse {
	ge, ok := gwerror.As(err)
	if !ok {
		return &errResponse{
			Err:            err,
			HTTPStatusCode: http.StatusInternalServerError,
			StatusText:     http.StatusText(http.StatusInternalServerError),
		}
	}

	code := statusForKind(ge.Kind)
	return &errResponse{
		Err:            ge,
		HTTPStatusCode: code,
		StatusText:     http.StatusText(code),
		ErrorText:      ge.Message,
	}
}

func statusForKind(kind gwerror.Kind) int {
	switch kind {
	case gwerror.KindInvalidRequest:
		return http.StatusBadRequest
	case gwerror.KindUnauthenticated:
		return http.StatusUnauthorized
	case gwerror.KindForbidden:
		return http.StatusForbidden
	case gwerror.KindNotFound:
		return http.StatusNotFound
	case gwerror.KindConfigError:
		return http.StatusInternalServerError
	case gwerror.KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// renderError writes err to w/r as the mapped errResponse.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	_ = render.Render(w, r, newErrResponse(err))
}
