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

// Package gwerror defines the small, closed set of error kinds the gateway
// ever returns to a client. Every boundary (parser, resolver, gate, row
// filter, executor) returns one of these instead of a bare error, so the
// HTTP layer translates exactly once.
package gwerror

import (
	"errors"
	"fmt"
)

// Kind is a client-visible error category with a fixed HTTP mapping.
type Kind string

const (
	KindInvalidRequest  Kind = "invalid_request"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConfigError     Kind = "config_error"
	KindUpstream        Kind = "upstream"
)

// Error is a user-safe error: Message is always safe to return to a client;
// the wrapped internal error (if any) is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func InvalidRequest(format string, args ...any) *Error {
	return New(KindInvalidRequest, fmt.Sprintf(format, args...))
}

func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func ConfigError(message string) *Error {
	return New(KindConfigError, message)
}

func Upstream(message string, cause error) *Error {
	return Wrap(KindUpstream, message, cause)
}

// As extracts a *Error from err, returning ok=false if err is not one (or
// wraps none). Callers at the HTTP boundary treat a non-*Error as an
// unexpected internal error (mapped to 500 without leaking its text).
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
