/*
 * Copyright 2026 The Revdoc Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package errors provides errors that carry a status code, so that callers
// can tell a stale-parent conflict apart from a validation or I/O failure.
package errors

import (
	"fmt"
	"net/http"
)

// StatusCode classifies an error. The numeric values follow the gRPC code
// space so they stay meaningful if revisions are ever served over RPC.
type StatusCode int

const (
	// ErrCodeInvalidArgument indicates that the store rejected a malformed
	// body, attachment or identifier.
	ErrCodeInvalidArgument StatusCode = 3

	// ErrCodeNotFound indicates that a document, revision or body is missing.
	ErrCodeNotFound StatusCode = 5

	// ErrCodeAlreadyExists indicates that the entity already exists.
	ErrCodeAlreadyExists StatusCode = 6

	// ErrCodeFailedPrecondition indicates that the system is not in the state
	// required for the operation, e.g. the parent revision of a draft is no
	// longer the current revision of its document.
	ErrCodeFailedPrecondition StatusCode = 9

	// ErrCodeInternal indicates that an invariant of the store is broken.
	ErrCodeInternal StatusCode = 13

	// ErrCodeUnavailable indicates an I/O failure, such as an unreachable
	// attachment URL or a broken content stream.
	ErrCodeUnavailable StatusCode = 14
)

// String returns the string representation of the status code.
func (c StatusCode) String() string {
	switch c {
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeAlreadyExists:
		return "already_exists"
	case ErrCodeFailedPrecondition:
		return "failed_precondition"
	case ErrCodeInternal:
		return "internal"
	case ErrCodeUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// HTTPStatus returns the HTTP status that a document store would answer
// with. A stale parent maps to 412 Precondition Failed.
func (c StatusCode) HTTPStatus() int {
	switch c {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeAlreadyExists:
		return http.StatusConflict
	case ErrCodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case ErrCodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError returns true if the code is caused by the caller.
func (c StatusCode) IsClientError() bool {
	switch c {
	case ErrCodeInvalidArgument, ErrCodeNotFound, ErrCodeAlreadyExists, ErrCodeFailedPrecondition:
		return true
	default:
		return false
	}
}

// IsServerError returns true if the code is caused by the store or the
// environment.
func (c StatusCode) IsServerError() bool {
	switch c {
	case ErrCodeInternal, ErrCodeUnavailable:
		return true
	default:
		return false
	}
}
