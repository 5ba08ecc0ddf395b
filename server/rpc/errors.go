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

package rpc

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	pkgerrors "github.com/revdoc/revdoc/pkg/errors"
	"github.com/revdoc/revdoc/server/logging"
)

var (
	// ErrRevisionRequired is returned when a request that changes an existing
	// document does not name the revision it is based on.
	ErrRevisionRequired = pkgerrors.InvalidArgument("revision required").WithCode("ErrRevisionRequired")
)

// errorResponse is the body of a failed request.
type errorResponse struct {
	Error    string            `json:"error"`
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// errorHandler answers a failed request with the HTTP status of the error.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(errorResponse{
			Error:  "ErrHTTP",
			Reason: fiberErr.Message,
		})
	}

	status := pkgerrors.StatusOf(err)
	if status.IsServerError() || status == 0 {
		logging.From(c.UserContext()).Errorf("%s %s: %v", c.Method(), c.Path(), err)
	}

	code := pkgerrors.CodeOf(err)
	if code == "" {
		code = "ErrInternal"
	}
	return c.Status(status.HTTPStatus()).JSON(errorResponse{
		Error:    code,
		Reason:   err.Error(),
		Metadata: pkgerrors.Metadata(err),
	})
}
