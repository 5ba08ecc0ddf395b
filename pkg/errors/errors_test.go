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

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code       StatusCode
		name       string
		httpStatus int
	}{
		{ErrCodeInvalidArgument, "invalid_argument", http.StatusBadRequest},
		{ErrCodeNotFound, "not_found", http.StatusNotFound},
		{ErrCodeAlreadyExists, "already_exists", http.StatusConflict},
		{ErrCodeFailedPrecondition, "failed_precondition", http.StatusPreconditionFailed},
		{ErrCodeInternal, "internal", http.StatusInternalServerError},
		{ErrCodeUnavailable, "unavailable", http.StatusBadGateway},
		{StatusCode(999), "code_999", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.code.String())
			assert.Equal(t, tt.httpStatus, tt.code.HTTPStatus())
		})
	}
}

func TestErrorCategory(t *testing.T) {
	for _, err := range []StatusError{
		NotFound("test"),
		InvalidArgument("test"),
		AlreadyExists("test"),
		FailedPrecond("test"),
	} {
		assert.True(t, IsClientError(err), "%v should be a client error", err)
		assert.False(t, IsServerError(err))
	}

	for _, err := range []StatusError{Internal("test"), Unavailable("test")} {
		assert.True(t, IsServerError(err), "%v should be a server error", err)
		assert.False(t, IsClientError(err))
	}
}

func TestStatusOf(t *testing.T) {
	t.Run("wrapped status error test", func(t *testing.T) {
		err := fmt.Errorf("commit 1-abc: %w", FailedPrecond("conflict"))
		assert.Equal(t, ErrCodeFailedPrecondition, StatusOf(err))
		assert.True(t, IsStatus(err, ErrCodeFailedPrecondition))
	})

	t.Run("standard error test", func(t *testing.T) {
		assert.Equal(t, StatusCode(0), StatusOf(errors.New("plain")))
		assert.Equal(t, StatusCode(0), StatusOf(nil))
		assert.Equal(t, "", CodeOf(errors.New("plain")))
	})
}

func TestWithCode(t *testing.T) {
	errConflict := FailedPrecond("conflict").WithCode("ErrConflict")
	errReused := FailedPrecond("draft already saved").WithCode("ErrDraftAlreadySaved")

	wrapped := fmt.Errorf("save draft of doc1: %w", errConflict)
	assert.ErrorIs(t, wrapped, errConflict)
	assert.NotErrorIs(t, wrapped, errReused)
	assert.Equal(t, "ErrConflict", CodeOf(wrapped))
	assert.Equal(t, ErrCodeFailedPrecondition, errReused.Status())
}

func TestMetadata(t *testing.T) {
	base := FailedPrecond("conflict").WithCode("ErrConflict")

	t.Run("attach and read metadata test", func(t *testing.T) {
		err := WithMetadata(base, map[string]string{"doc_id": "doc1"})
		assert.Equal(t, map[string]string{"doc_id": "doc1"}, Metadata(err))
		assert.ErrorIs(t, err, base)
		assert.Equal(t, ErrCodeFailedPrecondition, StatusOf(err))

		wrapped := fmt.Errorf("save: %w", err)
		assert.Equal(t, "doc1", Metadata(wrapped)["doc_id"])
	})

	t.Run("merge metadata test", func(t *testing.T) {
		err := WithMetadata(base, map[string]string{"doc_id": "doc1", "parent": "1-abc"})
		err = WithMetadata(err, map[string]string{"parent": "2-def"})
		assert.Equal(t, map[string]string{"doc_id": "doc1", "parent": "2-def"}, Metadata(err))
	})

	t.Run("empty metadata test", func(t *testing.T) {
		assert.Equal(t, base, WithMetadata(base, nil))
		assert.Nil(t, WithMetadata(nil, map[string]string{"a": "b"}))
		assert.Nil(t, Metadata(base))
	})
}
