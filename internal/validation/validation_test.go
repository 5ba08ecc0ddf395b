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

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidation(t *testing.T) {
	t.Run("ValidateDocID test", func(t *testing.T) {
		assert.NoError(t, ValidateDocID("doc1"))
		assert.NoError(t, ValidateDocID("_design/views"))
		assert.NoError(t, ValidateDocID("_local/checkpoint"))
		assert.NoError(t, ValidateDocID("with space and ümlaut"))

		err := ValidateDocID("_reserved")
		assert.Equal(t, "doc_id", err.(Violation).Tag)

		err = ValidateDocID("")
		assert.Equal(t, "required", err.(Violation).Tag)

		err = ValidateDocID("line\nbreak")
		assert.Equal(t, "doc_id", err.(Violation).Tag)
	})

	t.Run("ValidateAttachmentName test", func(t *testing.T) {
		assert.NoError(t, ValidateAttachmentName("photo.jpg"))
		assert.NoError(t, ValidateAttachmentName("dir/notes.txt"))

		err := ValidateAttachmentName("_hidden")
		assert.Equal(t, "attachment_name", err.(Violation).Tag)
		assert.Contains(t, err.Error(), "underscore")
	})

	t.Run("ValidateContentType test", func(t *testing.T) {
		assert.NoError(t, ValidateContentType("text/plain"))
		assert.NoError(t, ValidateContentType("text/plain; charset=utf-8"))
		assert.NoError(t, ValidateContentType("application/vnd.api+json"))

		err := ValidateContentType("plain")
		assert.Equal(t, "content_type", err.(Violation).Tag)
	})

	t.Run("ValidateStruct test", func(t *testing.T) {
		type Config struct {
			Backend  string `validate:"required,oneof=memory sqlite mongo"`
			Interval string `validate:"duration"`
		}

		assert.NoError(t, ValidateStruct(Config{Backend: "memory", Interval: "1m30s"}))

		err := ValidateStruct(Config{Backend: "redis", Interval: "soon"})
		structError := err.(*StructError)
		assert.Len(t, structError.Violations, 2)
		assert.Equal(t, "Backend", structError.Violations[0].Field)
	})
}
