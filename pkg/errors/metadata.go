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
	"maps"
)

// MetadataError decorates an error with key/value context, e.g. the document
// and revision ids involved in a conflict.
type MetadataError struct {
	err      error
	metadata map[string]string
}

func (e MetadataError) Error() string {
	return e.err.Error()
}

// Status returns the status of the decorated error.
func (e MetadataError) Status() StatusCode {
	return StatusOf(e.err)
}

func (e MetadataError) Unwrap() error {
	return e.err
}

// Metadata returns a copy of the metadata.
func (e MetadataError) Metadata() map[string]string {
	return maps.Clone(e.metadata)
}

// WithMetadata decorates err with the given metadata. Metadata already
// present on err is merged, with the new values taking precedence.
func WithMetadata(err error, metadata map[string]string) error {
	if err == nil {
		return nil
	}
	if len(metadata) == 0 {
		return err
	}

	merged := make(map[string]string)
	if existing, ok := err.(MetadataError); ok {
		maps.Copy(merged, existing.metadata)
		err = existing.err
	}
	maps.Copy(merged, metadata)

	return MetadataError{err: err, metadata: merged}
}

// Metadata returns the metadata of the first MetadataError in the chain of
// err, or nil.
func Metadata(err error) map[string]string {
	var metaErr MetadataError
	if errors.As(err, &metaErr) {
		return metaErr.Metadata()
	}
	return nil
}
