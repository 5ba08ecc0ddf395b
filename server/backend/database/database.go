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

// Package database provides the revision-tree stores of revdoc. Every store
// implements document.Store and commits a revision and its attachments as
// one unit.
package database

import (
	"context"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/errors"
)

var (
	// ErrDocumentNotFound is returned when the document could not be found.
	ErrDocumentNotFound = document.ErrDocumentNotFound

	// ErrRevisionNotFound is returned when the revision could not be found.
	ErrRevisionNotFound = document.ErrRevisionNotFound

	// ErrBodyNotFound is returned when the body of a revision was compacted.
	ErrBodyNotFound = document.ErrBodyNotFound

	// ErrConflictOnCommit is returned when the parent of a commit is stale.
	ErrConflictOnCommit = document.ErrConflict

	// ErrCorruptedRecord is returned when a stored record cannot be decoded.
	ErrCorruptedRecord = errors.Internal("corrupted record").WithCode("ErrCorruptedRecord")
)

// Database represents a store which reads or saves the revisions of
// documents.
type Database interface {
	document.Store

	// Close all resources of this database.
	Close() error

	// FindDocInfo returns the head record of the given document.
	FindDocInfo(ctx context.Context, docID types.DocID) (*DocInfo, error)

	// ListDocInfos returns the head records of all documents ordered by id.
	ListDocInfos(ctx context.Context) ([]*DocInfo, error)

	// Compact drops the bodies of every revision of the given document but
	// the current one and returns how many were dropped.
	Compact(ctx context.Context, docID types.DocID) (int, error)
}
