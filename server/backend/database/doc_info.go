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

package database

import (
	"time"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
)

// DocInfo is the head record of a document: its current revision.
type DocInfo struct {
	// ID is the id of the document.
	ID types.DocID `bson:"_id"`

	// CurrentRevID is the id of the winning revision.
	CurrentRevID types.RevID `bson:"current_rev_id"`

	// Generation is the generation of the winning revision.
	Generation int `bson:"generation"`

	// Deleted tells whether the winning revision is a deletion.
	Deleted bool `bson:"deleted"`

	// Sequence is the store sequence of the winning revision.
	Sequence types.Sequence `bson:"sequence"`

	// CreatedAt is the time when the document was first saved.
	CreatedAt time.Time `bson:"created_at"`

	// UpdatedAt is the time when the winning revision was saved.
	UpdatedAt time.Time `bson:"updated_at"`
}

// CurrentRevision returns the info of the winning revision.
func (info *DocInfo) CurrentRevision() document.RevisionInfo {
	return document.RevisionInfo{
		DocID:    info.ID,
		RevID:    info.CurrentRevID,
		Sequence: info.Sequence,
		Deleted:  info.Deleted,
	}
}

// Advance moves the head to the given revision.
func (info *DocInfo) Advance(rev *RevInfo) {
	info.CurrentRevID = rev.RevID
	info.Generation = rev.Generation
	info.Deleted = rev.Deleted
	info.Sequence = rev.Sequence
	info.UpdatedAt = rev.CreatedAt
	if info.CreatedAt.IsZero() {
		info.CreatedAt = rev.CreatedAt
	}
}

// DeepCopy creates a deep copy of this DocInfo.
func (info *DocInfo) DeepCopy() *DocInfo {
	if info == nil {
		return nil
	}

	clone := *info
	return &clone
}
