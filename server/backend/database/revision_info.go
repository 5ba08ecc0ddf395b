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
	"slices"
	"time"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
)

// RevInfo is the stored record of one revision: a node of the revision tree
// of a document.
type RevInfo struct {
	// DocID is the id of the document the revision belongs to.
	DocID types.DocID `bson:"doc_id"`

	// RevID is the id of the revision.
	RevID types.RevID `bson:"rev_id"`

	// ParentID is the id of the parent revision, empty for a root.
	ParentID types.RevID `bson:"parent_id"`

	// Generation is the depth of the revision in the tree.
	Generation int `bson:"generation"`

	// Sequence is the store sequence at which the revision was committed.
	Sequence types.Sequence `bson:"sequence"`

	// Deleted tells whether the revision is a deletion.
	Deleted bool `bson:"deleted"`

	// Body is the encoded body of the revision. It is nil once compacted.
	Body []byte `bson:"body"`

	// CreatedAt is the time when the revision was committed.
	CreatedAt time.Time `bson:"created_at"`
}

// HasBody returns whether the body of the revision is still stored.
func (r *RevInfo) HasBody() bool {
	return r.Body != nil
}

// HasParent returns whether the revision has a parent.
func (r *RevInfo) HasParent() bool {
	return !r.ParentID.IsZero()
}

// ToRevisionInfo returns the identity of the revision.
func (r *RevInfo) ToRevisionInfo() document.RevisionInfo {
	return document.RevisionInfo{
		DocID:    r.DocID,
		RevID:    r.RevID,
		Sequence: r.Sequence,
		Deleted:  r.Deleted,
	}
}

// DeepCopy creates a deep copy of the RevInfo.
func (r *RevInfo) DeepCopy() *RevInfo {
	if r == nil {
		return nil
	}

	clone := *r
	clone.Body = slices.Clone(r.Body)
	return &clone
}
