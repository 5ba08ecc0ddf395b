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

package database_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/server/backend/database"
)

func TestDocInfo(t *testing.T) {
	t.Run("advance test", func(t *testing.T) {
		created := time.Unix(100, 0)
		docInfo := &database.DocInfo{ID: types.DocID("doc1")}

		docInfo.Advance(&database.RevInfo{
			DocID:      "doc1",
			RevID:      "1-abc",
			Generation: 1,
			Sequence:   7,
			CreatedAt:  created,
		})
		assert.Equal(t, types.RevID("1-abc"), docInfo.CurrentRevID)
		assert.Equal(t, created, docInfo.CreatedAt)
		assert.Equal(t, created, docInfo.UpdatedAt)

		// A deletion moves the head but keeps the creation time.
		updated := created.Add(time.Minute)
		docInfo.Advance(&database.RevInfo{
			DocID:      "doc1",
			RevID:      "2-def",
			ParentID:   "1-abc",
			Generation: 2,
			Sequence:   9,
			Deleted:    true,
			CreatedAt:  updated,
		})
		assert.Equal(t, 2, docInfo.Generation)
		assert.True(t, docInfo.Deleted)
		assert.Equal(t, created, docInfo.CreatedAt)
		assert.Equal(t, updated, docInfo.UpdatedAt)

		current := docInfo.CurrentRevision()
		assert.Equal(t, types.RevID("2-def"), current.RevID)
		assert.Equal(t, types.Sequence(9), current.Sequence)
		assert.True(t, current.Deleted)
	})

	t.Run("deep copy test", func(t *testing.T) {
		var nilInfo *database.DocInfo
		assert.Nil(t, nilInfo.DeepCopy())

		docInfo := &database.DocInfo{ID: "doc1", CurrentRevID: "1-abc"}
		clone := docInfo.DeepCopy()
		clone.CurrentRevID = "2-def"
		assert.Equal(t, types.RevID("1-abc"), docInfo.CurrentRevID)
	})
}

func TestRevInfo(t *testing.T) {
	t.Run("body and parent test", func(t *testing.T) {
		root := &database.RevInfo{DocID: "doc1", RevID: "1-abc", Body: []byte(`{}`)}
		assert.True(t, root.HasBody())
		assert.False(t, root.HasParent())

		child := &database.RevInfo{DocID: "doc1", RevID: "2-def", ParentID: "1-abc"}
		assert.False(t, child.HasBody())
		assert.True(t, child.HasParent())
	})

	t.Run("deep copy test", func(t *testing.T) {
		rev := &database.RevInfo{DocID: "doc1", RevID: "1-abc", Body: []byte(`{"a":1}`)}
		clone := rev.DeepCopy()
		clone.Body[0] = '['
		assert.Equal(t, `{"a":1}`, string(rev.Body))

		info := rev.ToRevisionInfo()
		assert.Equal(t, types.DocID("doc1"), info.DocID)
		assert.Equal(t, types.RevID("1-abc"), info.RevID)
	})
}
