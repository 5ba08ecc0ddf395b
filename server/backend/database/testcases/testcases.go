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

// Package testcases contains testcases for database. It is used by database
// implementations to test their own implementations with the same testcases.
package testcases

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/server/backend/database"
)

func newDocID(t *testing.T) types.DocID {
	return types.DocID("tests$" + xid.New().String())
}

func newRequest(docID types.DocID, parentID types.RevID, user map[string]interface{}) document.CommitRequest {
	return document.CommitRequest{
		DocID:       docID,
		ParentID:    parentID,
		Properties:  properties.FromMap(user),
		Attachments: attachment.NewStage(),
	}
}

func commit(
	ctx context.Context,
	t *testing.T,
	db database.Database,
	docID types.DocID,
	parentID types.RevID,
	user map[string]interface{},
) document.CommitResult {
	result, err := db.Commit(ctx, newRequest(docID, parentID, user))
	require.NoError(t, err)
	return result
}

// RunCommitTest runs the Commit test for the given db.
func RunCommitTest(t *testing.T, db database.Database) {
	ctx := context.Background()

	t.Run("commit new document test", func(t *testing.T) {
		docID := newDocID(t)

		_, ok, err := db.CurrentRevision(ctx, docID)
		require.NoError(t, err)
		assert.False(t, ok)

		result := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"title": "x"})
		assert.Equal(t, 1, result.Info.RevID.Generation())
		assert.Equal(t, docID, result.Info.DocID)
		assert.False(t, result.Info.Deleted)
		assert.Equal(t, docID, result.Properties.ID())
		assert.Equal(t, result.Info.RevID, result.Properties.RevID())

		current, ok, err := db.CurrentRevision(ctx, docID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, result.Info, current)

		body, err := db.LoadBody(ctx, docID, result.Info.RevID)
		require.NoError(t, err)
		assert.True(t, result.Properties.Equal(body))
		assert.Equal(t, []string{properties.KeyID, properties.KeyRev, "title"}, body.Keys())

		info, err := db.FindDocInfo(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, result.Info.RevID, info.CurrentRevID)
		assert.Equal(t, 1, info.Generation)
	})

	t.Run("commit on current revision test", func(t *testing.T) {
		docID := newDocID(t)
		first := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"n": 1})
		second := commit(ctx, t, db, docID, first.Info.RevID, map[string]interface{}{"n": 2})

		assert.Equal(t, 2, second.Info.RevID.Generation())
		assert.Greater(t, second.Info.Sequence, first.Info.Sequence)

		parent, ok, err := db.Parent(ctx, docID, second.Info.RevID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, first.Info, parent)

		_, ok, err = db.Parent(ctx, docID, first.Info.RevID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("commit on stale revision test", func(t *testing.T) {
		docID := newDocID(t)
		first := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"n": 1})
		second := commit(ctx, t, db, docID, first.Info.RevID, map[string]interface{}{"n": 2})

		_, err := db.Commit(ctx, newRequest(docID, first.Info.RevID, map[string]interface{}{"n": 3}))
		assert.ErrorIs(t, err, document.ErrConflict)

		_, err = db.Commit(ctx, newRequest(docID, types.NoRevision, map[string]interface{}{"n": 3}))
		assert.ErrorIs(t, err, document.ErrConflict)

		_, err = db.Commit(ctx, newRequest(newDocID(t), first.Info.RevID, nil))
		assert.ErrorIs(t, err, document.ErrConflict)

		current, _, err := db.CurrentRevision(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, second.Info.RevID, current.RevID)
	})

	t.Run("missing revision test", func(t *testing.T) {
		docID := newDocID(t)
		commit(ctx, t, db, docID, types.NoRevision, nil)

		_, err := db.Revision(ctx, docID, "9-nope")
		assert.ErrorIs(t, err, document.ErrRevisionNotFound)

		_, err = db.LoadBody(ctx, docID, "9-nope")
		assert.ErrorIs(t, err, document.ErrRevisionNotFound)
	})
}

// RunDeletionTest runs the deletion test for the given db.
func RunDeletionTest(t *testing.T, db database.Database) {
	ctx := context.Background()

	t.Run("delete and recreate test", func(t *testing.T) {
		docID := newDocID(t)
		first := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"n": 1})

		req := newRequest(docID, first.Info.RevID, nil)
		req.Properties.SetDeleted(true)
		deleted, err := db.Commit(ctx, req)
		require.NoError(t, err)
		assert.True(t, deleted.Info.Deleted)
		assert.True(t, deleted.Properties.IsDeleted())

		current, _, err := db.CurrentRevision(ctx, docID)
		require.NoError(t, err)
		assert.True(t, current.Deleted)

		recreated := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"n": 2})
		assert.Equal(t, 3, recreated.Info.RevID.Generation())
		assert.False(t, recreated.Info.Deleted)

		parent, ok, err := db.Parent(ctx, docID, recreated.Info.RevID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, deleted.Info.RevID, parent.RevID)
	})
}

// RunAncestryTest runs the Ancestry test for the given db.
func RunAncestryTest(t *testing.T, db database.Database) {
	ctx := context.Background()

	t.Run("ancestry oldest first test", func(t *testing.T) {
		docID := newDocID(t)
		r1 := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"n": 1})
		r2 := commit(ctx, t, db, docID, r1.Info.RevID, map[string]interface{}{"n": 2})
		r3 := commit(ctx, t, db, docID, r2.Info.RevID, map[string]interface{}{"n": 3})

		ancestry, err := db.Ancestry(ctx, docID, r3.Info.RevID)
		require.NoError(t, err)
		assert.Equal(t, []document.RevisionInfo{r1.Info, r2.Info, r3.Info}, ancestry)

		ancestry, err = db.Ancestry(ctx, docID, r1.Info.RevID)
		require.NoError(t, err)
		assert.Equal(t, []document.RevisionInfo{r1.Info}, ancestry)
	})
}

// RunAttachmentTest runs the attachment test for the given db.
func RunAttachmentTest(t *testing.T, db database.Database) {
	ctx := context.Background()

	t.Run("stage and inherit attachments test", func(t *testing.T) {
		docID := newDocID(t)
		a := attachment.NewFromBytes("text/plain", []byte("aaa"))
		b := attachment.NewFromBytes("image/png", []byte("bbbb"))

		req := newRequest(docID, types.NoRevision, map[string]interface{}{"n": 1})
		req.Attachments.Put("a.txt", a)
		req.Attachments.Put("b.png", b)
		first, err := db.Commit(ctx, req)
		require.NoError(t, err)

		stubs, err := attachment.Stubs(first.Properties)
		require.NoError(t, err)
		assert.Equal(t, attachment.StubOf(a, 1), stubs["a.txt"])
		assert.Equal(t, attachment.StubOf(b, 1), stubs["b.png"])

		rc, err := db.OpenAttachment(ctx, a.Digest())
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, []byte("aaa"), content)

		req = document.CommitRequest{
			DocID:       docID,
			ParentID:    first.Info.RevID,
			Properties:  first.Properties.DeepCopy(),
			Attachments: attachment.NewStage(),
		}
		req.Attachments.Delete("a.txt")
		second, err := db.Commit(ctx, req)
		require.NoError(t, err)

		body, err := db.LoadBody(ctx, docID, second.Info.RevID)
		require.NoError(t, err)
		stubs, err = attachment.Stubs(body)
		require.NoError(t, err)
		assert.Len(t, stubs, 1)
		assert.Equal(t, attachment.StubOf(b, 1), stubs["b.png"])
	})

	t.Run("stale commit links no attachment test", func(t *testing.T) {
		docID := newDocID(t)
		first := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"n": 1})
		second := commit(ctx, t, db, docID, first.Info.RevID, map[string]interface{}{"n": 2})

		late := attachment.NewFromBytes("text/plain", []byte("late "+xid.New().String()))
		req := newRequest(docID, first.Info.RevID, map[string]interface{}{"n": 3})
		req.Attachments.Put("late.txt", late)
		_, err := db.Commit(ctx, req)
		assert.ErrorIs(t, err, document.ErrConflict)

		current, err := document.New(db, docID).CurrentRevision(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.Info.RevID, current.ID())
		names, err := current.AttachmentNames(ctx)
		require.NoError(t, err)
		assert.NotContains(t, names, "late.txt")

		_, err = current.OpenAttachment(ctx, "late.txt")
		assert.ErrorIs(t, err, document.ErrAttachmentNotFound)
		_, err = db.OpenAttachment(ctx, late.Digest())
		assert.ErrorIs(t, err, document.ErrAttachmentNotFound)
	})

	t.Run("missing attachment test", func(t *testing.T) {
		_, err := db.OpenAttachment(ctx, attachment.Digest([]byte(xid.New().String())))
		assert.ErrorIs(t, err, document.ErrAttachmentNotFound)
	})
}

// RunValidationTest runs the validation test for the given db.
func RunValidationTest(t *testing.T, db database.Database) {
	ctx := context.Background()

	t.Run("reject invalid properties test", func(t *testing.T) {
		docID := newDocID(t)

		_, err := db.Commit(ctx, newRequest(docID, types.NoRevision, map[string]interface{}{"_secret": 1}))
		assert.ErrorIs(t, err, document.ErrInvalidProperties)

		_, err = db.Commit(ctx, newRequest(docID, types.NoRevision, map[string]interface{}{"_id": "other"}))
		assert.ErrorIs(t, err, document.ErrInvalidProperties)

		_, err = db.Commit(ctx, newRequest(docID, types.NoRevision, map[string]interface{}{
			"nested": map[string]interface{}{"raw": []byte("x")},
		}))
		assert.ErrorIs(t, err, document.ErrInvalidProperties)

		_, err = db.Commit(ctx, newRequest(docID, types.NoRevision, map[string]interface{}{"ch": make(chan int)}))
		assert.ErrorIs(t, err, document.ErrInvalidProperties)
		assert.True(t, document.IsValidation(err))

		_, ok, err := db.CurrentRevision(ctx, docID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reject invalid attachment test", func(t *testing.T) {
		docID := newDocID(t)

		req := newRequest(docID, types.NoRevision, nil)
		req.Attachments.Put("a.bin", attachment.NewFromBytes("not a mime type", []byte("x")))
		_, err := db.Commit(ctx, req)
		assert.ErrorIs(t, err, document.ErrInvalidAttachment)

		req = newRequest(docID, types.NoRevision, nil)
		attachment.SetStubs(req.Properties, map[string]attachment.Stub{
			"ghost.txt": {ContentType: "text/plain", Digest: attachment.Digest([]byte("ghost")), Length: 5, RevPos: 1},
		})
		_, err = db.Commit(ctx, req)
		assert.ErrorIs(t, err, document.ErrInvalidAttachment)

		_, err = db.Commit(ctx, newRequest("_bad", types.NoRevision, nil))
		assert.ErrorIs(t, err, document.ErrInvalidDocID)

		_, ok, err := db.CurrentRevision(ctx, docID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// RunCompactTest runs the Compact test for the given db.
func RunCompactTest(t *testing.T, db database.Database) {
	ctx := context.Background()

	t.Run("compact drops old bodies test", func(t *testing.T) {
		docID := newDocID(t)
		r1 := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"n": 1})
		r2 := commit(ctx, t, db, docID, r1.Info.RevID, map[string]interface{}{"n": 2})

		n, err := db.Compact(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = db.LoadBody(ctx, docID, r1.Info.RevID)
		assert.ErrorIs(t, err, document.ErrBodyNotFound)

		_, err = db.LoadBody(ctx, docID, r2.Info.RevID)
		assert.NoError(t, err)

		ancestry, err := db.Ancestry(ctx, docID, r2.Info.RevID)
		require.NoError(t, err)
		assert.Len(t, ancestry, 2)

		n, err = db.Compact(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("compact while committing keeps the current body test", func(t *testing.T) {
		docID := newDocID(t)
		head := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"n": 0})

		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if _, err := db.Compact(ctx, docID); err != nil {
					assert.NoError(t, err)
					return
				}
			}
		}()

		for i := 1; i <= 20; i++ {
			head = commit(ctx, t, db, docID, head.Info.RevID, map[string]interface{}{"n": i})
			body, err := db.LoadBody(ctx, docID, head.Info.RevID)
			if !assert.NoError(t, err) {
				break
			}
			assert.True(t, head.Properties.Equal(body))
		}
		close(done)
		wg.Wait()
	})

	t.Run("compact missing document test", func(t *testing.T) {
		_, err := db.Compact(ctx, newDocID(t))
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)
	})
}

// RunConcurrentCommitTest runs the test of racing commits for the given db.
func RunConcurrentCommitTest(t *testing.T, db database.Database) {
	ctx := context.Background()

	t.Run("only one racing commit wins test", func(t *testing.T) {
		docID := newDocID(t)
		root := commit(ctx, t, db, docID, types.NoRevision, map[string]interface{}{"n": 0})

		const racers = 8
		var wg sync.WaitGroup
		errs := make([]error, racers)
		for i := range racers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = db.Commit(ctx, newRequest(docID, root.Info.RevID, map[string]interface{}{"n": i + 1}))
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, document.ErrConflict)
		}
		assert.Equal(t, 1, succeeded)

		current, _, err := db.CurrentRevision(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, 2, current.RevID.Generation())
	})
}

// RunListDocInfosTest runs the ListDocInfos test for the given db.
func RunListDocInfosTest(t *testing.T, db database.Database) {
	ctx := context.Background()

	t.Run("list documents test", func(t *testing.T) {
		docID := newDocID(t)
		result := commit(ctx, t, db, docID, types.NoRevision, nil)

		infos, err := db.ListDocInfos(ctx)
		require.NoError(t, err)

		found := false
		for i, info := range infos {
			if i > 0 {
				assert.Less(t, infos[i-1].ID, info.ID)
			}
			if info.ID == docID {
				found = true
				assert.Equal(t, result.Info.RevID, info.CurrentRevID)
			}
		}
		assert.True(t, found)

		_, err = db.FindDocInfo(ctx, newDocID(t))
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)
	})
}
