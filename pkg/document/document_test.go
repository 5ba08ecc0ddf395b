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

package document_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/server/backend/database/memory"
)

// countingStore counts the bodies loaded from the wrapped store.
type countingStore struct {
	*memory.DB
	loads atomic.Int64
}

func (s *countingStore) LoadBody(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
) (*properties.Set, error) {
	s.loads.Add(1)
	return s.DB.LoadBody(ctx, docID, revID)
}

func setupStore(t *testing.T) *countingStore {
	db, err := memory.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, db.Close())
	})
	return &countingStore{DB: db}
}

func newDocID() types.DocID {
	return types.DocID("doc-" + xid.New().String())
}

func saveTitle(t *testing.T, doc *document.Document, title string) *document.SavedRevision {
	rev, err := doc.PutProperties(context.Background(), map[string]interface{}{"title": title})
	require.NoError(t, err)
	return rev
}

func TestSavedRevision(t *testing.T) {
	ctx := context.Background()

	t.Run("properties are loaded once test", func(t *testing.T) {
		store := setupStore(t)
		docID := newDocID()
		saveTitle(t, document.New(store, docID), "hello")

		// a fresh handle has no body cached yet
		rev, err := document.New(store, docID).CurrentRevision(ctx)
		require.NoError(t, err)
		assert.False(t, rev.PropertiesAvailable())

		first, err := rev.Properties(ctx)
		require.NoError(t, err)
		second, err := rev.Properties(ctx)
		require.NoError(t, err)

		assert.True(t, rev.PropertiesAvailable())
		assert.Equal(t, int64(1), store.loads.Load())
		assert.True(t, first.Equal(second))

		// callers get copies
		first.Set("title", "changed")
		title, ok, err := rev.Property(ctx, "title")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "hello", title)
	})

	t.Run("same revision same instance test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())
		saved := saveTitle(t, doc, "hello")

		current, err := doc.CurrentRevision(ctx)
		require.NoError(t, err)
		assert.Same(t, saved, current)

		byID, err := doc.Revision(ctx, saved.ID())
		require.NoError(t, err)
		assert.Same(t, saved, byID)
	})

	t.Run("fork and save test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())
		r1 := saveTitle(t, doc, "first")

		draft, err := r1.CreateDraft(ctx)
		require.NoError(t, err)
		assert.Equal(t, r1.ID(), draft.ParentID())
		draft.SetProperty("title", "second")

		r2, err := draft.Save(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, r2.ID().Generation())
		assert.Equal(t, doc.ID(), r2.DocumentID())

		props, err := r2.Properties(ctx)
		require.NoError(t, err)
		assert.Equal(t, "second", props.GetString("title"))
		assert.Equal(t, r2.ID(), props.RevID())
		assert.Equal(t, doc.ID(), props.ID())

		parent, err := r2.Parent(ctx)
		require.NoError(t, err)
		assert.Same(t, r1, parent)

		parentID, ok, err := r1.ParentID(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, types.NoRevision, parentID)
	})

	t.Run("saved body equals reloaded body test", func(t *testing.T) {
		store := setupStore(t)
		docID := newDocID()
		draft, err := document.New(store, docID).CreateDraft(ctx)
		require.NoError(t, err)
		draft.SetProperty("big", int64(9007199254740993))
		draft.SetProperty("ratio", 0.25)
		draft.SetProperty("nested", map[string]interface{}{"n": 7, "list": []interface{}{1, "x"}})

		saved, err := draft.Save(ctx)
		require.NoError(t, err)
		props, err := saved.Properties(ctx)
		require.NoError(t, err)

		reloaded, err := document.New(store, docID).Revision(ctx, saved.ID())
		require.NoError(t, err)
		assert.NotSame(t, saved, reloaded)
		reloadedProps, err := reloaded.Properties(ctx)
		require.NoError(t, err)

		assert.Equal(t, props.ToMap(), reloadedProps.ToMap())
		assert.True(t, props.Equal(reloadedProps))
		big, _ := reloadedProps.Get("big")
		assert.Equal(t, int64(9007199254740993), big)
	})

	t.Run("raw bytes property test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())
		draft, err := doc.CreateDraft(ctx)
		require.NoError(t, err)
		draft.SetProperty("raw", []byte("hi"))

		_, err = draft.Save(ctx)
		assert.ErrorIs(t, err, document.ErrInvalidProperties)

		_, err = doc.CurrentRevision(ctx)
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)
	})

	t.Run("history test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())
		r1 := saveTitle(t, doc, "1")
		r2 := saveTitle(t, doc, "2")
		r3 := saveTitle(t, doc, "3")

		history, err := r3.History(ctx)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Same(t, r1, history[0])
		assert.Same(t, r2, history[1])
		assert.Same(t, r3, history[2])

		history, err = doc.History(ctx)
		require.NoError(t, err)
		assert.Len(t, history, 3)
	})

	t.Run("revision cache is bounded test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())
		first := saveTitle(t, doc, "0")
		last := first
		for i := 1; i <= document.RevisionCacheSize; i++ {
			last = saveTitle(t, doc, strconv.Itoa(i))
		}

		again, err := doc.Revision(ctx, first.ID())
		require.NoError(t, err)
		assert.NotSame(t, first, again)
		assert.Equal(t, first.ID(), again.ID())

		history, err := last.History(ctx)
		require.NoError(t, err)
		require.Len(t, history, document.RevisionCacheSize+1)
		assert.Same(t, last, history[len(history)-1])
		assert.Equal(t, first.ID(), history[0].ID())
	})

	t.Run("two drafts from one parent test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())
		r1 := saveTitle(t, doc, "base")

		d1, err := r1.CreateDraft(ctx)
		require.NoError(t, err)
		d2, err := r1.CreateDraft(ctx)
		require.NoError(t, err)

		d1.SetProperty("title", "one")
		d2.SetProperty("title", "two")

		winner, err := d1.Save(ctx)
		require.NoError(t, err)

		_, err = d2.Save(ctx)
		assert.ErrorIs(t, err, document.ErrConflict)
		assert.True(t, document.IsConflict(err))

		current, err := doc.CurrentRevision(ctx)
		require.NoError(t, err)
		assert.Same(t, winner, current)
		props, err := current.Properties(ctx)
		require.NoError(t, err)
		assert.Equal(t, "one", props.GetString("title"))

		_, err = r1.CreateRevision(ctx, properties.FromMap(map[string]interface{}{"title": "late"}))
		assert.ErrorIs(t, err, document.ErrConflict)
	})

	t.Run("missing body test", func(t *testing.T) {
		store := setupStore(t)
		docID := newDocID()
		r1 := saveTitle(t, document.New(store, docID), "old")
		saveTitle(t, document.New(store, docID), "new")

		compacted, err := store.Compact(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, 1, compacted)

		old, err := document.New(store, docID).Revision(ctx, r1.ID())
		require.NoError(t, err)

		props, err := old.Properties(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, props.Len())
		assert.True(t, old.BodyMissing())

		names, err := old.AttachmentNames(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)

		draft, err := old.CreateDraft(ctx)
		require.NoError(t, err)
		draftProps := draft.Properties()
		assert.Equal(t, docID, draftProps.ID())
		assert.Equal(t, r1.ID(), draftProps.RevID())
	})

	t.Run("missing revision test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())
		saveTitle(t, doc, "x")

		_, err := doc.Revision(ctx, types.NewRevID(7, "ffff"))
		assert.ErrorIs(t, err, document.ErrRevisionNotFound)
		assert.True(t, document.IsNotFound(err))
	})
}

func TestDraftRevision(t *testing.T) {
	ctx := context.Background()

	t.Run("save twice test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())

		draft, err := doc.CreateDraft(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.NoRevision, draft.ParentID())
		assert.Nil(t, draft.Parent())

		_, err = draft.Save(ctx)
		require.NoError(t, err)
		assert.True(t, draft.Saved())

		_, err = draft.Save(ctx)
		assert.ErrorIs(t, err, document.ErrDraftAlreadySaved)
	})

	t.Run("failed save consumes the draft test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())
		r1 := saveTitle(t, doc, "base")

		stale, err := r1.CreateDraft(ctx)
		require.NoError(t, err)
		saveTitle(t, doc, "moved")

		_, err = stale.Save(ctx)
		assert.ErrorIs(t, err, document.ErrConflict)
		_, err = stale.Save(ctx)
		assert.ErrorIs(t, err, document.ErrDraftAlreadySaved)
	})

	t.Run("set user properties keeps metadata test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())

		draft, err := doc.CreateDraft(ctx)
		require.NoError(t, err)
		require.NoError(t, draft.AddAttachment("a.txt", attachment.NewFromBytes("text/plain", []byte("a"))))
		r1, err := draft.Save(ctx)
		require.NoError(t, err)

		draft, err = r1.CreateDraft(ctx)
		require.NoError(t, err)
		draft.SetUserProperties(map[string]interface{}{"n": 1})

		props := draft.Properties()
		assert.Equal(t, r1.ID(), props.RevID())
		assert.True(t, props.Has(properties.KeyAttachments))
		assert.Equal(t, map[string]interface{}{"n": 1}, draft.UserProperties())

		r2, err := draft.Save(ctx)
		require.NoError(t, err)
		names, err := r2.AttachmentNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, names)

		stub, err := r2.Attachment(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, 1, stub.RevPos)
	})

	t.Run("attachments test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())

		draft, err := doc.CreateDraft(ctx)
		require.NoError(t, err)
		require.NoError(t, draft.AddAttachment("keep.txt", attachment.NewFromBytes("text/plain", []byte("keep"))))
		require.NoError(t, draft.AddAttachment("drop.txt", attachment.NewFromBytes("text/plain", []byte("drop"))))

		names, err := draft.AttachmentNames()
		require.NoError(t, err)
		assert.Equal(t, []string{"drop.txt", "keep.txt"}, names)

		r1, err := draft.Save(ctx)
		require.NoError(t, err)

		draft, err = r1.CreateDraft(ctx)
		require.NoError(t, err)
		require.NoError(t, draft.DeleteAttachment("drop.txt"))
		require.NoError(t, draft.AddAttachment("new.txt", attachment.NewFromBytes("text/plain", []byte("new"))))

		stubs, err := draft.Attachments()
		require.NoError(t, err)
		assert.NotContains(t, stubs, "drop.txt")
		assert.Equal(t, 2, stubs["new.txt"].RevPos)

		r2, err := draft.Save(ctx)
		require.NoError(t, err)

		names, err = r2.AttachmentNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"keep.txt", "new.txt"}, names)

		_, err = r2.Attachment(ctx, "drop.txt")
		assert.ErrorIs(t, err, document.ErrAttachmentNotFound)

		rc, err := r2.OpenAttachment(ctx, "keep.txt")
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "keep", string(content))

		// the parent still has it
		names, err = r1.AttachmentNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"drop.txt", "keep.txt"}, names)
	})

	t.Run("invalid attachment name test", func(t *testing.T) {
		store := setupStore(t)
		draft, err := document.New(store, newDocID()).CreateDraft(ctx)
		require.NoError(t, err)

		r := &closeTracker{Reader: strings.NewReader("data")}
		err = draft.SetAttachment("_hidden", "text/plain", r)
		assert.ErrorIs(t, err, document.ErrInvalidAttachment)
		assert.True(t, document.IsValidation(err))
		assert.True(t, r.closed)

		assert.ErrorIs(t, draft.DeleteAttachment(""), document.ErrInvalidAttachment)
	})

	t.Run("set attachment test", func(t *testing.T) {
		store := setupStore(t)
		draft, err := document.New(store, newDocID()).CreateDraft(ctx)
		require.NoError(t, err)

		r := &closeTracker{Reader: strings.NewReader("data")}
		require.NoError(t, draft.SetAttachment("data.bin", "application/octet-stream", r))
		assert.True(t, r.closed)

		rev, err := draft.Save(ctx)
		require.NoError(t, err)
		stub, err := rev.Attachment(ctx, "data.bin")
		require.NoError(t, err)
		assert.Equal(t, int64(4), stub.Length)
		assert.Equal(t, "application/octet-stream", stub.ContentType)
	})

	t.Run("set attachment without reader test", func(t *testing.T) {
		store := setupStore(t)
		draft, err := document.New(store, newDocID()).CreateDraft(ctx)
		require.NoError(t, err)

		assert.ErrorIs(t, draft.SetAttachment("data.bin", "text/plain", nil), document.ErrInvalidAttachment)
		assert.ErrorIs(t, draft.SetAttachment("", "text/plain", nil), document.ErrInvalidAttachment)
		names, err := draft.AttachmentNames()
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("set attachment from url test", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/logo.svg" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "image/svg+xml")
			_, _ = w.Write([]byte("<svg/>"))
		}))
		defer srv.Close()

		store := setupStore(t)
		draft, err := document.New(store, newDocID()).CreateDraft(ctx)
		require.NoError(t, err)

		require.NoError(t, draft.SetAttachmentFromURL(ctx, "logo", "", srv.URL+"/logo.svg"))
		err = draft.SetAttachmentFromURL(ctx, "missing", "", srv.URL+"/missing")
		assert.True(t, document.IsIO(err))

		stubs, err := draft.Attachments()
		require.NoError(t, err)
		assert.Contains(t, stubs, "logo")
		assert.NotContains(t, stubs, "missing")
		assert.Equal(t, "image/svg+xml", stubs["logo"].ContentType)
	})
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("missing document test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())

		_, err := doc.CurrentRevision(ctx)
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)

		_, err = doc.Delete(ctx)
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)
	})

	t.Run("delete and recreate test", func(t *testing.T) {
		store := setupStore(t)
		doc := document.New(store, newDocID())
		saveTitle(t, doc, "alive")

		tombstone, err := doc.Delete(ctx)
		require.NoError(t, err)
		assert.True(t, tombstone.IsDeletion())

		_, err = doc.Delete(ctx)
		assert.ErrorIs(t, err, document.ErrDocumentNotFound)

		revived := saveTitle(t, doc, "again")
		assert.False(t, revived.IsDeletion())
		assert.Equal(t, 3, revived.ID().Generation())

		parent, err := revived.Parent(ctx)
		require.NoError(t, err)
		assert.Same(t, tombstone, parent)
	})

	t.Run("update retries on conflict test", func(t *testing.T) {
		store := setupStore(t)
		docID := newDocID()
		doc := document.New(store, docID)
		other := document.New(store, docID)
		saveTitle(t, doc, "base")

		attempts := 0
		rev, err := doc.Update(ctx, func(draft *document.DraftRevision) error {
			attempts++
			if attempts == 1 {
				saveTitle(t, other, "interloper")
			}
			draft.SetProperty("count", attempts)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 3, rev.ID().Generation())

		props, err := rev.Properties(ctx)
		require.NoError(t, err)
		assert.Equal(t, "interloper", props.GetString("title"))
	})

	t.Run("update gives up test", func(t *testing.T) {
		store := setupStore(t)
		docID := newDocID()
		doc := document.New(store, docID)
		other := document.New(store, docID)
		saveTitle(t, doc, "base")

		_, err := doc.Update(ctx, func(draft *document.DraftRevision) error {
			saveTitle(t, other, "again")
			return nil
		})
		assert.ErrorIs(t, err, document.ErrConflict)
	})
}

// exampleStore is a single-document store whose revision ids are fixed.
type exampleStore struct {
	current types.RevID
	next    types.RevID
}

func (s *exampleStore) LoadBody(_ context.Context, docID types.DocID, revID types.RevID) (*properties.Set, error) {
	props := properties.New()
	props.Set(properties.KeyID, docID.String())
	props.Set(properties.KeyRev, revID.String())
	return props, nil
}

func (s *exampleStore) Revision(_ context.Context, docID types.DocID, revID types.RevID) (document.RevisionInfo, error) {
	return document.RevisionInfo{DocID: docID, RevID: revID}, nil
}

func (s *exampleStore) Parent(context.Context, types.DocID, types.RevID) (document.RevisionInfo, bool, error) {
	return document.RevisionInfo{}, false, nil
}

func (s *exampleStore) Ancestry(_ context.Context, docID types.DocID, revID types.RevID) ([]document.RevisionInfo, error) {
	return []document.RevisionInfo{{DocID: docID, RevID: revID}}, nil
}

func (s *exampleStore) CurrentRevision(_ context.Context, docID types.DocID) (document.RevisionInfo, bool, error) {
	return document.RevisionInfo{DocID: docID, RevID: s.current}, true, nil
}

func (s *exampleStore) Commit(_ context.Context, req document.CommitRequest) (document.CommitResult, error) {
	if req.ParentID != s.current {
		return document.CommitResult{}, document.ErrConflict
	}
	s.current = s.next

	props := req.Properties.DeepCopy()
	props.Set(properties.KeyRev, s.current.String())
	return document.CommitResult{
		Info:       document.RevisionInfo{DocID: req.DocID, RevID: s.current},
		Properties: props,
	}, nil
}

func (s *exampleStore) OpenAttachment(context.Context, string) (io.ReadCloser, error) {
	return nil, document.ErrAttachmentNotFound
}

func TestExample(t *testing.T) {
	ctx := context.Background()
	store := &exampleStore{current: "1-abc", next: "2-def"}
	doc := document.New(store, "doc1")

	r1, err := doc.CurrentRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.RevID("1-abc"), r1.ID())

	draft, err := r1.CreateDraft(ctx)
	require.NoError(t, err)
	draft.SetUserProperties(map[string]interface{}{"title": "x"})

	r2, err := draft.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.RevID("2-def"), r2.ID())
	assert.Equal(t, "doc1@2-def", r2.String())

	title, ok, err := r2.Property(ctx, "title")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", title)

	stale, err := r1.CreateDraft(ctx)
	require.NoError(t, err)
	_, err = stale.Save(ctx)
	assert.ErrorIs(t, err, document.ErrConflict)
}
