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

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/server/backend/blobs/localfs"
	"github.com/revdoc/revdoc/server/backend/database/sqlite"
	"github.com/revdoc/revdoc/server/backend/database/testcases"
)

func setupTestDB(t *testing.T, path string) *sqlite.DB {
	db, err := sqlite.Open(context.Background(), path, localfs.NewInMemory(), 16)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, db.Close())
	})
	return db
}

func TestDB(t *testing.T) {
	db := setupTestDB(t, filepath.Join(t.TempDir(), "revdoc.db"))

	t.Run("RunCommit test", func(t *testing.T) {
		testcases.RunCommitTest(t, db)
	})

	t.Run("RunDeletion test", func(t *testing.T) {
		testcases.RunDeletionTest(t, db)
	})

	t.Run("RunAncestry test", func(t *testing.T) {
		testcases.RunAncestryTest(t, db)
	})

	t.Run("RunAttachment test", func(t *testing.T) {
		testcases.RunAttachmentTest(t, db)
	})

	t.Run("RunValidation test", func(t *testing.T) {
		testcases.RunValidationTest(t, db)
	})

	t.Run("RunCompact test", func(t *testing.T) {
		testcases.RunCompactTest(t, db)
	})

	t.Run("RunConcurrentCommit test", func(t *testing.T) {
		testcases.RunConcurrentCommitTest(t, db)
	})

	t.Run("RunListDocInfos test", func(t *testing.T) {
		testcases.RunListDocInfosTest(t, db)
	})
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "revdoc.db")
	blobStore := localfs.NewInMemory()
	docID := types.DocID("reopen$" + xid.New().String())

	db, err := sqlite.Open(ctx, path, blobStore, 16)
	require.NoError(t, err)

	props := properties.New()
	props.Set(properties.KeyID, docID.String())
	props.Set("title", "persisted")
	stage := attachment.NewStage()
	stage.Put("note.txt", attachment.NewFromBytes("text/plain", []byte("hello")))

	result, err := db.Commit(ctx, document.CommitRequest{
		DocID:       docID,
		Properties:  props,
		Attachments: stage,
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// the schema is migrated once and the rows survive
	db = setupTestDB(t, path)
	db2, err := sqlite.Open(ctx, path, blobStore, 16)
	require.NoError(t, err)
	require.NoError(t, db2.Close())

	info, ok, err := db.CurrentRevision(ctx, docID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.Info, info)

	body, err := db.LoadBody(ctx, docID, info.RevID)
	require.NoError(t, err)
	title, _ := body.Get("title")
	assert.Equal(t, "persisted", title)

	stubs, err := attachment.Stubs(body)
	require.NoError(t, err)
	require.Contains(t, stubs, "note.txt")
	assert.Equal(t, int64(5), stubs["note.txt"].Length)
}

func TestBodyCache(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t, sqlite.InMemoryPath)
	docID := types.DocID("cache$" + xid.New().String())

	props := properties.New()
	props.Set(properties.KeyID, docID.String())
	result, err := db.Commit(ctx, document.CommitRequest{DocID: docID, Properties: props})
	require.NoError(t, err)

	_, err = db.LoadBody(ctx, docID, result.Info.RevID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), db.BodyCacheStats().Hits())

	_, err = db.Compact(ctx, docID)
	require.NoError(t, err)
	_, err = db.LoadBody(ctx, docID, result.Info.RevID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), db.BodyCacheStats().Hits())
}
