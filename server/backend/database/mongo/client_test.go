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

package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/server/backend/blobs/localfs"
	"github.com/revdoc/revdoc/server/backend/database/mongo"
	"github.com/revdoc/revdoc/server/backend/database/testcases"
)

func setupTestClient(t *testing.T) *mongo.Client {
	uri := os.Getenv("REVDOC_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("REVDOC_TEST_MONGO_URI is not set")
	}

	config := &mongo.Config{
		ConnectionTimeout: "5s",
		ConnectionURI:     uri,
		Database:          "revdoc-test-" + xid.New().String(),
		PingTimeout:       "5s",
		BodyCacheSize:     16,
	}
	require.NoError(t, config.Validate())

	cli, err := mongo.Dial(config, localfs.NewInMemory())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, cli.Close())
	})

	return cli
}

func TestClient(t *testing.T) {
	cli := setupTestClient(t)

	t.Run("RunCommit test", func(t *testing.T) {
		testcases.RunCommitTest(t, cli)
	})

	t.Run("RunDeletion test", func(t *testing.T) {
		testcases.RunDeletionTest(t, cli)
	})

	t.Run("RunAncestry test", func(t *testing.T) {
		testcases.RunAncestryTest(t, cli)
	})

	t.Run("RunAttachment test", func(t *testing.T) {
		testcases.RunAttachmentTest(t, cli)
	})

	t.Run("RunValidation test", func(t *testing.T) {
		testcases.RunValidationTest(t, cli)
	})

	t.Run("RunCompact test", func(t *testing.T) {
		testcases.RunCompactTest(t, cli)
	})

	t.Run("RunConcurrentCommit test", func(t *testing.T) {
		testcases.RunConcurrentCommitTest(t, cli)
	})

	t.Run("RunListDocInfos test", func(t *testing.T) {
		testcases.RunListDocInfosTest(t, cli)
	})

	t.Run("compact during commit test", func(t *testing.T) {
		ctx := context.Background()
		docID := types.DocID("compact$" + xid.New().String())

		commit := func(parentID types.RevID, n int) document.CommitResult {
			result, err := cli.Commit(ctx, document.CommitRequest{
				DocID:       docID,
				ParentID:    parentID,
				Properties:  properties.FromMap(map[string]interface{}{"n": n}),
				Attachments: attachment.NewStage(),
			})
			require.NoError(t, err)
			return result
		}
		r1 := commit(types.NoRevision, 1)
		r2 := commit(r1.Info.RevID, 2)

		var r3 document.CommitResult
		mongo.SetAfterCompactHeadRead(cli, func() {
			r3 = commit(r2.Info.RevID, 3)
		})
		n, err := cli.Compact(ctx, docID)
		mongo.SetAfterCompactHeadRead(cli, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		current, ok, err := cli.CurrentRevision(ctx, docID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, r3.Info.RevID, current.RevID)

		body, err := cli.LoadBody(ctx, docID, r3.Info.RevID)
		require.NoError(t, err)
		assert.True(t, r3.Properties.Equal(body))
		_, err = cli.LoadBody(ctx, docID, r1.Info.RevID)
		assert.ErrorIs(t, err, document.ErrBodyNotFound)
	})

	t.Run("body cache test", func(t *testing.T) {
		ctx := context.Background()
		docID := types.DocID("cache$" + xid.New().String())

		result, err := cli.Commit(ctx, document.CommitRequest{
			DocID:       docID,
			ParentID:    types.NoRevision,
			Properties:  properties.FromMap(map[string]interface{}{"n": 1}),
			Attachments: attachment.NewStage(),
		})
		require.NoError(t, err)

		hits := cli.BodyCacheStats().Hits()
		body, err := cli.LoadBody(ctx, docID, result.Info.RevID)
		require.NoError(t, err)
		assert.True(t, result.Properties.Equal(body))
		assert.Equal(t, hits+1, cli.BodyCacheStats().Hits())
	})
}
