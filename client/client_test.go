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

package client_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/adaptor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/revdoc/revdoc/client"
	"github.com/revdoc/revdoc/pkg/errors"
	"github.com/revdoc/revdoc/server/backend"
	"github.com/revdoc/revdoc/server/profiling/prometheus"
	"github.com/revdoc/revdoc/server/rpc"
)

func setupClient(t *testing.T) *client.Client {
	metrics, err := prometheus.NewMetrics()
	require.NoError(t, err)

	be, err := backend.New(context.Background(), &backend.Config{
		Store:        backend.StoreMemory,
		Blobs:        backend.BlobsMemory,
		RegistrySize: 16,
	}, nil, nil, nil, metrics)
	require.NoError(t, err)

	srv, err := rpc.NewServer(&rpc.Config{
		Port:            8080,
		MaxRequestBytes: 1 << 20,
		ReadTimeout:     "5s",
	}, be)
	require.NoError(t, err)

	ts := httptest.NewServer(adaptor.FiberApp(srv.App()))
	t.Cleanup(func() {
		ts.Close()
		assert.NoError(t, be.Shutdown())
	})

	cli, err := client.New(ts.URL, client.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(cli.Close)
	return cli
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("document lifecycle test", func(t *testing.T) {
		cli := setupClient(t)

		first, err := cli.PutDocument(ctx, "doc1", "", map[string]interface{}{"title": "hello"})
		require.NoError(t, err)
		assert.True(t, first.OK)
		assert.True(t, strings.HasPrefix(first.Rev, "1-"))

		second, err := cli.PutDocument(ctx, "doc1", first.Rev, map[string]interface{}{"title": "world"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(second.Rev, "2-"))

		body, err := cli.GetDocument(ctx, "doc1", "")
		require.NoError(t, err)
		assert.Equal(t, "world", body["title"])
		assert.Equal(t, second.Rev, body["_rev"])

		old, err := cli.GetDocument(ctx, "doc1", first.Rev)
		require.NoError(t, err)
		assert.Equal(t, "hello", old["title"])

		_, err = cli.PutDocument(ctx, "doc1", first.Rev, map[string]interface{}{"title": "stale"})
		assert.True(t, client.IsConflict(err))
		assert.True(t, errors.IsStatus(err, errors.ErrCodeFailedPrecondition))

		history, err := cli.History(ctx, "doc1", "")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, first.Rev, history[0].Rev)
		assert.Equal(t, second.Rev, history[1].Rev)

		docs, err := cli.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "doc1", docs[0].ID)
		assert.Equal(t, 2, docs[0].Generation)

		compacted, err := cli.Compact(ctx, "doc1")
		require.NoError(t, err)
		assert.Equal(t, 1, compacted)

		deleted, err := cli.DeleteDocument(ctx, "doc1", second.Rev)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(deleted.Rev, "3-"))

		_, err = cli.GetDocument(ctx, "doc1", "")
		assert.True(t, client.IsNotFound(err))
		assert.Equal(t, "ErrDocumentNotFound", errors.CodeOf(err))
	})

	t.Run("attachment test", func(t *testing.T) {
		cli := setupClient(t)

		saved, err := cli.PutDocument(ctx, "doc2", "", map[string]interface{}{"n": 1})
		require.NoError(t, err)

		withAtt, err := cli.PutAttachment(ctx, "doc2", saved.Rev, "notes", "text/plain", strings.NewReader("hello"))
		require.NoError(t, err)

		rc, contentType, err := cli.GetAttachment(ctx, "doc2", "", "notes")
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.NoError(t, rc.Close())
		assert.Equal(t, "hello", string(content))
		assert.Equal(t, "text/plain", contentType)

		without, err := cli.DeleteAttachment(ctx, "doc2", withAtt.Rev, "notes")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(without.Rev, "3-"))

		_, _, err = cli.GetAttachment(ctx, "doc2", "", "notes")
		assert.True(t, client.IsNotFound(err))

		_, err = cli.DeleteAttachment(ctx, "doc2", "", "notes")
		assert.True(t, errors.IsStatus(err, errors.ErrCodeInvalidArgument))
	})

	t.Run("unreachable server test", func(t *testing.T) {
		cli, err := client.New("localhost:1", client.WithLogger(zap.NewNop()))
		require.NoError(t, err)

		_, err = cli.ListDocuments(ctx)
		assert.ErrorIs(t, err, client.ErrUnreachable)
		assert.True(t, errors.IsServerError(err))
	})
}
