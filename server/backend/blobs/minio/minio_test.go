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

package minio_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/server/backend/blobs"
	"github.com/revdoc/revdoc/server/backend/blobs/minio"
)

func setupStore(t *testing.T) *minio.Store {
	endpoint := os.Getenv("REVDOC_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("REVDOC_MINIO_ENDPOINT is not set")
	}

	store, err := minio.Dial(context.Background(), &minio.Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("REVDOC_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("REVDOC_MINIO_SECRET_KEY"),
		Bucket:    "revdoc-test",
	})
	require.NoError(t, err)
	return store
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	content := []byte(t.Name())
	digest := attachment.Digest(content)

	require.NoError(t, store.Put(ctx, digest, content))

	has, err := store.Has(ctx, digest)
	require.NoError(t, err)
	assert.True(t, has)

	rc, err := store.Get(ctx, digest)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, data)

	info, err := store.Stat(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, digest, info.Digest)

	found := false
	require.NoError(t, store.List(ctx, func(info blobs.Info) error {
		if info.Digest == digest {
			found = true
		}
		return nil
	}))
	assert.True(t, found)

	require.NoError(t, store.Delete(ctx, digest))
	_, err = store.Get(ctx, digest)
	assert.ErrorIs(t, err, blobs.ErrBlobNotFound)
	_, err = store.Stat(ctx, digest)
	assert.ErrorIs(t, err, blobs.ErrBlobNotFound)
}
