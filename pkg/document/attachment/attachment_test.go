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

package attachment_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/document/properties"
)

type trackingReader struct {
	io.Reader
	closed   bool
	closeErr error
}

func (r *trackingReader) Close() error {
	r.closed = true
	return r.closeErr
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestNew(t *testing.T) {
	t.Run("read and close stream test", func(t *testing.T) {
		r := &trackingReader{Reader: strings.NewReader("hello")}
		att, err := attachment.New("text/plain", r)
		require.NoError(t, err)

		assert.True(t, r.closed)
		assert.Equal(t, []byte("hello"), att.Content())
		assert.Equal(t, int64(5), att.Length())
		assert.Equal(t, "sha1-qvTGHdzF6KLavt4PO0gs2a6pQ00=", att.Digest())
		assert.Equal(t, "text/plain", att.ContentType)
	})

	t.Run("close stream on read failure test", func(t *testing.T) {
		r := &trackingReader{Reader: failingReader{}}
		_, err := attachment.New("text/plain", r)

		assert.ErrorIs(t, err, attachment.ErrIO)
		assert.True(t, r.closed)
	})

	t.Run("close failure does not mask result test", func(t *testing.T) {
		r := &trackingReader{Reader: strings.NewReader("x"), closeErr: errors.New("close failed")}
		att, err := attachment.New("", r)

		require.NoError(t, err)
		assert.Equal(t, attachment.DefaultContentType, att.ContentType)
	})
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch http url test", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		}))
		defer srv.Close()

		att, err := attachment.Fetch(ctx, "", srv.URL+"/a.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", att.ContentType)
		assert.Equal(t, []byte("png-bytes"), att.Content())
	})

	t.Run("fetch failure is immediate test", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		_, err := attachment.Fetch(ctx, "text/plain", srv.URL+"/missing")
		assert.ErrorIs(t, err, attachment.ErrIO)
	})

	t.Run("fetch file url test", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"n":1}`), 0o600))

		att, err := attachment.Fetch(ctx, "", "file://"+filepath.ToSlash(path))
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"n":1}`), att.Content())
		assert.Equal(t, "application/json", att.ContentType)

		_, err = attachment.Fetch(ctx, "", "file://"+filepath.ToSlash(path)+".missing")
		assert.ErrorIs(t, err, attachment.ErrIO)
	})

	t.Run("unsupported scheme test", func(t *testing.T) {
		_, err := attachment.Fetch(ctx, "", "ftp://example.com/a")
		assert.ErrorIs(t, err, attachment.ErrUnsupportedURL)
	})
}

func TestStage(t *testing.T) {
	stage := attachment.NewStage()
	a := attachment.NewFromBytes("text/plain", []byte("a"))
	b := attachment.NewFromBytes("text/plain", []byte("b"))

	stage.Put("x", a)
	stage.Put("x", b)
	stage.Delete("y")

	e, ok := stage.Get("x")
	require.True(t, ok)
	assert.Equal(t, attachment.KindPut, e.Kind())
	assert.Same(t, b, e.Attachment())

	e, ok = stage.Get("y")
	require.True(t, ok)
	assert.True(t, e.IsTombstone())
	assert.Nil(t, e.Attachment())

	clone := stage.Clone()
	clone.Delete("x")
	e, _ = stage.Get("x")
	assert.False(t, e.IsTombstone())

	assert.Equal(t, []string{"x", "y"}, stage.Names())
	assert.Equal(t, 2, stage.Len())
}

func TestStubs(t *testing.T) {
	props := properties.New()
	stubs, err := attachment.Stubs(props)
	require.NoError(t, err)
	assert.Empty(t, stubs)

	att := attachment.NewFromBytes("text/plain", []byte("abc"))
	attachment.SetStubs(props, map[string]attachment.Stub{"a.txt": attachment.StubOf(att, 2)})

	data, err := props.MarshalJSON()
	require.NoError(t, err)
	decoded := properties.New()
	require.NoError(t, decoded.UnmarshalJSON(data))

	stubs, err = attachment.Stubs(decoded)
	require.NoError(t, err)
	assert.Equal(t, attachment.Stub{
		ContentType: "text/plain",
		Digest:      att.Digest(),
		Length:      3,
		RevPos:      2,
	}, stubs["a.txt"])

	attachment.SetStubs(props, nil)
	assert.False(t, props.Has(properties.KeyAttachments))

	props.Set(properties.KeyAttachments, map[string]interface{}{"bad": "stub"})
	_, err = attachment.Stubs(props)
	assert.ErrorIs(t, err, attachment.ErrInvalidStub)
}
