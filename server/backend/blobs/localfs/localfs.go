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

// Package localfs implements the blob store on a local file system.
package localfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/revdoc/revdoc/server/backend/blobs"
)

// Store keeps each blob in its own file under the root of fs.
type Store struct {
	fs afero.Fs
}

// New creates a blob store on fs. A nil fs stores blobs under dir on the
// OS file system.
func New(fs afero.Fs, dir string) *Store {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), dir)
	}
	return &Store{fs: fs}
}

// NewInMemory creates a blob store that keeps blobs in memory.
func NewInMemory() *Store {
	return &Store{fs: afero.NewMemMapFs()}
}

// Put stores content under digest.
func (s *Store) Put(ctx context.Context, digest string, content []byte) error {
	key, err := blobs.Key(digest)
	if err != nil {
		return err
	}

	has, err := s.Has(ctx, digest)
	if err != nil {
		return err
	}
	if has {
		now := time.Now()
		if err := s.fs.Chtimes(key, now, now); err != nil {
			return fmt.Errorf("touch blob %s: %w", digest, err)
		}
		return nil
	}

	if err := s.fs.MkdirAll(path.Dir(key), 0o700); err != nil {
		return fmt.Errorf("ensure directory of %s: %w", digest, err)
	}

	// write to a temporary file first so that a blob is never seen half written
	tmp := key + ".tmp"
	if err := afero.WriteReader(s.fs, tmp, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("write blob %s: %w", digest, err)
	}
	if err := s.fs.Rename(tmp, key); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename blob %s: %w", digest, err)
	}
	return nil
}

// Get opens the content stored under digest.
func (s *Store) Get(_ context.Context, digest string) (io.ReadCloser, error) {
	key, err := blobs.Key(digest)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(key)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", digest, blobs.ErrBlobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", digest, err)
	}
	return f, nil
}

// Has returns whether content is stored under digest.
func (s *Store) Has(_ context.Context, digest string) (bool, error) {
	key, err := blobs.Key(digest)
	if err != nil {
		return false, err
	}

	fi, err := s.fs.Stat(key)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob %s: %w", digest, err)
	}
	return !fi.IsDir(), nil
}

// Stat returns the info of the blob stored under digest.
func (s *Store) Stat(_ context.Context, digest string) (blobs.Info, error) {
	key, err := blobs.Key(digest)
	if err != nil {
		return blobs.Info{}, err
	}

	fi, err := s.fs.Stat(key)
	if os.IsNotExist(err) || (err == nil && fi.IsDir()) {
		return blobs.Info{}, fmt.Errorf("%s: %w", digest, blobs.ErrBlobNotFound)
	}
	if err != nil {
		return blobs.Info{}, fmt.Errorf("stat blob %s: %w", digest, err)
	}
	return blobs.Info{Digest: digest, ModTime: fi.ModTime()}, nil
}

// List calls fn with the info of every stored blob. Blobs are laid out as
// "<algorithm>/<hash>", so it reads two levels of directories.
func (s *Store) List(ctx context.Context, fn func(info blobs.Info) error) error {
	algorithms, err := afero.ReadDir(s.fs, ".")
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list blobs: %w", err)
	}

	for _, algorithm := range algorithms {
		if !algorithm.IsDir() {
			continue
		}
		files, err := afero.ReadDir(s.fs, algorithm.Name())
		if err != nil {
			return fmt.Errorf("list blobs of %s: %w", algorithm.Name(), err)
		}

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if file.IsDir() || strings.HasSuffix(file.Name(), ".tmp") {
				continue
			}

			digest, err := blobs.DigestOf(algorithm.Name() + "/" + file.Name())
			if err != nil {
				continue
			}
			if err := fn(blobs.Info{Digest: digest, ModTime: file.ModTime()}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete removes the content stored under digest.
func (s *Store) Delete(_ context.Context, digest string) error {
	key, err := blobs.Key(digest)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %s: %w", digest, err)
	}
	return nil
}
