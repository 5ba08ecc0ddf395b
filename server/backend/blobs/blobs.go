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

// Package blobs provides the content-addressed storage of attachment
// content. Blobs are keyed by the digest of their content and never change
// once written.
package blobs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/revdoc/revdoc/pkg/errors"
)

var (
	// ErrBlobNotFound is returned when no blob is stored under a digest.
	ErrBlobNotFound = errors.NotFound("blob not found").WithCode("ErrBlobNotFound")

	// ErrInvalidDigest is returned when a digest cannot be used as a key.
	ErrInvalidDigest = errors.InvalidArgument("invalid digest").WithCode("ErrInvalidDigest")
)

// Info describes a stored blob.
type Info struct {
	Digest string

	// ModTime is when the blob was last put.
	ModTime time.Time
}

// Store stores attachment content by digest.
type Store interface {
	// Put stores content under digest. Storing a digest twice keeps the
	// content and refreshes its modification time.
	Put(ctx context.Context, digest string, content []byte) error

	// Get opens the content stored under digest. The caller must close it.
	Get(ctx context.Context, digest string) (io.ReadCloser, error)

	// Has returns whether content is stored under digest.
	Has(ctx context.Context, digest string) (bool, error)

	// Stat returns the info of the blob stored under digest, or
	// ErrBlobNotFound.
	Stat(ctx context.Context, digest string) (Info, error)

	// List calls fn with the info of every stored blob. It stops at the
	// first error fn returns.
	List(ctx context.Context, fn func(info Info) error) error

	// Delete removes the content stored under digest, if any.
	Delete(ctx context.Context, digest string) error
}

var (
	keyReplacer    = strings.NewReplacer("/", "_", "+", "-", "=", "")
	digestReplacer = strings.NewReplacer("_", "/", "-", "+")
)

// Key returns the storage key of digest: "<algorithm>/<url-safe hash>".
func Key(digest string) (string, error) {
	algorithm, hash, ok := strings.Cut(digest, "-")
	if !ok || algorithm == "" || hash == "" || strings.ContainsAny(algorithm, "/.") {
		return "", fmt.Errorf("%q: %w", digest, ErrInvalidDigest)
	}
	return algorithm + "/" + keyReplacer.Replace(hash), nil
}

// DigestOf returns the digest stored under key. It reverses Key.
func DigestOf(key string) (string, error) {
	algorithm, hash, ok := strings.Cut(key, "/")
	if !ok || algorithm == "" || hash == "" || strings.Contains(hash, "/") {
		return "", fmt.Errorf("key %q: %w", key, ErrInvalidDigest)
	}

	hash = digestReplacer.Replace(hash)
	if rem := len(hash) % 4; rem != 0 {
		hash += strings.Repeat("=", 4-rem)
	}
	return algorithm + "-" + hash, nil
}
