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

// Package attachment provides attachments of document revisions and the
// Stage of attachment mutations that a draft applies at save time.
package attachment

import (
	"bytes"
	"context"
	"crypto/sha1" // #nosec G505 digests are content addresses, not signatures
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/revdoc/revdoc/pkg/errors"
	"github.com/revdoc/revdoc/server/logging"
)

// DefaultContentType is used when neither the caller nor the source tells
// the content type.
const DefaultContentType = "application/octet-stream"

var (
	// ErrIO is returned when an attachment stream or URL cannot be read.
	ErrIO = errors.Unavailable("attachment content unavailable").WithCode("ErrAttachmentIO")

	// ErrUnsupportedURL is returned when an attachment URL has a scheme that
	// cannot be fetched.
	ErrUnsupportedURL = errors.InvalidArgument("unsupported attachment url").WithCode("ErrUnsupportedURL")

	// ErrInvalidStub is returned when "_attachments" metadata is malformed.
	ErrInvalidStub = errors.InvalidArgument("invalid attachment stub").WithCode("ErrInvalidStub")
)

// FetchClient is the HTTP client used to fetch attachments from URLs.
var FetchClient = &http.Client{Timeout: 30 * time.Second}

// Attachment is a named binary blob. A new attachment carries its content in
// memory until the revision that stages it is saved.
type Attachment struct {
	ContentType string
	content     []byte
	digest      string
}

// NewFromBytes creates an attachment holding a copy of content.
func NewFromBytes(contentType string, content []byte) *Attachment {
	if contentType == "" {
		contentType = DefaultContentType
	}
	content = slices.Clone(content)
	return &Attachment{
		ContentType: contentType,
		content:     content,
		digest:      Digest(content),
	}
}

// New creates an attachment by reading r to the end. r is closed on every
// path; a failure to close it is logged and does not affect the result.
func New(contentType string, r io.ReadCloser) (*Attachment, error) {
	defer func() {
		if err := r.Close(); err != nil {
			logging.DefaultLogger().Warnf("close attachment stream: %v", err)
		}
	}()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("read attachment stream: %w: %w", ErrIO, err)
	}

	return NewFromBytes(contentType, buf.Bytes()), nil
}

// Fetch creates an attachment from the content of the given URL. The content
// is fetched before Fetch returns. http, https and file URLs are supported.
// An empty contentType is taken from the response or the file extension.
func Fetch(ctx context.Context, contentType string, rawURL string) (*Attachment, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w: %w", rawURL, ErrUnsupportedURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return fetchHTTP(ctx, contentType, u)
	case "file":
		return fetchFile(contentType, u)
	default:
		logging.From(ctx).Errorf("open stream for url %s: unsupported scheme", rawURL)
		return nil, fmt.Errorf("fetch %q: %w", rawURL, ErrUnsupportedURL)
	}
}

func fetchHTTP(ctx context.Context, contentType string, u *url.URL) (*Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", u, ErrUnsupportedURL, err)
	}

	resp, err := FetchClient.Do(req)
	if err != nil {
		logging.From(ctx).Errorf("open stream for url %s: %v", u, err)
		return nil, fmt.Errorf("fetch %s: %w: %w", u, ErrIO, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if err := resp.Body.Close(); err != nil {
			logging.From(ctx).Warnf("close response of %s: %v", u, err)
		}
		logging.From(ctx).Errorf("open stream for url %s: status %d", u, resp.StatusCode)
		return nil, fmt.Errorf("fetch %s: status %d: %w", u, resp.StatusCode, ErrIO)
	}

	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return New(contentType, resp.Body)
}

func fetchFile(contentType string, u *url.URL) (*Attachment, error) {
	path := filepath.FromSlash(u.Path)
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		logging.DefaultLogger().Errorf("open stream for url %s: %v", u, err)
		return nil, fmt.Errorf("fetch %s: %w: %w", u, ErrIO, err)
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	return New(contentType, f)
}

// Content returns the content of the attachment.
func (a *Attachment) Content() []byte {
	return a.content
}

// Length returns the length of the content in bytes.
func (a *Attachment) Length() int64 {
	return int64(len(a.content))
}

// Digest returns the content address of the attachment.
func (a *Attachment) Digest() string {
	return a.digest
}

// Reader returns a reader over the content.
func (a *Attachment) Reader() io.Reader {
	return bytes.NewReader(a.content)
}

// Digest returns the content address of content: "sha1-" followed by the
// base64 encoded SHA-1 of the bytes.
func Digest(content []byte) string {
	sum := sha1.Sum(content) // #nosec G401
	return "sha1-" + base64.StdEncoding.EncodeToString(sum[:])
}
