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

// Package client provides a client of the revdoc HTTP API. The CLI uses it
// to reach a running server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/revdoc/revdoc/pkg/errors"
)

// DocumentSummary describes the head of a document.
type DocumentSummary struct {
	ID         string    `json:"id" yaml:"id"`
	Rev        string    `json:"rev" yaml:"rev"`
	Generation int       `json:"generation" yaml:"generation"`
	Deleted    bool      `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// RevisionSummary describes one revision in the history of a document.
type RevisionSummary struct {
	Rev      string `json:"rev" yaml:"rev"`
	Sequence int64  `json:"seq" yaml:"seq"`
	Deleted  bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// SaveResult is the answer of a write.
type SaveResult struct {
	OK  bool   `json:"ok" yaml:"ok"`
	ID  string `json:"id" yaml:"id"`
	Rev string `json:"rev" yaml:"rev"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Client is a client of the revdoc API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates an instance of Client for the server at addr, either a
// "host:port" pair or a full URL.
func New(addr string, opts ...Option) (*Client, error) {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	baseURL := addr
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse address %q: %w", addr, err)
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		timeout := options.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := options.Logger
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("new logger: %w", err)
		}
		logger = l
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Close releases the idle connections of the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
	_ = c.logger.Sync()
}

// ListDocuments returns the heads of every document of the server.
func (c *Client) ListDocuments(ctx context.Context) ([]*DocumentSummary, error) {
	var docs []*DocumentSummary
	if err := c.do(ctx, http.MethodGet, c.docPath(""), nil, "", nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// GetDocument returns the body of the given revision of a document, or of
// its current revision if rev is empty.
func (c *Client) GetDocument(ctx context.Context, id, rev string) (map[string]interface{}, error) {
	var body map[string]interface{}
	if err := c.do(ctx, http.MethodGet, c.docPath(id), revQuery(rev), "", nil, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// PutDocument saves body as a new revision of a document. A non-empty rev
// names the parent revision and overrides any "_rev" of body.
func (c *Client) PutDocument(ctx context.Context, id, rev string, body map[string]interface{}) (*SaveResult, error) {
	payload := make(map[string]interface{}, len(body)+1)
	for k, v := range body {
		payload[k] = v
	}
	if rev != "" {
		payload["_rev"] = rev
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", id, err)
	}

	result := &SaveResult{}
	if err := c.do(
		ctx,
		http.MethodPut,
		c.docPath(id),
		nil,
		"application/json",
		bytes.NewReader(encoded),
		result,
	); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteDocument saves a deletion on top of the given revision.
func (c *Client) DeleteDocument(ctx context.Context, id, rev string) (*SaveResult, error) {
	result := &SaveResult{}
	if err := c.do(ctx, http.MethodDelete, c.docPath(id), revQuery(rev), "", nil, result); err != nil {
		return nil, err
	}
	return result, nil
}

// History returns the lineage of the given revision, oldest first.
func (c *Client) History(ctx context.Context, id, rev string) ([]*RevisionSummary, error) {
	var history []*RevisionSummary
	if err := c.do(ctx, http.MethodGet, c.docPath(id)+"/history", revQuery(rev), "", nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// Compact drops the bodies of the old revisions of a document and returns
// how many were dropped.
func (c *Client) Compact(ctx context.Context, id string) (int, error) {
	var resp struct {
		Compacted int `json:"compacted"`
	}
	if err := c.do(ctx, http.MethodPost, c.docPath(id)+"/compact", nil, "", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Compacted, nil
}

// PutAttachment saves a new revision on top of rev carrying content as the
// named attachment.
func (c *Client) PutAttachment(
	ctx context.Context,
	id, rev, name, contentType string,
	content io.Reader,
) (*SaveResult, error) {
	result := &SaveResult{}
	if err := c.do(
		ctx,
		http.MethodPut,
		c.attachmentPath(id, name),
		revQuery(rev),
		contentType,
		content,
		result,
	); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAttachment returns the content of the named attachment and its content
// type. The caller closes the content.
func (c *Client) GetAttachment(ctx context.Context, id, rev, name string) (io.ReadCloser, string, error) {
	resp, err := c.send(ctx, http.MethodGet, c.attachmentPath(id, name), revQuery(rev), "", nil)
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// DeleteAttachment saves a new revision on top of rev without the named
// attachment.
func (c *Client) DeleteAttachment(ctx context.Context, id, rev, name string) (*SaveResult, error) {
	result := &SaveResult{}
	if err := c.do(ctx, http.MethodDelete, c.attachmentPath(id, name), revQuery(rev), "", nil, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) docPath(id string) string {
	if id == "" {
		return "/docs"
	}
	return "/docs/" + url.PathEscape(id)
}

func (c *Client) attachmentPath(id, name string) string {
	return c.docPath(id) + "/attachments/" + url.PathEscape(name)
}

func revQuery(rev string) url.Values {
	if rev == "" {
		return nil
	}
	return url.Values{"rev": []string{rev}}
}

// do sends a request and decodes the JSON answer into out.
func (c *Client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	contentType string,
	body io.Reader,
	out interface{},
) error {
	resp, err := c.send(ctx, method, path, query, contentType, body)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("close response body", zap.Error(err))
		}
	}()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send sends a request and returns the response of a successful one. A
// failed request is turned into a StatusError carrying the error code of
// the server.
func (c *Client) send(
	ctx context.Context,
	method, path string,
	query url.Values,
	contentType string,
	body io.Reader,
) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("new request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %s: %w", method, path, err.Error(), ErrUnreachable)
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("close response body", zap.Error(err))
		}
	}()

	errResp := errorResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		errResp.Reason = resp.Status
	}
	c.logger.Debug("request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("code", errResp.Error),
	)
	return nil, toStatusError(resp.StatusCode, errResp)
}

// ErrUnreachable is returned when the server cannot be reached.
var ErrUnreachable = errors.Unavailable("server unreachable").WithCode("ErrUnreachable")

// toStatusError maps an HTTP failure back to the status it was answered
// for.
func toStatusError(httpStatus int, resp errorResponse) error {
	reason := resp.Reason
	if reason == "" {
		reason = http.StatusText(httpStatus)
	}

	var err errors.StatusError
	switch httpStatus {
	case http.StatusBadRequest:
		err = errors.InvalidArgument(reason)
	case http.StatusNotFound:
		err = errors.NotFound(reason)
	case http.StatusConflict:
		err = errors.AlreadyExists(reason)
	case http.StatusPreconditionFailed:
		err = errors.FailedPrecond(reason)
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		err = errors.Unavailable(reason)
	default:
		err = errors.Internal(reason)
	}

	if resp.Error != "" {
		return err.WithCode(resp.Error)
	}
	return err
}

// IsConflict returns whether err reports a stale parent revision.
func IsConflict(err error) bool {
	return errors.CodeOf(err) == "ErrConflict"
}

// IsNotFound returns whether err reports a missing document, revision or
// attachment.
func IsNotFound(err error) bool {
	return errors.IsStatus(err, errors.ErrCodeNotFound)
}
