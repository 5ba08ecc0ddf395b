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

package client

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the timeout of a request when none is configured.
const DefaultTimeout = 30 * time.Second

// Option configures Options.
type Option func(*Options)

// Options configures how we set up the client.
type Options struct {
	// Timeout bounds every request made by the client.
	Timeout time.Duration

	// HTTPClient replaces the HTTP client used to reach the server.
	HTTPClient *http.Client

	// Logger is the Logger of the client.
	Logger *zap.Logger
}

// WithTimeout configures the request timeout of the client.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.Timeout = timeout }
}

// WithHTTPClient configures the HTTP client of the client.
func WithHTTPClient(cli *http.Client) Option {
	return func(o *Options) { o.HTTPClient = cli }
}

// WithLogger configures the Logger of the client.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}
