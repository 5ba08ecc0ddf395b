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

// Package server provides the revdoc server which is the main entry point of
// the system. It assembles the backend and serves the HTTP API over it.
package server

import (
	"context"
	gosync "sync"

	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/server/backend"
	"github.com/revdoc/revdoc/server/logging"
	"github.com/revdoc/revdoc/server/profiling/prometheus"
	"github.com/revdoc/revdoc/server/rpc"
)

// Revdoc is a server of revdoc. It stores revisions of documents and
// serves them over HTTP.
type Revdoc struct {
	lock gosync.Mutex

	conf      *Config
	backend   *backend.Backend
	rpcServer *rpc.Server

	shutdown   bool
	shutdownCh chan struct{}
}

// New creates a new instance of Revdoc.
func New(conf *Config) (*Revdoc, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	metrics, err := prometheus.NewMetrics()
	if err != nil {
		return nil, err
	}

	be, err := backend.New(
		context.Background(),
		conf.Backend,
		conf.Mongo,
		conf.MinIO,
		conf.Housekeeping,
		metrics,
	)
	if err != nil {
		return nil, err
	}

	rpcServer, err := rpc.NewServer(conf.RPC, be)
	if err != nil {
		if shutdownErr := be.Shutdown(); shutdownErr != nil {
			logging.DefaultLogger().Warnf("shutdown backend: %v", shutdownErr)
		}
		return nil, err
	}

	return &Revdoc{
		conf:       conf,
		backend:    be,
		rpcServer:  rpcServer,
		shutdownCh: make(chan struct{}),
	}, nil
}

// Start starts the server by opening the rpc port.
func (r *Revdoc) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.backend.Start(); err != nil {
		return err
	}

	return r.rpcServer.Start()
}

// Shutdown shuts down this revdoc server.
func (r *Revdoc) Shutdown(graceful bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.shutdown {
		return nil
	}

	r.rpcServer.Shutdown(graceful)

	if err := r.backend.Shutdown(); err != nil {
		return err
	}

	close(r.shutdownCh)
	r.shutdown = true
	return nil
}

// ShutdownCh returns the shutdown channel.
func (r *Revdoc) ShutdownCh() <-chan struct{} {
	return r.shutdownCh
}

// RPCAddr returns the address of the RPC.
func (r *Revdoc) RPCAddr() string {
	return r.conf.RPCAddr()
}

// Registry returns the document registry. It is used for testing.
func (r *Revdoc) Registry() *document.Registry {
	return r.backend.Registry
}

// CompactDocument drops the bodies of the old revisions of the given
// document. It is used for testing.
func (r *Revdoc) CompactDocument(ctx context.Context, id string) (int, error) {
	doc, err := r.backend.Registry.ExistingDocument(ctx, id)
	if err != nil {
		return 0, err
	}

	return r.backend.DB.Compact(ctx, doc.ID())
}
