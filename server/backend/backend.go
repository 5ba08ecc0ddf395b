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

// Package backend provides the backend of revdoc. It opens the revision
// store and the attachment blob store selected by the configuration and
// keeps the document registry on top of them.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/server/backend/blobs"
	"github.com/revdoc/revdoc/server/backend/blobs/localfs"
	"github.com/revdoc/revdoc/server/backend/blobs/minio"
	"github.com/revdoc/revdoc/server/backend/database"
	memdb "github.com/revdoc/revdoc/server/backend/database/memory"
	"github.com/revdoc/revdoc/server/backend/database/mongo"
	"github.com/revdoc/revdoc/server/backend/database/sqlite"
	"github.com/revdoc/revdoc/server/backend/housekeeping"
	"github.com/revdoc/revdoc/server/logging"
	"github.com/revdoc/revdoc/server/profiling/prometheus"
)

// Backend manages the stores of revdoc and the document registry.
type Backend struct {
	Config *Config

	// Blobs keeps the content of attachments.
	Blobs blobs.Store
	// DB is the revision store, instrumented with Metrics.
	DB database.Database
	// Registry hands out the document handles of DB.
	Registry *document.Registry

	// Housekeeping compacts documents in the background. It is nil when
	// housekeeping is not configured.
	Housekeeping *housekeeping.Housekeeping

	// Metrics is used to expose metrics.
	Metrics *prometheus.Metrics
}

// New creates a new instance of Backend.
func New(
	ctx context.Context,
	conf *Config,
	mongoConf *mongo.Config,
	minioConf *minio.Config,
	housekeepingConf *housekeeping.Config,
	metrics *prometheus.Metrics,
) (*Backend, error) {
	// 01. Open the blob store.
	var blobStore blobs.Store
	switch conf.Blobs {
	case BlobsLocalFS:
		blobStore = localfs.New(nil, conf.BlobsDir)
	case BlobsMinIO:
		store, err := minio.Dial(ctx, minioConf)
		if err != nil {
			return nil, err
		}
		blobStore = store
	default:
		blobStore = localfs.NewInMemory()
	}

	// 02. Open the revision store.
	var db database.Database
	var dbInfo string
	switch conf.Store {
	case StoreSQLite:
		store, err := sqlite.Open(ctx, conf.SQLitePath, blobStore, conf.BodyCacheSize)
		if err != nil {
			return nil, err
		}
		if err := metrics.RegisterCache("sqlite-bodies", store.BodyCacheStats()); err != nil {
			return nil, errors.Join(err, store.Close())
		}
		db, dbInfo = store, conf.SQLitePath
	case StoreMongo:
		if mongoConf == nil {
			return nil, fmt.Errorf("backend: store %q without mongo config", conf.Store)
		}
		client, err := mongo.Dial(mongoConf, blobStore)
		if err != nil {
			return nil, err
		}
		if err := metrics.RegisterCache("mongo-bodies", client.BodyCacheStats()); err != nil {
			return nil, errors.Join(err, client.Close())
		}
		db, dbInfo = client, mongoConf.ConnectionURI
	default:
		store, err := memdb.New(blobStore)
		if err != nil {
			return nil, err
		}
		db, dbInfo = store, StoreMemory
	}
	db = database.Instrument(db, metrics, conf.Store)

	// 03. Create the document registry over the instrumented store.
	registry, err := document.NewRegistry(db, conf.RegistrySize)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	if err := metrics.RegisterCache("documents", registry.CacheStats()); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	// 04. Create the housekeeping instance if configured.
	var housekeeper *housekeeping.Housekeeping
	if housekeepingConf != nil {
		housekeeper, err = housekeeping.New(housekeepingConf, db, blobStore)
		if err != nil {
			return nil, errors.Join(err, db.Close())
		}
	}

	logging.DefaultLogger().Infof("backend created: db: %s, blobs: %s", dbInfo, conf.Blobs)

	return &Backend{
		Config: conf,

		Blobs:    blobStore,
		DB:       db,
		Registry: registry,

		Housekeeping: housekeeper,

		Metrics: metrics,
	}, nil
}

// Start starts the background tasks of the backend.
func (b *Backend) Start() error {
	if b.Housekeeping != nil {
		if err := b.Housekeeping.Start(); err != nil {
			return err
		}
	}

	logging.DefaultLogger().Infof("backend started")
	return nil
}

// Shutdown closes all resources of this instance.
func (b *Backend) Shutdown() error {
	var errs []error

	if b.Housekeeping != nil {
		if err := b.Housekeeping.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.DB.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logging.DefaultLogger().Infof("backend stopped")
	return nil
}
