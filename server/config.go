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

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/revdoc/revdoc/internal/validation"
	"github.com/revdoc/revdoc/server/backend"
	"github.com/revdoc/revdoc/server/backend/blobs/minio"
	"github.com/revdoc/revdoc/server/backend/database/mongo"
	"github.com/revdoc/revdoc/server/backend/housekeeping"
	"github.com/revdoc/revdoc/server/rpc"
)

// Below are the values of the default values of revdoc config.
const (
	DefaultRPCPort            = 5984
	DefaultRPCMaxRequestBytes = 16 << 20
	DefaultRPCReadTimeout     = 30 * time.Second

	DefaultStore         = backend.StoreSQLite
	DefaultSQLitePath    = "revdoc.db"
	DefaultBodyCacheSize = 1000
	DefaultBlobs         = backend.BlobsLocalFS
	DefaultBlobsDir      = "revdoc-blobs"
	DefaultRegistrySize  = 1000

	DefaultHousekeepingInterval                = 30 * time.Second
	DefaultHousekeepingCompactionMinGeneration = 10
	DefaultHousekeepingDocumentFetchSize       = 100
	DefaultHousekeepingBlobGracePeriod         = housekeeping.DefaultBlobGracePeriod

	DefaultMongoConnectionURI                = "mongodb://localhost:27017"
	DefaultMongoConnectionTimeout            = 5 * time.Second
	DefaultMongoPingTimeout                  = 5 * time.Second
	DefaultMongoDatabase                     = mongo.DefaultDatabase
	DefaultMongoMonitoringSlowQueryThreshold = 100 * time.Millisecond

	DefaultMinIOBucket = minio.DefaultBucket
)

// Config is the configuration for creating a revdoc server.
type Config struct {
	RPC          *rpc.Config          `yaml:"RPC"`
	Housekeeping *housekeeping.Config `yaml:"Housekeeping"`
	Backend      *backend.Config      `yaml:"Backend"`
	Mongo        *mongo.Config        `yaml:"Mongo"`
	MinIO        *minio.Config        `yaml:"MinIO"`
}

// NewConfig returns a Config struct that contains reasonable defaults
// for most of the configurations.
func NewConfig() *Config {
	return newConfig(DefaultRPCPort)
}

// NewConfigFromFile returns a Config struct for the given conf file.
func NewConfigFromFile(path string) (*Config, error) {
	conf := &Config{}
	bytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err = yaml.Unmarshal(bytes, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	conf.ensureDefaultValue()
	return conf, nil
}

// RPCAddr returns the RPC address.
func (c *Config) RPCAddr() string {
	return fmt.Sprintf("localhost:%d", c.RPC.Port)
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if err := c.RPC.Validate(); err != nil {
		return err
	}

	if c.Housekeeping != nil {
		if err := c.Housekeeping.Validate(); err != nil {
			return err
		}
	}

	if err := c.Backend.Validate(); err != nil {
		return err
	}

	if c.Backend.Store == backend.StoreMongo && c.Mongo == nil {
		return fmt.Errorf("backend: store %q requires the Mongo section", c.Backend.Store)
	}
	if c.Mongo != nil {
		if err := c.Mongo.Validate(); err != nil {
			return err
		}
	}

	if c.Backend.Blobs == backend.BlobsMinIO && c.MinIO == nil {
		return fmt.Errorf("backend: blobs %q requires the MinIO section", c.Backend.Blobs)
	}
	if c.MinIO != nil {
		if err := validation.ValidateStruct(c.MinIO); err != nil {
			return fmt.Errorf("minio: %w", err)
		}
	}

	return nil
}

// ensureDefaultValue sets the value of the option to which the default value
// should be applied when the user does not input it.
func (c *Config) ensureDefaultValue() {
	if c.RPC == nil {
		c.RPC = &rpc.Config{}
	}
	if c.RPC.Port == 0 {
		c.RPC.Port = DefaultRPCPort
	}
	if c.RPC.MaxRequestBytes == 0 {
		c.RPC.MaxRequestBytes = DefaultRPCMaxRequestBytes
	}
	if c.RPC.ReadTimeout == "" {
		c.RPC.ReadTimeout = DefaultRPCReadTimeout.String()
	}

	if c.Housekeeping != nil {
		if c.Housekeeping.Interval == "" {
			c.Housekeeping.Interval = DefaultHousekeepingInterval.String()
		}
		if c.Housekeeping.CompactionMinGeneration == 0 {
			c.Housekeeping.CompactionMinGeneration = DefaultHousekeepingCompactionMinGeneration
		}
		if c.Housekeeping.DocumentFetchSize == 0 {
			c.Housekeeping.DocumentFetchSize = DefaultHousekeepingDocumentFetchSize
		}
		if c.Housekeeping.BlobGracePeriod == "" {
			c.Housekeeping.BlobGracePeriod = DefaultHousekeepingBlobGracePeriod.String()
		}
	}

	if c.Backend == nil {
		c.Backend = &backend.Config{}
	}
	if c.Backend.Store == "" {
		c.Backend.Store = DefaultStore
	}
	if c.Backend.Store == backend.StoreSQLite && c.Backend.SQLitePath == "" {
		c.Backend.SQLitePath = DefaultSQLitePath
	}
	if c.Backend.BodyCacheSize == 0 {
		c.Backend.BodyCacheSize = DefaultBodyCacheSize
	}
	if c.Backend.Blobs == "" {
		c.Backend.Blobs = DefaultBlobs
	}
	if c.Backend.Blobs == backend.BlobsLocalFS && c.Backend.BlobsDir == "" {
		c.Backend.BlobsDir = DefaultBlobsDir
	}
	if c.Backend.RegistrySize == 0 {
		c.Backend.RegistrySize = DefaultRegistrySize
	}

	if c.Mongo != nil {
		if c.Mongo.ConnectionURI == "" {
			c.Mongo.ConnectionURI = DefaultMongoConnectionURI
		}

		if c.Mongo.ConnectionTimeout == "" {
			c.Mongo.ConnectionTimeout = DefaultMongoConnectionTimeout.String()
		}

		if c.Mongo.Database == "" {
			c.Mongo.Database = DefaultMongoDatabase
		}

		if c.Mongo.PingTimeout == "" {
			c.Mongo.PingTimeout = DefaultMongoPingTimeout.String()
		}

		if c.Mongo.BodyCacheSize == 0 {
			c.Mongo.BodyCacheSize = mongo.DefaultBodyCacheSize
		}

		if c.Mongo.MonitoringEnabled {
			if c.Mongo.MonitoringSlowQueryThreshold == "" {
				c.Mongo.MonitoringSlowQueryThreshold = DefaultMongoMonitoringSlowQueryThreshold.String()
			}
		}
	}

	if c.MinIO != nil && c.MinIO.Bucket == "" {
		c.MinIO.Bucket = DefaultMinIOBucket
	}
}

func newConfig(port int) *Config {
	return &Config{
		RPC: &rpc.Config{
			Port:            port,
			MaxRequestBytes: DefaultRPCMaxRequestBytes,
			ReadTimeout:     DefaultRPCReadTimeout.String(),
		},
		Housekeeping: &housekeeping.Config{
			Interval:                DefaultHousekeepingInterval.String(),
			CompactionMinGeneration: DefaultHousekeepingCompactionMinGeneration,
			DocumentFetchSize:       DefaultHousekeepingDocumentFetchSize,
			BlobGracePeriod:         DefaultHousekeepingBlobGracePeriod.String(),
		},
		Backend: &backend.Config{
			Store:         DefaultStore,
			SQLitePath:    DefaultSQLitePath,
			BodyCacheSize: DefaultBodyCacheSize,
			Blobs:         DefaultBlobs,
			BlobsDir:      DefaultBlobsDir,
			RegistrySize:  DefaultRegistrySize,
		},
	}
}
