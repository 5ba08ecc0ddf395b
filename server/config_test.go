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

package server_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revdoc/revdoc/server"
	"github.com/revdoc/revdoc/server/backend"
)

func TestNewConfigFromFile(t *testing.T) {
	t.Run("fail read config file test", func(t *testing.T) {
		conf := server.NewConfig()
		assert.Equal(t, conf.RPCAddr(), "localhost:"+strconv.Itoa(server.DefaultRPCPort))
		assert.NoError(t, conf.Validate())

		_, err := server.NewConfigFromFile("nowhere.yml")
		assert.Error(t, err)
		assert.Equal(t, conf.Backend.Store, server.DefaultStore)
		assert.Equal(t, conf.Backend.SQLitePath, server.DefaultSQLitePath)
	})

	t.Run("read config file test", func(t *testing.T) {
		conf, err := server.NewConfigFromFile("config.sample.yml")
		require.NoError(t, err)
		assert.NoError(t, conf.Validate())

		assert.Equal(t, conf.RPC.Port, server.DefaultRPCPort)
		assert.Equal(t, conf.Backend.Store, backend.StoreMongo)
		assert.Equal(t, conf.Backend.BodyCacheSize, server.DefaultBodyCacheSize)

		connTimeout, err := time.ParseDuration(conf.Mongo.ConnectionTimeout)
		assert.NoError(t, err)
		assert.Equal(t, connTimeout, server.DefaultMongoConnectionTimeout)
		assert.Equal(t, conf.Mongo.ConnectionURI, server.DefaultMongoConnectionURI)
		assert.Equal(t, conf.Mongo.Database, server.DefaultMongoDatabase)

		pingTimeout, err := time.ParseDuration(conf.Mongo.PingTimeout)
		assert.NoError(t, err)
		assert.Equal(t, pingTimeout, server.DefaultMongoPingTimeout)

		interval, err := conf.Housekeeping.ParseInterval()
		assert.NoError(t, err)
		assert.Equal(t, interval, server.DefaultHousekeepingInterval)

		gracePeriod, err := conf.Housekeeping.ParseBlobGracePeriod()
		assert.NoError(t, err)
		assert.Equal(t, gracePeriod, server.DefaultHousekeepingBlobGracePeriod)
	})

	t.Run("minimal config file test", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "revdoc.yml")
		require.NoError(t, os.WriteFile(path, []byte("Backend:\n  Store: memory\n  Blobs: memory\n"), 0o600))

		conf, err := server.NewConfigFromFile(path)
		require.NoError(t, err)
		assert.NoError(t, conf.Validate())
		assert.Nil(t, conf.Housekeeping)
		assert.Equal(t, server.DefaultRPCPort, conf.RPC.Port)
		assert.Equal(t, "", conf.Backend.SQLitePath)
	})

	t.Run("missing sections test", func(t *testing.T) {
		conf := server.NewConfig()
		conf.Backend.Store = backend.StoreMongo
		assert.Error(t, conf.Validate())

		conf = server.NewConfig()
		conf.Backend.Blobs = backend.BlobsMinIO
		assert.Error(t, conf.Validate())
	})
}
