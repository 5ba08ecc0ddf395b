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

package backend

import (
	"fmt"

	"github.com/revdoc/revdoc/internal/validation"
)

// Store names accepted by Config.Store.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Blob store names accepted by Config.Blobs.
const (
	BlobsMemory  = "memory"
	BlobsLocalFS = "localfs"
	BlobsMinIO   = "minio"
)

// Config is the configuration for creating a Backend instance.
type Config struct {
	// Store selects the revision store: "memory", "sqlite" or "mongo".
	Store string `yaml:"Store" validate:"required,oneof=memory sqlite mongo"`

	// SQLitePath is the database file of the sqlite store.
	SQLitePath string `yaml:"SQLitePath" validate:"required_if=Store sqlite"`

	// BodyCacheSize is the number of revision bodies the sqlite store caches.
	BodyCacheSize int `yaml:"BodyCacheSize" validate:"gte=0"`

	// Blobs selects the attachment blob store: "memory", "localfs" or
	// "minio".
	Blobs string `yaml:"Blobs" validate:"required,oneof=memory localfs minio"`

	// BlobsDir is the directory of the localfs blob store.
	BlobsDir string `yaml:"BlobsDir" validate:"required_if=Blobs localfs"`

	// RegistrySize is the number of document handles kept in memory.
	RegistrySize int `yaml:"RegistrySize" validate:"gt=0"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	return nil
}
