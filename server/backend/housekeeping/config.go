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

// Package housekeeping is the package for housekeeping service. It drops the
// bodies of revisions that are no longer current and removes the attachment
// blobs no revision body refers to.
package housekeeping

import (
	"fmt"
	"time"
)

// DefaultBlobGracePeriod is the age a blob must reach before it may be
// removed when BlobGracePeriod is not set.
const DefaultBlobGracePeriod = time.Hour

// Config is the configuration for the housekeeping service.
type Config struct {
	// Interval is the time between housekeeping runs.
	Interval string `yaml:"Interval"`

	// CompactionMinGeneration is the generation a document must reach
	// before the bodies of its old revisions are dropped.
	CompactionMinGeneration int `yaml:"CompactionMinGeneration"`

	// DocumentFetchSize is the maximum number of documents compacted in
	// one run.
	DocumentFetchSize int `yaml:"DocumentFetchSize"`

	// BlobGracePeriod is the age an unreferenced blob must reach before it
	// is removed. It covers commits that wrote their blobs but have not
	// linked them yet.
	BlobGracePeriod string `yaml:"BlobGracePeriod"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Interval); err != nil {
		return fmt.Errorf(
			`invalid argument %s for "--housekeeping-interval" flag: %w`,
			c.Interval,
			err,
		)
	}

	if c.CompactionMinGeneration < 2 {
		return fmt.Errorf(
			`invalid argument %d for "--housekeeping-compaction-min-generation" flag`,
			c.CompactionMinGeneration,
		)
	}

	if c.DocumentFetchSize <= 0 {
		return fmt.Errorf(
			`invalid argument %d for "--housekeeping-document-fetch-size" flag`,
			c.DocumentFetchSize,
		)
	}

	if c.BlobGracePeriod != "" {
		if _, err := time.ParseDuration(c.BlobGracePeriod); err != nil {
			return fmt.Errorf(
				`invalid argument %s for "--housekeeping-blob-grace-period" flag: %w`,
				c.BlobGracePeriod,
				err,
			)
		}
	}

	return nil
}

// ParseBlobGracePeriod parses the blob grace period. An empty period is
// DefaultBlobGracePeriod.
func (c *Config) ParseBlobGracePeriod() (time.Duration, error) {
	if c.BlobGracePeriod == "" {
		return DefaultBlobGracePeriod, nil
	}

	period, err := time.ParseDuration(c.BlobGracePeriod)
	if err != nil {
		return 0, fmt.Errorf("parse blob grace period %s: %w", c.BlobGracePeriod, err)
	}
	return period, nil
}

// ParseInterval parses the interval.
func (c *Config) ParseInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("parse interval %s: %w", c.Interval, err)
	}

	return interval, nil
}
