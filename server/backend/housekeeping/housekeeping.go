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

package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/cmap"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/errors"
	"github.com/revdoc/revdoc/server/backend/blobs"
	"github.com/revdoc/revdoc/server/backend/database"
	"github.com/revdoc/revdoc/server/logging"
)

// Housekeeping is the housekeeping service. It periodically compacts the
// documents whose generation has reached the configured minimum and
// collects the blobs left behind by compaction and failed commits.
type Housekeeping struct {
	database database.Database
	blobs    blobs.Store

	interval          time.Duration
	minGeneration     int
	documentFetchSize int
	blobGracePeriod   time.Duration

	// compacted remembers the head each document was last compacted at.
	compacted *cmap.Map[types.DocID, types.RevID]

	ctx        context.Context
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Start creates and starts the housekeeping service.
func Start(conf *Config, database database.Database, blobStore blobs.Store) (*Housekeeping, error) {
	h, err := New(conf, database, blobStore)
	if err != nil {
		return nil, err
	}
	if err := h.Start(); err != nil {
		return nil, err
	}

	return h, nil
}

// New creates a new housekeeping instance. Blobs are not collected when
// blobStore is nil.
func New(conf *Config, database database.Database, blobStore blobs.Store) (*Housekeeping, error) {
	interval, err := conf.ParseInterval()
	if err != nil {
		return nil, err
	}
	gracePeriod, err := conf.ParseBlobGracePeriod()
	if err != nil {
		return nil, err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	return &Housekeeping{
		database: database,
		blobs:    blobStore,

		interval:          interval,
		minGeneration:     conf.CompactionMinGeneration,
		documentFetchSize: conf.DocumentFetchSize,
		blobGracePeriod:   gracePeriod,

		compacted: cmap.New[types.DocID, types.RevID](),

		ctx:        ctx,
		cancelFunc: cancelFunc,
		done:       make(chan struct{}),
	}, nil
}

// Start starts the housekeeping loop.
func (h *Housekeeping) Start() error {
	go h.run()
	return nil
}

// Stop stops the housekeeping loop and waits for it to return.
func (h *Housekeeping) Stop() error {
	h.cancelFunc()
	<-h.done

	return nil
}

// run is the housekeeping loop.
func (h *Housekeeping) run() {
	defer close(h.done)

	for {
		if _, err := h.CompactCandidates(h.ctx); err != nil && h.ctx.Err() == nil {
			logging.From(h.ctx).Error(err)
		}
		if _, err := h.CollectBlobs(h.ctx); err != nil && h.ctx.Err() == nil {
			logging.From(h.ctx).Error(err)
		}

		select {
		case <-time.After(h.interval):
		case <-h.ctx.Done():
			return
		}
	}
}

// CompactCandidates compacts up to the fetch size of documents that reached
// the minimum generation and moved since their last compaction. It returns
// the number of dropped bodies.
func (h *Housekeeping) CompactCandidates(ctx context.Context) (int, error) {
	start := time.Now()

	infos, err := h.database.ListDocInfos(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	candidates := 0
	dropped := 0
	for _, info := range infos {
		if candidates >= h.documentFetchSize {
			break
		}
		if info.Generation < h.minGeneration {
			continue
		}
		if last, ok := h.compacted.Get(info.ID); ok && last == info.CurrentRevID {
			continue
		}
		candidates++

		count, err := h.database.Compact(ctx, info.ID)
		if err != nil {
			return dropped, fmt.Errorf("compact %s: %w", info.ID, err)
		}
		h.compacted.Set(info.ID, info.CurrentRevID)
		dropped += count
	}

	if candidates > 0 {
		logging.From(ctx).Infof(
			"HSKP: candidates %d, dropped bodies %d, %s",
			candidates,
			dropped,
			time.Since(start),
		)
	}

	return dropped, nil
}

// CollectBlobs removes the blobs that no stored revision body refers to and
// that were last put before the grace period. It returns the number of
// removed blobs.
func (h *Housekeeping) CollectBlobs(ctx context.Context) (int, error) {
	if h.blobs == nil {
		return 0, nil
	}
	start := time.Now()
	cutoff := start.Add(-h.blobGracePeriod)

	// a blob a commit puts while this runs is either referenced or newer
	// than cutoff when it is checked again below
	var candidates []string
	if err := h.blobs.List(ctx, func(info blobs.Info) error {
		if info.ModTime.Before(cutoff) {
			candidates = append(candidates, info.Digest)
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	referenced, err := h.referencedDigests(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, digest := range candidates {
		if _, ok := referenced[digest]; ok {
			continue
		}

		info, err := h.blobs.Stat(ctx, digest)
		if errors.Is(err, blobs.ErrBlobNotFound) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("stat blob %s: %w", digest, err)
		}
		if !info.ModTime.Before(cutoff) {
			continue
		}

		if err := h.blobs.Delete(ctx, digest); err != nil {
			return removed, fmt.Errorf("delete blob %s: %w", digest, err)
		}
		removed++
	}

	if removed > 0 {
		logging.From(ctx).Infof(
			"HSKP: blob candidates %d, removed blobs %d, %s",
			len(candidates),
			removed,
			time.Since(start),
		)
	}
	return removed, nil
}

// referencedDigests returns the digests of the attachments of every
// revision that still has its body.
func (h *Housekeeping) referencedDigests(ctx context.Context) (map[string]struct{}, error) {
	infos, err := h.database.ListDocInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	referenced := make(map[string]struct{})
	for _, info := range infos {
		lineage, err := h.database.Ancestry(ctx, info.ID, info.CurrentRevID)
		if err != nil {
			return nil, fmt.Errorf("history of %s: %w", info.ID, err)
		}

		for _, rev := range lineage {
			body, err := h.database.LoadBody(ctx, info.ID, rev.RevID)
			if errors.Is(err, document.ErrBodyNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("body of %s@%s: %w", info.ID, rev.RevID, err)
			}

			stubs, err := attachment.Stubs(body)
			if err != nil {
				return nil, fmt.Errorf("attachments of %s@%s: %w", info.ID, rev.RevID, err)
			}
			for _, stub := range stubs {
				referenced[stub.Digest] = struct{}{}
			}
		}
	}
	return referenced, nil
}
