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

package database

import (
	"context"
	"io"
	gotime "time"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/pkg/errors"
	"github.com/revdoc/revdoc/server/logging"
	"github.com/revdoc/revdoc/server/profiling/prometheus"
)

// Instrument wraps db so that every operation is timed and counted in
// metrics under the given backend name.
func Instrument(db Database, metrics *prometheus.Metrics, backend string) Database {
	return &instrumentedDB{
		db:      db,
		metrics: metrics,
		backend: backend,
		logger:  logging.New("store", logging.NewField("backend", backend)),
	}
}

type instrumentedDB struct {
	db      Database
	metrics *prometheus.Metrics
	backend string
	logger  logging.Logger
}

func (i *instrumentedDB) observe(operation string, start gotime.Time, err error) {
	code := "ok"
	if err != nil {
		if status := errors.StatusOf(err); status != 0 {
			code = status.String()
		} else {
			code = "unknown"
		}
	}

	i.metrics.ObserveStoreOperation(i.backend, operation, code, gotime.Since(start).Seconds())
	if err != nil && !errors.IsClientError(err) {
		i.logger.Warnf("%s: %v", operation, err)
	}
}

func (i *instrumentedDB) Close() error {
	return i.db.Close()
}

func (i *instrumentedDB) FindDocInfo(ctx context.Context, docID types.DocID) (info *DocInfo, err error) {
	defer func(start gotime.Time) { i.observe("FindDocInfo", start, err) }(gotime.Now())
	return i.db.FindDocInfo(ctx, docID)
}

func (i *instrumentedDB) ListDocInfos(ctx context.Context) (infos []*DocInfo, err error) {
	defer func(start gotime.Time) { i.observe("ListDocInfos", start, err) }(gotime.Now())
	return i.db.ListDocInfos(ctx)
}

func (i *instrumentedDB) LoadBody(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
) (body *properties.Set, err error) {
	defer func(start gotime.Time) { i.observe("LoadBody", start, err) }(gotime.Now())
	return i.db.LoadBody(ctx, docID, revID)
}

func (i *instrumentedDB) Revision(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
) (info document.RevisionInfo, err error) {
	defer func(start gotime.Time) { i.observe("Revision", start, err) }(gotime.Now())
	return i.db.Revision(ctx, docID, revID)
}

func (i *instrumentedDB) Parent(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
) (info document.RevisionInfo, ok bool, err error) {
	defer func(start gotime.Time) { i.observe("Parent", start, err) }(gotime.Now())
	return i.db.Parent(ctx, docID, revID)
}

func (i *instrumentedDB) Ancestry(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
) (infos []document.RevisionInfo, err error) {
	defer func(start gotime.Time) { i.observe("Ancestry", start, err) }(gotime.Now())
	return i.db.Ancestry(ctx, docID, revID)
}

func (i *instrumentedDB) CurrentRevision(
	ctx context.Context,
	docID types.DocID,
) (info document.RevisionInfo, ok bool, err error) {
	defer func(start gotime.Time) { i.observe("CurrentRevision", start, err) }(gotime.Now())
	return i.db.CurrentRevision(ctx, docID)
}

func (i *instrumentedDB) Commit(
	ctx context.Context,
	req document.CommitRequest,
) (result document.CommitResult, err error) {
	defer func(start gotime.Time) { i.observe("Commit", start, err) }(gotime.Now())

	result, err = i.db.Commit(ctx, req)
	if document.IsConflict(err) {
		i.metrics.AddCommitConflict(i.backend)
	}
	if err == nil && req.Attachments != nil {
		var staged int64
		for _, name := range req.Attachments.Names() {
			if entry, ok := req.Attachments.Get(name); ok && !entry.IsTombstone() {
				staged += entry.Attachment().Length()
			}
		}
		i.metrics.AddCommitBytes(i.backend, staged)
	}
	return result, err
}

func (i *instrumentedDB) OpenAttachment(ctx context.Context, digest string) (rc io.ReadCloser, err error) {
	defer func(start gotime.Time) { i.observe("OpenAttachment", start, err) }(gotime.Now())
	return i.db.OpenAttachment(ctx, digest)
}

func (i *instrumentedDB) Compact(ctx context.Context, docID types.DocID) (count int, err error) {
	defer func(start gotime.Time) { i.observe("Compact", start, err) }(gotime.Now())

	count, err = i.db.Compact(ctx, docID)
	if err == nil {
		i.metrics.AddCompactedBodies(i.backend, count)
	}
	return count, err
}
