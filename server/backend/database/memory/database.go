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

// Package memory implements the database interface using in-memory database.
package memory

import (
	"context"
	"fmt"
	"io"
	gotime "time"

	"github.com/hashicorp/go-memdb"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/server/backend/blobs"
	"github.com/revdoc/revdoc/server/backend/blobs/localfs"
	"github.com/revdoc/revdoc/server/backend/database"
)

var _ database.Database = (*DB)(nil)

// DB is an in-memory database for testing or temporarily.
type DB struct {
	db    *memdb.MemDB
	blobs blobs.Store

	// seq is the last assigned sequence. It is only touched while holding
	// a write transaction, which memdb serializes.
	seq types.Sequence
}

// New returns a new in-memory database keeping attachment content in
// blobStore. A nil blobStore keeps it in memory too.
func New(blobStore blobs.Store) (*DB, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	if blobStore == nil {
		blobStore = localfs.NewInMemory()
	}

	return &DB{
		db:    memDB,
		blobs: blobStore,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return nil
}

// FindDocInfo returns the head record of the given document.
func (d *DB) FindDocInfo(_ context.Context, docID types.DocID) (*database.DocInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	info, err := findDocInfo(txn, docID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("find document %s: %w", docID, database.ErrDocumentNotFound)
	}
	return info.DeepCopy(), nil
}

// ListDocInfos returns the head records of all documents ordered by id.
func (d *DB) ListDocInfos(_ context.Context) ([]*database.DocInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblDocuments, "id")
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var infos []*database.DocInfo
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		infos = append(infos, raw.(*database.DocInfo).DeepCopy())
	}
	return infos, nil
}

// LoadBody returns the body of the given revision.
func (d *DB) LoadBody(_ context.Context, docID types.DocID, revID types.RevID) (*properties.Set, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	rev, err := findRevInfo(txn, docID, revID)
	if err != nil {
		return nil, err
	}
	if !rev.HasBody() {
		return nil, fmt.Errorf("body of %s@%s: %w", docID, revID, database.ErrBodyNotFound)
	}
	return database.DecodeBody(rev.Body)
}

// Revision returns the info of the given revision.
func (d *DB) Revision(_ context.Context, docID types.DocID, revID types.RevID) (document.RevisionInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	rev, err := findRevInfo(txn, docID, revID)
	if err != nil {
		return document.RevisionInfo{}, err
	}
	return rev.ToRevisionInfo(), nil
}

// Parent returns the parent of the given revision.
func (d *DB) Parent(
	_ context.Context,
	docID types.DocID,
	revID types.RevID,
) (document.RevisionInfo, bool, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	rev, err := findRevInfo(txn, docID, revID)
	if err != nil {
		return document.RevisionInfo{}, false, err
	}
	if !rev.HasParent() {
		return document.RevisionInfo{}, false, nil
	}

	parent, err := findRevInfo(txn, docID, rev.ParentID)
	if err != nil {
		return document.RevisionInfo{}, false, err
	}
	return parent.ToRevisionInfo(), true, nil
}

// Ancestry returns the lineage of the given revision, oldest first.
func (d *DB) Ancestry(
	_ context.Context,
	docID types.DocID,
	revID types.RevID,
) ([]document.RevisionInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	rev, err := findRevInfo(txn, docID, revID)
	if err != nil {
		return nil, err
	}

	return database.Ancestry(rev, func(parentID types.RevID) (*database.RevInfo, error) {
		return findRevInfo(txn, docID, parentID)
	})
}

// CurrentRevision returns the winning revision of the document.
func (d *DB) CurrentRevision(_ context.Context, docID types.DocID) (document.RevisionInfo, bool, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	info, err := findDocInfo(txn, docID)
	if err != nil {
		return document.RevisionInfo{}, false, err
	}
	if info == nil {
		return document.RevisionInfo{}, false, nil
	}
	return info.CurrentRevision(), true, nil
}

// Commit stores the draft as a child of its parent. The head check and the
// inserts happen in one write transaction, so racing commits on the same
// parent are serialized and all but the first fail with a conflict.
func (d *DB) Commit(ctx context.Context, req document.CommitRequest) (document.CommitResult, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	head, err := findDocInfo(txn, req.DocID)
	if err != nil {
		return document.CommitResult{}, err
	}

	commit, err := database.PrepareCommit(ctx, d.blobs, head, req, gotime.Now())
	if err != nil {
		return document.CommitResult{}, err
	}

	d.seq++
	commit.Rev.Sequence = d.seq

	if err := txn.Insert(tblRevisions, commit.Rev.DeepCopy()); err != nil {
		d.seq--
		return document.CommitResult{}, fmt.Errorf("insert revision %s@%s: %w", req.DocID, commit.Rev.RevID, err)
	}

	next := &database.DocInfo{ID: req.DocID}
	if head != nil {
		next = head.DeepCopy()
	}
	next.Advance(commit.Rev)
	if err := txn.Insert(tblDocuments, next); err != nil {
		d.seq--
		return document.CommitResult{}, fmt.Errorf("update document %s: %w", req.DocID, err)
	}

	txn.Commit()
	return commit.Result(), nil
}

// OpenAttachment opens the content stored under the given digest.
func (d *DB) OpenAttachment(ctx context.Context, digest string) (io.ReadCloser, error) {
	return database.OpenAttachment(ctx, d.blobs, digest)
}

// Compact drops the bodies of the non-current revisions of the document.
func (d *DB) Compact(_ context.Context, docID types.DocID) (int, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	head, err := findDocInfo(txn, docID)
	if err != nil {
		return 0, err
	}
	if head == nil {
		return 0, fmt.Errorf("compact %s: %w", docID, database.ErrDocumentNotFound)
	}

	iter, err := txn.Get(tblRevisions, "doc_id", docID.String())
	if err != nil {
		return 0, fmt.Errorf("find revisions of %s: %w", docID, err)
	}

	var compacted []*database.RevInfo
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		rev := raw.(*database.RevInfo)
		if rev.RevID == head.CurrentRevID || !rev.HasBody() {
			continue
		}
		stripped := rev.DeepCopy()
		stripped.Body = nil
		compacted = append(compacted, stripped)
	}

	for _, rev := range compacted {
		if err := txn.Insert(tblRevisions, rev); err != nil {
			return 0, fmt.Errorf("compact revision %s@%s: %w", docID, rev.RevID, err)
		}
	}

	txn.Commit()
	return len(compacted), nil
}

func findDocInfo(txn *memdb.Txn, docID types.DocID) (*database.DocInfo, error) {
	raw, err := txn.First(tblDocuments, "id", docID.String())
	if err != nil {
		return nil, fmt.Errorf("find document %s: %w", docID, err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*database.DocInfo), nil
}

func findRevInfo(txn *memdb.Txn, docID types.DocID, revID types.RevID) (*database.RevInfo, error) {
	raw, err := txn.First(tblRevisions, "id", docID.String(), revID.String())
	if err != nil {
		return nil, fmt.Errorf("find revision %s@%s: %w", docID, revID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("find revision %s@%s: %w", docID, revID, database.ErrRevisionNotFound)
	}
	return raw.(*database.RevInfo), nil
}
