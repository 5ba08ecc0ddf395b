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

// Package sqlite implements the database interface on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	gotime "time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/cache"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/server/backend/blobs"
	"github.com/revdoc/revdoc/server/backend/database"
)

const (
	// InMemoryPath opens a database that lives as long as the DB.
	InMemoryPath = ":memory:"

	// DefaultBodyCacheSize is the default number of cached revision bodies.
	DefaultBodyCacheSize = 1000

	busyTimeout = 5000
)

var (
	_ database.Database = (*DB)(nil)

	docColumns = []string{"id", "current_rev_id", "generation", "deleted", "sequence", "created_at", "updated_at"}
	revColumns = []string{"sequence", "doc_id", "rev_id", "parent_id", "generation", "deleted", "body", "created_at"}
)

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type revKey struct {
	docID types.DocID
	revID types.RevID
}

// DB is a database stored in a single SQLite file.
//
// The pool holds a single connection, so every transaction runs alone and a
// commit sees no concurrent writer between its head check and its update.
type DB struct {
	path  string
	db    *sql.DB
	blobs blobs.Store

	bodyCache *cache.LRU[revKey, []byte]
}

// Open opens or creates the database at path and keeps attachment content
// in blobStore.
func Open(ctx context.Context, path string, blobStore blobs.Store, bodyCacheSize int) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout),
	}
	if strings.Contains(path, InMemoryPath) {
		pragmas = pragmas[1:]
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	if bodyCacheSize == 0 {
		bodyCacheSize = DefaultBodyCacheSize
	}
	bodyCache, err := cache.NewLRU[revKey, []byte]("sqlite-bodies", bodyCacheSize)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("initialize body cache: %w", err)
	}

	return &DB{
		path:      path,
		db:        sqlDB,
		blobs:     blobStore,
		bodyCache: bodyCache,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	d.bodyCache.Purge()
	return d.db.Close()
}

// BodyCacheStats returns the statistics of the body cache.
func (d *DB) BodyCacheStats() *cache.Stats {
	return d.bodyCache.Stats()
}

// FindDocInfo returns the head record of the given document.
func (d *DB) FindDocInfo(ctx context.Context, docID types.DocID) (*database.DocInfo, error) {
	info, err := findDocInfo(ctx, d.db, docID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("find document %s: %w", docID, database.ErrDocumentNotFound)
	}
	return info, nil
}

// ListDocInfos returns the head records of all documents ordered by id.
func (d *DB) ListDocInfos(ctx context.Context) ([]*database.DocInfo, error) {
	query, args, err := sq.Select(docColumns...).From("documents").OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []*database.DocInfo
	for rows.Next() {
		info, err := scanDocInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// LoadBody returns the body of the given revision.
func (d *DB) LoadBody(ctx context.Context, docID types.DocID, revID types.RevID) (*properties.Set, error) {
	key := revKey{docID: docID, revID: revID}
	if body, ok := d.bodyCache.Get(key); ok {
		return database.DecodeBody(body)
	}

	rev, err := findRevInfo(ctx, d.db, docID, revID)
	if err != nil {
		return nil, err
	}
	if !rev.HasBody() {
		return nil, fmt.Errorf("body of %s@%s: %w", docID, revID, database.ErrBodyNotFound)
	}

	d.bodyCache.Add(key, rev.Body)
	return database.DecodeBody(rev.Body)
}

// Revision returns the info of the given revision.
func (d *DB) Revision(ctx context.Context, docID types.DocID, revID types.RevID) (document.RevisionInfo, error) {
	rev, err := findRevInfo(ctx, d.db, docID, revID)
	if err != nil {
		return document.RevisionInfo{}, err
	}
	return rev.ToRevisionInfo(), nil
}

// Parent returns the parent of the given revision.
func (d *DB) Parent(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
) (document.RevisionInfo, bool, error) {
	rev, err := findRevInfo(ctx, d.db, docID, revID)
	if err != nil {
		return document.RevisionInfo{}, false, err
	}
	if !rev.HasParent() {
		return document.RevisionInfo{}, false, nil
	}

	parent, err := findRevInfo(ctx, d.db, docID, rev.ParentID)
	if err != nil {
		return document.RevisionInfo{}, false, err
	}
	return parent.ToRevisionInfo(), true, nil
}

// Ancestry returns the lineage of the given revision, oldest first.
func (d *DB) Ancestry(
	ctx context.Context,
	docID types.DocID,
	revID types.RevID,
) ([]document.RevisionInfo, error) {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rev, err := findRevInfo(ctx, tx, docID, revID)
	if err != nil {
		return nil, err
	}

	return database.Ancestry(rev, func(parentID types.RevID) (*database.RevInfo, error) {
		return findRevInfo(ctx, tx, docID, parentID)
	})
}

// CurrentRevision returns the winning revision of the document.
func (d *DB) CurrentRevision(ctx context.Context, docID types.DocID) (document.RevisionInfo, bool, error) {
	info, err := findDocInfo(ctx, d.db, docID)
	if err != nil {
		return document.RevisionInfo{}, false, err
	}
	if info == nil {
		return document.RevisionInfo{}, false, nil
	}
	return info.CurrentRevision(), true, nil
}

// Commit stores the draft as a child of its parent in one transaction.
func (d *DB) Commit(ctx context.Context, req document.CommitRequest) (document.CommitResult, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return document.CommitResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	head, err := findDocInfo(ctx, tx, req.DocID)
	if err != nil {
		return document.CommitResult{}, err
	}

	commit, err := database.PrepareCommit(ctx, d.blobs, head, req, gotime.Now())
	if err != nil {
		return document.CommitResult{}, err
	}

	seq, err := insertRevInfo(ctx, tx, commit.Rev)
	if err != nil {
		return document.CommitResult{}, err
	}
	commit.Rev.Sequence = seq

	if err := advanceHead(ctx, tx, head, req.DocID, commit.Rev); err != nil {
		return document.CommitResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return document.CommitResult{}, fmt.Errorf("commit %s@%s: %w", req.DocID, commit.Rev.RevID, err)
	}

	d.bodyCache.Add(revKey{docID: req.DocID, revID: commit.Rev.RevID}, commit.Rev.Body)
	return commit.Result(), nil
}

// OpenAttachment opens the content stored under the given digest.
func (d *DB) OpenAttachment(ctx context.Context, digest string) (io.ReadCloser, error) {
	return database.OpenAttachment(ctx, d.blobs, digest)
}

// Compact drops the bodies of the non-current revisions of the document.
func (d *DB) Compact(ctx context.Context, docID types.DocID) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	head, err := findDocInfo(ctx, tx, docID)
	if err != nil {
		return 0, err
	}
	if head == nil {
		return 0, fmt.Errorf("compact %s: %w", docID, database.ErrDocumentNotFound)
	}

	where := sq.And{
		sq.Eq{"doc_id": docID.String()},
		sq.NotEq{"rev_id": head.CurrentRevID.String()},
		sq.NotEq{"body": nil},
	}

	query, args, err := sq.Select("rev_id").From("revisions").Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("find revisions of %s: %w", docID, err)
	}
	var revIDs []types.RevID
	for rows.Next() {
		var revID string
		if err := rows.Scan(&revID); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan revision of %s: %w", docID, err)
		}
		revIDs = append(revIDs, types.RevID(revID))
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("find revisions of %s: %w", docID, err)
	}

	query, args, err = sq.Update("revisions").Set("body", nil).Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("compact %s: %w", docID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("compact %s: %w", docID, err)
	}

	for _, revID := range revIDs {
		d.bodyCache.Remove(revKey{docID: docID, revID: revID})
	}
	return len(revIDs), nil
}

func findDocInfo(ctx context.Context, q querier, docID types.DocID) (*database.DocInfo, error) {
	query, args, err := sq.Select(docColumns...).
		From("documents").
		Where(sq.Eq{"id": docID.String()}).
		ToSql()
	if err != nil {
		return nil, err
	}

	info, err := scanDocInfo(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document %s: %w", docID, err)
	}
	return info, nil
}

func findRevInfo(ctx context.Context, q querier, docID types.DocID, revID types.RevID) (*database.RevInfo, error) {
	query, args, err := sq.Select(revColumns...).
		From("revisions").
		Where(sq.Eq{"doc_id": docID.String(), "rev_id": revID.String()}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rev, err := scanRevInfo(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find revision %s@%s: %w", docID, revID, database.ErrRevisionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find revision %s@%s: %w", docID, revID, err)
	}
	return rev, nil
}

func insertRevInfo(ctx context.Context, q querier, rev *database.RevInfo) (types.Sequence, error) {
	var body interface{}
	if rev.HasBody() {
		body = rev.Body
	}

	query, args, err := sq.Insert("revisions").
		Columns("doc_id", "rev_id", "parent_id", "generation", "deleted", "body", "created_at").
		Values(
			rev.DocID.String(),
			rev.RevID.String(),
			rev.ParentID.String(),
			rev.Generation,
			rev.Deleted,
			body,
			rev.CreatedAt.UnixNano(),
		).
		ToSql()
	if err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("revision %s@%s already exists: %w", rev.DocID, rev.RevID, database.ErrConflictOnCommit)
		}
		return 0, fmt.Errorf("insert revision %s@%s: %w", rev.DocID, rev.RevID, err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sequence of %s@%s: %w", rev.DocID, rev.RevID, err)
	}
	return types.Sequence(seq), nil
}

// advanceHead moves the head of the document to rev if it is still head.
func advanceHead(
	ctx context.Context,
	q querier,
	head *database.DocInfo,
	docID types.DocID,
	rev *database.RevInfo,
) error {
	if head == nil {
		next := &database.DocInfo{ID: docID}
		next.Advance(rev)

		query, args, err := sq.Insert("documents").
			Columns(docColumns...).
			Values(
				next.ID.String(),
				next.CurrentRevID.String(),
				next.Generation,
				next.Deleted,
				int64(next.Sequence),
				next.CreatedAt.UnixNano(),
				next.UpdatedAt.UnixNano(),
			).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert document %s: %w", docID, err)
		}
		return nil
	}

	next := head.DeepCopy()
	next.Advance(rev)

	query, args, err := sq.Update("documents").
		Set("current_rev_id", next.CurrentRevID.String()).
		Set("generation", next.Generation).
		Set("deleted", next.Deleted).
		Set("sequence", int64(next.Sequence)).
		Set("updated_at", next.UpdatedAt.UnixNano()).
		Where(sq.Eq{"id": docID.String(), "current_rev_id": head.CurrentRevID.String()}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document %s: %w", docID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s: %w", docID, err)
	}
	if affected == 0 {
		return fmt.Errorf("head of %s moved from %s: %w", docID, head.CurrentRevID, database.ErrConflictOnCommit)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocInfo(s scanner) (*database.DocInfo, error) {
	var (
		info                 database.DocInfo
		id, currentRevID     string
		sequence             int64
		createdAt, updatedAt int64
	)
	if err := s.Scan(
		&id, &currentRevID, &info.Generation, &info.Deleted, &sequence, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	info.ID = types.DocID(id)
	info.CurrentRevID = types.RevID(currentRevID)
	info.Sequence = types.Sequence(sequence)
	info.CreatedAt = gotime.Unix(0, createdAt)
	info.UpdatedAt = gotime.Unix(0, updatedAt)
	return &info, nil
}

func scanRevInfo(s scanner) (*database.RevInfo, error) {
	var (
		rev                    database.RevInfo
		sequence, createdAt    int64
		docID, revID, parentID string
	)
	if err := s.Scan(
		&sequence, &docID, &revID, &parentID, &rev.Generation, &rev.Deleted, &rev.Body, &createdAt,
	); err != nil {
		return nil, err
	}

	rev.Sequence = types.Sequence(sequence)
	rev.DocID = types.DocID(docID)
	rev.RevID = types.RevID(revID)
	rev.ParentID = types.RevID(parentID)
	rev.CreatedAt = gotime.Unix(0, createdAt)
	return &rev, nil
}
