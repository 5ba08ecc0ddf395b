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

// Package document provides the revisions of a document: immutable saved
// revisions loaded lazily from a Store, and drafts that are committed
// against their parent with optimistic concurrency.
package document

import (
	"context"
	"fmt"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/cache"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/server/logging"
)

// MaxUpdateAttempts is the number of times Update retries after a conflict.
const MaxUpdateAttempts = 10

// RevisionCacheSize is the number of SavedRevision instances a Document
// keeps. Older instances are dropped with their bodies and are loaded
// again on the next lookup.
const RevisionCacheSize = 128

// Revision is what saved and draft revisions have in common.
type Revision interface {
	DocumentID() types.DocID
	IsDeletion() bool
	History(ctx context.Context) ([]*SavedRevision, error)
}

var (
	_ Revision = (*SavedRevision)(nil)
	_ Revision = (*DraftRevision)(nil)
)

// Document is a handle to one document of a Store. It resolves revisions by
// id and hands out the same SavedRevision instance for the same id while
// the instance stays among the RevisionCacheSize most recently used.
type Document struct {
	id     types.DocID
	store  Store
	logger logging.Logger

	revisions *cache.LRU[types.RevID, *SavedRevision]
}

// New creates a handle to the document with the given id.
func New(store Store, id types.DocID) *Document {
	// The size is a positive constant, so NewLRU cannot fail.
	revisions, _ := cache.NewLRU[types.RevID, *SavedRevision]("revisions", RevisionCacheSize)

	return &Document{
		id:        id,
		store:     store,
		logger:    logging.New("doc", logging.NewField("doc_id", id.String())),
		revisions: revisions,
	}
}

// ID returns the id of the document.
func (d *Document) ID() types.DocID {
	return d.id
}

// revisionFromInfo returns the cached instance of the given revision or
// creates one. body, when not nil, seeds the cache of a new instance.
func (d *Document) revisionFromInfo(info RevisionInfo, body *properties.Set) *SavedRevision {
	if rev, ok := d.revisions.Get(info.RevID); ok {
		return rev
	}
	rev, _ := d.revisions.GetOrAdd(info.RevID, newSavedRevision(d, info, body))
	return rev
}

// CurrentRevision returns the winning revision of the document. It returns
// ErrDocumentNotFound if the document has never been saved.
func (d *Document) CurrentRevision(ctx context.Context) (*SavedRevision, error) {
	info, ok, err := d.store.CurrentRevision(ctx, d.id)
	if err != nil {
		return nil, fmt.Errorf("current revision of %s: %w", d.id, err)
	}
	if !ok {
		return nil, fmt.Errorf("current revision of %s: %w", d.id, ErrDocumentNotFound)
	}
	return d.revisionFromInfo(info, nil), nil
}

// Revision returns the revision with the given id.
func (d *Document) Revision(ctx context.Context, revID types.RevID) (*SavedRevision, error) {
	if rev, ok := d.revisions.Get(revID); ok {
		return rev, nil
	}

	info, err := d.store.Revision(ctx, d.id, revID)
	if err != nil {
		return nil, fmt.Errorf("revision %s@%s: %w", d.id, revID, err)
	}
	return d.revisionFromInfo(info, nil), nil
}

// CreateDraft returns a draft of the next revision. It forks the current
// revision, or starts a body with just "_id" if there is none. A draft of
// a deleted document starts undeleted.
func (d *Document) CreateDraft(ctx context.Context) (*DraftRevision, error) {
	current, err := d.CurrentRevision(ctx)
	if IsNotFound(err) {
		props := properties.New()
		props.Set(properties.KeyID, d.id.String())
		return newDraftRevision(d, nil, props), nil
	}
	if err != nil {
		return nil, err
	}

	draft, err := current.CreateDraft(ctx)
	if err != nil {
		return nil, err
	}
	if current.IsDeletion() {
		draft.SetIsDeletion(false)
	}
	return draft, nil
}

// PutProperties saves a new revision whose user properties are replaced
// with the given ones. Attachments are carried over.
func (d *Document) PutProperties(ctx context.Context, user map[string]interface{}) (*SavedRevision, error) {
	draft, err := d.CreateDraft(ctx)
	if err != nil {
		return nil, err
	}
	draft.SetUserProperties(user)
	return draft.Save(ctx)
}

// Update applies fn to a draft of the current revision and saves it. On a
// conflict it re-reads the current revision and applies fn again, up to
// MaxUpdateAttempts times. An error from fn aborts the update.
func (d *Document) Update(ctx context.Context, fn func(draft *DraftRevision) error) (*SavedRevision, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxUpdateAttempts; attempt++ {
		draft, err := d.CreateDraft(ctx)
		if err != nil {
			return nil, err
		}

		if err := fn(draft); err != nil {
			return nil, err
		}

		rev, err := draft.Save(ctx)
		if err == nil {
			return rev, nil
		}
		if !IsConflict(err) {
			return nil, err
		}

		d.logger.Debugf("update attempt %d of %s conflicted", attempt, d.id)
		lastErr = err
	}

	return nil, fmt.Errorf("update %s after %d attempts: %w", d.id, MaxUpdateAttempts, lastErr)
}

// Delete saves a deletion revision on top of the current one. Deleting a
// deleted document returns ErrDocumentNotFound.
func (d *Document) Delete(ctx context.Context) (*SavedRevision, error) {
	current, err := d.CurrentRevision(ctx)
	if err != nil {
		return nil, err
	}
	if current.IsDeletion() {
		return nil, fmt.Errorf("delete %s: %w", d.id, ErrDocumentNotFound)
	}
	return current.DeleteDocument(ctx)
}

// History returns the history of the current revision, oldest first.
func (d *Document) History(ctx context.Context) ([]*SavedRevision, error) {
	current, err := d.CurrentRevision(ctx)
	if err != nil {
		return nil, err
	}
	return current.History(ctx)
}
