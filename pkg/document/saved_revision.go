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

package document

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/pkg/errors"
	"github.com/revdoc/revdoc/server/logging"
)

// bodyState is the state of the lazily loaded body of a SavedRevision.
type bodyState int

const (
	bodyUnloaded bodyState = iota
	bodyLoaded
	bodyMissing
)

// SavedRevision is an immutable handle to a committed revision. Its id and
// deletion flag are known up front; the body is loaded from the store on
// first use and cached from then on.
type SavedRevision struct {
	doc  *Document
	info RevisionInfo

	mu    sync.Mutex
	state bodyState
	body  *properties.Set
}

func newSavedRevision(doc *Document, info RevisionInfo, body *properties.Set) *SavedRevision {
	rev := &SavedRevision{doc: doc, info: info}
	if body != nil {
		rev.state = bodyLoaded
		rev.body = body
	}
	return rev
}

// ID returns the revision id.
func (r *SavedRevision) ID() types.RevID {
	return r.info.RevID
}

// DocumentID returns the id of the document.
func (r *SavedRevision) DocumentID() types.DocID {
	return r.info.DocID
}

// Document returns the document this is a revision of.
func (r *SavedRevision) Document() *Document {
	return r.doc
}

// IsDeletion returns whether this revision marks the document as deleted.
func (r *SavedRevision) IsDeletion() bool {
	return r.info.Deleted
}

// Sequence returns the store sequence at which the revision was committed.
func (r *SavedRevision) Sequence() types.Sequence {
	return r.info.Sequence
}

// Info returns the identity of the revision.
func (r *SavedRevision) Info() RevisionInfo {
	return r.info
}

// PropertiesAvailable returns whether the body has already been loaded.
func (r *SavedRevision) PropertiesAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != bodyUnloaded
}

// BodyMissing returns whether a load found no body for this revision.
func (r *SavedRevision) BodyMissing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == bodyMissing
}

// Properties returns a copy of the body. The first call loads it from the
// store; later calls are served from the cache. A revision without a body
// yields an empty Set and a logged warning rather than an error.
func (r *SavedRevision) Properties(ctx context.Context) (*properties.Set, error) {
	body, err := r.loadBody(ctx)
	if err != nil {
		return nil, err
	}
	return body.DeepCopy(), nil
}

// UserProperties returns the non-metadata properties of the body.
func (r *SavedRevision) UserProperties(ctx context.Context) (map[string]interface{}, error) {
	body, err := r.loadBody(ctx)
	if err != nil {
		return nil, err
	}
	return body.UserProperties(), nil
}

// Property returns a single property of the body.
func (r *SavedRevision) Property(ctx context.Context, key string) (interface{}, bool, error) {
	body, err := r.loadBody(ctx)
	if err != nil {
		return nil, false, err
	}
	value, ok := body.DeepCopy().Get(key)
	return value, ok, nil
}

func (r *SavedRevision) loadBody(ctx context.Context) (*properties.Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != bodyUnloaded {
		return r.body, nil
	}

	body, err := r.doc.store.LoadBody(ctx, r.info.DocID, r.info.RevID)
	if errors.IsStatus(err, errors.ErrCodeNotFound) {
		logging.From(ctx).Warnf("couldn't load body of %s@%s: %v", r.info.DocID, r.info.RevID, err)
		r.state = bodyMissing
		r.body = properties.New()
		return r.body, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load body of %s@%s: %w", r.info.DocID, r.info.RevID, err)
	}

	r.state = bodyLoaded
	r.body = body
	return r.body, nil
}

// Attachments returns the attachment stubs of this revision by name.
func (r *SavedRevision) Attachments(ctx context.Context) (map[string]attachment.Stub, error) {
	return r.stubs(ctx)
}

// AttachmentNames returns the sorted names of the attachments of this
// revision.
func (r *SavedRevision) AttachmentNames(ctx context.Context) ([]string, error) {
	stubs, err := r.stubs(ctx)
	if err != nil {
		return nil, err
	}
	return sortedNames(stubs), nil
}

// Attachment returns the metadata of the named attachment.
func (r *SavedRevision) Attachment(ctx context.Context, name string) (attachment.Stub, error) {
	stubs, err := r.stubs(ctx)
	if err != nil {
		return attachment.Stub{}, err
	}

	stub, ok := stubs[name]
	if !ok {
		return attachment.Stub{}, fmt.Errorf("attachment %q of %s@%s: %w", name, r.info.DocID, r.info.RevID, ErrAttachmentNotFound)
	}
	return stub, nil
}

// OpenAttachment opens the content of the named attachment. The caller must
// close the returned reader.
func (r *SavedRevision) OpenAttachment(ctx context.Context, name string) (io.ReadCloser, error) {
	stub, err := r.Attachment(ctx, name)
	if err != nil {
		return nil, err
	}

	rc, err := r.doc.store.OpenAttachment(ctx, stub.Digest)
	if err != nil {
		return nil, fmt.Errorf("open attachment %q of %s@%s: %w", name, r.info.DocID, r.info.RevID, err)
	}
	return rc, nil
}

func (r *SavedRevision) stubs(ctx context.Context) (map[string]attachment.Stub, error) {
	body, err := r.loadBody(ctx)
	if err != nil {
		return nil, err
	}
	return attachment.Stubs(body)
}

// CreateDraft returns a new draft whose body is a copy of this revision's
// and whose parent is this revision. If the body is empty the draft starts
// with just "_id" and "_rev".
func (r *SavedRevision) CreateDraft(ctx context.Context) (*DraftRevision, error) {
	body, err := r.loadBody(ctx)
	if err != nil {
		return nil, err
	}

	var props *properties.Set
	if body.Len() == 0 {
		props = properties.New()
		props.Set(properties.KeyID, r.info.DocID.String())
		props.Set(properties.KeyRev, r.info.RevID.String())
	} else {
		props = body.DeepCopy()
	}

	return newDraftRevision(r.doc, r, props), nil
}

// CreateRevision creates and saves a child revision with the given body.
// It fails with ErrConflict if this is not the current revision.
func (r *SavedRevision) CreateRevision(ctx context.Context, props *properties.Set) (*SavedRevision, error) {
	draft, err := r.CreateDraft(ctx)
	if err != nil {
		return nil, err
	}
	draft.SetProperties(props)
	return draft.Save(ctx)
}

// DeleteDocument saves a deletion child revision with an empty body.
func (r *SavedRevision) DeleteDocument(ctx context.Context) (*SavedRevision, error) {
	draft := newDraftRevision(r.doc, r, properties.New())
	draft.SetIsDeletion(true)
	return draft.Save(ctx)
}

// ParentID returns the id of the parent revision. The boolean is false if
// this is the root revision.
func (r *SavedRevision) ParentID(ctx context.Context) (types.RevID, bool, error) {
	parent, ok, err := r.doc.store.Parent(ctx, r.info.DocID, r.info.RevID)
	if err != nil {
		return types.NoRevision, false, fmt.Errorf("parent of %s@%s: %w", r.info.DocID, r.info.RevID, err)
	}
	return parent.RevID, ok, nil
}

// Parent returns the parent revision, or nil if this is the root revision.
func (r *SavedRevision) Parent(ctx context.Context) (*SavedRevision, error) {
	parent, ok, err := r.doc.store.Parent(ctx, r.info.DocID, r.info.RevID)
	if err != nil {
		return nil, fmt.Errorf("parent of %s@%s: %w", r.info.DocID, r.info.RevID, err)
	}
	if !ok {
		return nil, nil
	}
	return r.doc.revisionFromInfo(parent, nil), nil
}

// History returns the lineage of this revision, oldest first. The last
// element is the receiver itself.
func (r *SavedRevision) History(ctx context.Context) ([]*SavedRevision, error) {
	infos, err := r.doc.store.Ancestry(ctx, r.info.DocID, r.info.RevID)
	if err != nil {
		return nil, fmt.Errorf("history of %s@%s: %w", r.info.DocID, r.info.RevID, err)
	}

	history := make([]*SavedRevision, 0, len(infos))
	for _, info := range infos {
		if info.RevID == r.info.RevID {
			history = append(history, r)
			continue
		}
		history = append(history, r.doc.revisionFromInfo(info, nil))
	}
	return history, nil
}

// String returns "<doc id>@<rev id>".
func (r *SavedRevision) String() string {
	return fmt.Sprintf("%s@%s", r.info.DocID, r.info.RevID)
}
