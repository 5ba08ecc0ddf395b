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
	"maps"
	"slices"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/internal/validation"
	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/pkg/errors"
)

// DraftRevision is a revision under construction. It owns a full copy of
// its body and stages attachment mutations until Save commits both in one
// unit. A draft is not safe for concurrent mutation.
type DraftRevision struct {
	doc    *Document
	parent *SavedRevision

	props *properties.Set
	stage *attachment.Stage
	saved bool
}

func newDraftRevision(doc *Document, parent *SavedRevision, props *properties.Set) *DraftRevision {
	return &DraftRevision{
		doc:    doc,
		parent: parent,
		props:  props,
		stage:  attachment.NewStage(),
	}
}

// DocumentID returns the id of the document.
func (d *DraftRevision) DocumentID() types.DocID {
	return d.doc.ID()
}

// Document returns the document this draft will be saved to.
func (d *DraftRevision) Document() *Document {
	return d.doc
}

// ParentID returns the id of the revision this draft was forked from, or
// types.NoRevision for a new document.
func (d *DraftRevision) ParentID() types.RevID {
	if d.parent == nil {
		return types.NoRevision
	}
	return d.parent.ID()
}

// Parent returns the revision this draft was forked from, or nil.
func (d *DraftRevision) Parent() *SavedRevision {
	return d.parent
}

// Saved returns whether Save has been called.
func (d *DraftRevision) Saved() bool {
	return d.saved
}

// IsDeletion returns whether saving this draft deletes the document.
func (d *DraftRevision) IsDeletion() bool {
	return d.props.IsDeleted()
}

// SetIsDeletion sets or clears the "_deleted" key.
func (d *DraftRevision) SetIsDeletion(deleted bool) {
	d.props.SetDeleted(deleted)
}

// Properties returns a copy of the body.
func (d *DraftRevision) Properties() *properties.Set {
	return d.props.DeepCopy()
}

// UserProperties returns the non-metadata properties of the body.
func (d *DraftRevision) UserProperties() map[string]interface{} {
	return d.props.UserProperties()
}

// SetProperties replaces the whole body with a copy of props, metadata
// included.
func (d *DraftRevision) SetProperties(props *properties.Set) {
	if props == nil {
		d.props = properties.New()
		return
	}
	d.props = props.DeepCopy()
}

// SetUserProperties replaces the non-metadata keys of the body and keeps
// every "_"-prefixed key as it is.
func (d *DraftRevision) SetUserProperties(user map[string]interface{}) {
	d.props.SetUserProperties(user)
}

// SetProperty sets a single key of the body.
func (d *DraftRevision) SetProperty(key string, value interface{}) {
	d.props.Set(key, value)
}

// AddAttachment stages att under name, replacing anything staged for it
// before. A nil att stages a tombstone.
func (d *DraftRevision) AddAttachment(name string, att *attachment.Attachment) error {
	if err := validateAttachmentName(name); err != nil {
		return err
	}

	if att == nil {
		d.stage.Delete(name)
		return nil
	}
	d.stage.Put(name, att)
	return nil
}

// DeleteAttachment stages a tombstone for name. Saving removes the
// attachment even if the parent has it.
func (d *DraftRevision) DeleteAttachment(name string) error {
	if err := validateAttachmentName(name); err != nil {
		return err
	}

	d.stage.Delete(name)
	return nil
}

// SetAttachment reads r to the end and stages its content under name. r is
// closed on every path.
func (d *DraftRevision) SetAttachment(name, contentType string, r io.ReadCloser) error {
	if r == nil {
		return fmt.Errorf("set attachment %q without content: %w", name, ErrInvalidAttachment)
	}
	if err := validateAttachmentName(name); err != nil {
		if closeErr := r.Close(); closeErr != nil {
			d.doc.logger.Warnf("close attachment %q: %v", name, closeErr)
		}
		return err
	}

	att, err := attachment.New(contentType, r)
	if err != nil {
		return fmt.Errorf("set attachment %q: %w", name, err)
	}

	d.stage.Put(name, att)
	return nil
}

// SetAttachmentFromURL fetches rawURL now and stages its content under name.
// A fetch failure is returned immediately and stages nothing.
func (d *DraftRevision) SetAttachmentFromURL(ctx context.Context, name, contentType, rawURL string) error {
	if err := validateAttachmentName(name); err != nil {
		return err
	}

	att, err := attachment.Fetch(ctx, contentType, rawURL)
	if err != nil {
		return fmt.Errorf("set attachment %q from %s: %w", name, rawURL, err)
	}

	d.stage.Put(name, att)
	return nil
}

// Attachments returns the attachments this draft will have once saved: the
// inherited stubs with the staged entries applied over them.
func (d *DraftRevision) Attachments() (map[string]attachment.Stub, error) {
	stubs, err := attachment.Stubs(d.props)
	if err != nil {
		return nil, err
	}

	revpos := d.ParentID().Generation() + 1
	for _, name := range d.stage.Names() {
		entry, _ := d.stage.Get(name)
		if entry.IsTombstone() {
			delete(stubs, name)
			continue
		}
		stubs[name] = attachment.StubOf(entry.Attachment(), revpos)
	}
	return stubs, nil
}

// AttachmentNames returns the sorted names of Attachments.
func (d *DraftRevision) AttachmentNames() ([]string, error) {
	stubs, err := d.Attachments()
	if err != nil {
		return nil, err
	}
	return sortedNames(stubs), nil
}

// Save commits the draft as a child of its parent and returns the new
// revision. It fails with ErrConflict, persisting nothing, if the parent is
// no longer the current revision. Save consumes the draft whether it
// succeeds or not; calling it again returns ErrDraftAlreadySaved.
func (d *DraftRevision) Save(ctx context.Context) (*SavedRevision, error) {
	if d.saved {
		return nil, fmt.Errorf("save %s: %w", d.doc.ID(), ErrDraftAlreadySaved)
	}
	d.saved = true

	result, err := d.doc.store.Commit(ctx, CommitRequest{
		DocID:       d.doc.ID(),
		ParentID:    d.ParentID(),
		Properties:  d.props.DeepCopy(),
		Attachments: d.stage.Clone(),
	})
	if err != nil {
		err = errors.WithMetadata(err, map[string]string{
			"doc_id":     d.doc.ID().String(),
			"parent_rev": d.ParentID().String(),
		})
		return nil, fmt.Errorf("save %s on %q: %w", d.doc.ID(), d.ParentID(), err)
	}

	d.doc.logger.Debugf("saved %s@%s", result.Info.DocID, result.Info.RevID)
	return d.doc.revisionFromInfo(result.Info, result.Properties), nil
}

// History returns the history of the parent, or nothing for a new document.
// The draft itself is not part of it.
func (d *DraftRevision) History(ctx context.Context) ([]*SavedRevision, error) {
	if d.parent == nil {
		return nil, nil
	}
	return d.parent.History(ctx)
}

func validateAttachmentName(name string) error {
	if err := validation.ValidateAttachmentName(name); err != nil {
		return fmt.Errorf("attachment name %q: %s: %w", name, err.Error(), ErrInvalidAttachment)
	}
	return nil
}

func sortedNames(stubs map[string]attachment.Stub) []string {
	return slices.Sorted(maps.Keys(stubs))
}
