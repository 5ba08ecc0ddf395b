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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/internal/validation"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/pkg/errors"
	"github.com/revdoc/revdoc/server/backend/blobs"
)

// Commit is a prepared commit: the record of the new revision and its body
// as decoded from Rev.Body, so that it equals the body a later load returns.
// The store assigns Rev.Sequence when it writes the record.
type Commit struct {
	Rev  *RevInfo
	Body *properties.Set
}

// Result returns the result of the commit once stored.
func (c *Commit) Result() document.CommitResult {
	return document.CommitResult{
		Info:       c.Rev.ToRevisionInfo(),
		Properties: c.Body.DeepCopy(),
	}
}

// CheckParent checks that a revision whose parent is parentID may be added
// to the document whose head is head, nil for a new document. It returns
// the parent the new revision links to and the generation of that parent.
//
// parentID must be the current revision. A commit without a parent is also
// accepted on top of a deletion and extends the deleted branch.
func CheckParent(head *DocInfo, parentID types.RevID) (types.RevID, int, error) {
	if head == nil {
		if !parentID.IsZero() {
			return types.NoRevision, 0, fmt.Errorf("parent %s of new document: %w", parentID, ErrConflictOnCommit)
		}
		return types.NoRevision, 0, nil
	}

	if parentID == head.CurrentRevID {
		return head.CurrentRevID, head.Generation, nil
	}
	if parentID.IsZero() && head.Deleted {
		return head.CurrentRevID, head.Generation, nil
	}

	return types.NoRevision, 0, fmt.Errorf(
		"parent %q of %s is not current %s: %w",
		parentID, head.ID, head.CurrentRevID, ErrConflictOnCommit,
	)
}

// PrepareCommit validates the request against head, computes the id of the
// new revision, applies the staged attachments over the inherited ones and
// writes their content to blobStore. Content written for a commit that is
// rejected later is never referenced and is left to housekeeping, which
// collects unreferenced blobs.
func PrepareCommit(
	ctx context.Context,
	blobStore blobs.Store,
	head *DocInfo,
	req document.CommitRequest,
	now time.Time,
) (*Commit, error) {
	if err := validation.ValidateDocID(req.DocID.String()); err != nil {
		return nil, fmt.Errorf("%q: %s: %w", req.DocID, err.Error(), document.ErrInvalidDocID)
	}
	if req.Properties == nil {
		return nil, fmt.Errorf("commit %s without properties: %w", req.DocID, document.ErrInvalidProperties)
	}

	parentID, generation, err := CheckParent(head, req.ParentID)
	if err != nil {
		return nil, err
	}
	generation++

	if err := validateProperties(req.DocID, req.Properties); err != nil {
		return nil, err
	}

	stubs, err := attachment.Stubs(req.Properties)
	if err != nil {
		return nil, fmt.Errorf("attachments of %s: %s: %w", req.DocID, err.Error(), document.ErrInvalidAttachment)
	}
	for name, stub := range stubs {
		has, err := blobStore.Has(ctx, stub.Digest)
		if err != nil {
			return nil, fmt.Errorf("check attachment %q: %w", name, err)
		}
		if !has {
			return nil, fmt.Errorf("attachment %q has no content: %w", name, document.ErrInvalidAttachment)
		}
	}

	var puts []*attachment.Attachment
	for _, name := range req.Attachments.Names() {
		entry, _ := req.Attachments.Get(name)
		if entry.IsTombstone() {
			delete(stubs, name)
			continue
		}

		att := entry.Attachment()
		if err := validateAttachment(name, att); err != nil {
			return nil, err
		}
		stubs[name] = attachment.StubOf(att, generation)
		puts = append(puts, att)
	}

	deleted := req.Properties.IsDeleted()

	// _rev holds the parent while the id is computed, so that the same body
	// committed on different parents gets different ids.
	body := properties.New()
	body.Set(properties.KeyID, req.DocID.String())
	body.Set(properties.KeyRev, parentID.String())
	for _, key := range req.Properties.Keys() {
		if key == properties.KeyID || key == properties.KeyRev || key == properties.KeyAttachments {
			continue
		}
		value, _ := req.Properties.Get(key)
		body.Set(key, value)
	}
	body.SetDeleted(deleted)
	attachment.SetStubs(body, stubs)

	digest, err := bodyDigest(body)
	if err != nil {
		return nil, fmt.Errorf("encode body of %s: %s: %w", req.DocID, err.Error(), document.ErrInvalidProperties)
	}
	revID := types.NewRevID(generation, digest)
	body.Set(properties.KeyRev, revID.String())

	for _, att := range puts {
		if err := blobStore.Put(ctx, att.Digest(), att.Content()); err != nil {
			return nil, fmt.Errorf("store attachment %s: %w", att.Digest(), err)
		}
	}

	encoded, err := EncodeBody(body)
	if err != nil {
		return nil, err
	}
	stored, err := DecodeBody(encoded)
	if err != nil {
		return nil, err
	}

	return &Commit{
		Rev: &RevInfo{
			DocID:      req.DocID,
			RevID:      revID,
			ParentID:   parentID,
			Generation: generation,
			Deleted:    deleted,
			Body:       encoded,
			CreatedAt:  now,
		},
		Body: stored,
	}, nil
}

func validateProperties(docID types.DocID, props *properties.Set) error {
	for _, key := range props.Keys() {
		if strings.HasPrefix(key, "_") && !properties.IsReserved(key) {
			return fmt.Errorf("unknown metadata key %q: %w", key, document.ErrInvalidProperties)
		}
	}

	if value, ok := props.Get(properties.KeyID); ok {
		id, isString := value.(string)
		if !isString || types.DocID(id) != docID {
			return fmt.Errorf("_id %v does not match %s: %w", value, docID, document.ErrInvalidProperties)
		}
	}

	if value, ok := props.Get(properties.KeyDeleted); ok {
		if _, isBool := value.(bool); !isBool {
			return fmt.Errorf("_deleted %v is not a boolean: %w", value, document.ErrInvalidProperties)
		}
	}

	for _, key := range props.Keys() {
		value, _ := props.Get(key)
		if err := validateValue(value); err != nil {
			return fmt.Errorf("value of %q: %s: %w", key, err.Error(), document.ErrInvalidProperties)
		}
	}
	return nil
}

// validateValue rejects values that do not survive a JSON round trip. Raw
// bytes belong in attachments.
func validateValue(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return fmt.Errorf("raw bytes are not a property value, use an attachment")
	case map[string]interface{}:
		for key, val := range v {
			if err := validateValue(val); err != nil {
				return fmt.Errorf("%q: %w", key, err)
			}
		}
	case []interface{}:
		for i, val := range v {
			if err := validateValue(val); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	}
	return nil
}

func validateAttachment(name string, att *attachment.Attachment) error {
	if att == nil {
		return fmt.Errorf("attachment %q without content: %w", name, document.ErrInvalidAttachment)
	}
	if err := validation.ValidateAttachmentName(name); err != nil {
		return fmt.Errorf("attachment %q: %s: %w", name, err.Error(), document.ErrInvalidAttachment)
	}
	if err := validation.ValidateContentType(att.ContentType); err != nil {
		return fmt.Errorf("attachment %q: %s: %w", name, err.Error(), document.ErrInvalidAttachment)
	}
	return nil
}

func bodyDigest(body *properties.Set) (string, error) {
	data, err := body.MarshalJSON()
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// EncodeBody encodes a body for storage.
func EncodeBody(body *properties.Set) ([]byte, error) {
	data, err := body.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode body: %s: %w", err.Error(), document.ErrInvalidProperties)
	}
	return data, nil
}

// DecodeBody decodes a stored body.
func DecodeBody(data []byte) (*properties.Set, error) {
	body := properties.New()
	if err := body.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decode body: %s: %w", err.Error(), ErrCorruptedRecord)
	}
	return body, nil
}

// Ancestry walks the parent links from rev up to the root with lookup and
// returns the lineage oldest first, ending with rev.
func Ancestry(rev *RevInfo, lookup func(revID types.RevID) (*RevInfo, error)) ([]document.RevisionInfo, error) {
	lineage := make([]document.RevisionInfo, 0, rev.Generation)
	lineage = append(lineage, rev.ToRevisionInfo())

	for current := rev; current.HasParent(); {
		parent, err := lookup(current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("parent %s of %s: %w", current.ParentID, current.RevID, err)
		}
		lineage = append(lineage, parent.ToRevisionInfo())
		current = parent
	}

	slices.Reverse(lineage)
	return lineage, nil
}

// OpenAttachment opens the blob stored under digest.
func OpenAttachment(ctx context.Context, blobStore blobs.Store, digest string) (io.ReadCloser, error) {
	rc, err := blobStore.Get(ctx, digest)
	if errors.Is(err, blobs.ErrBlobNotFound) || errors.Is(err, blobs.ErrInvalidDigest) {
		return nil, fmt.Errorf("%s: %w", digest, document.ErrAttachmentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open attachment %s: %w", digest, err)
	}
	return rc, nil
}
