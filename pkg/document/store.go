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
	"io"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document/attachment"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/pkg/errors"
)

var (
	// ErrConflict is returned when a draft is committed against a parent that
	// is no longer the current revision of its document.
	ErrConflict = errors.FailedPrecond("document update conflict").WithCode("ErrConflict")

	// ErrDraftAlreadySaved is returned when Save is called twice on a draft.
	ErrDraftAlreadySaved = errors.FailedPrecond("draft revision already saved").WithCode("ErrDraftAlreadySaved")

	// ErrDocumentNotFound is returned when a document has no revision.
	ErrDocumentNotFound = errors.NotFound("document not found").WithCode("ErrDocumentNotFound")

	// ErrRevisionNotFound is returned when a revision does not exist.
	ErrRevisionNotFound = errors.NotFound("revision not found").WithCode("ErrRevisionNotFound")

	// ErrBodyNotFound is returned when a revision exists but its body has
	// been compacted away or was never stored.
	ErrBodyNotFound = errors.NotFound("revision body not found").WithCode("ErrBodyNotFound")

	// ErrAttachmentNotFound is returned when a revision has no attachment of
	// the requested name, or its content is missing from the blob store.
	ErrAttachmentNotFound = errors.NotFound("attachment not found").WithCode("ErrAttachmentNotFound")

	// ErrInvalidProperties is returned when the store rejects a body.
	ErrInvalidProperties = errors.InvalidArgument("invalid properties").WithCode("ErrInvalidProperties")

	// ErrInvalidAttachment is returned when the store rejects an attachment.
	ErrInvalidAttachment = errors.InvalidArgument("invalid attachment").WithCode("ErrInvalidAttachment")

	// ErrInvalidDocID is returned when a document id is malformed.
	ErrInvalidDocID = errors.InvalidArgument("invalid document id").WithCode("ErrInvalidDocID")
)

// IsConflict returns whether err is a stale-parent conflict, the signal to
// re-read the current revision, merge and retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns whether err reports a missing document, revision, body
// or attachment.
func IsNotFound(err error) bool {
	return errors.IsStatus(err, errors.ErrCodeNotFound)
}

// IsValidation returns whether err reports a body or attachment rejected by
// validation.
func IsValidation(err error) bool {
	return errors.IsStatus(err, errors.ErrCodeInvalidArgument)
}

// IsIO returns whether err reports a failure to read attachment content.
func IsIO(err error) bool {
	return errors.IsStatus(err, errors.ErrCodeUnavailable)
}

// RevisionInfo identifies a committed revision of a document.
type RevisionInfo struct {
	DocID    types.DocID
	RevID    types.RevID
	Sequence types.Sequence
	Deleted  bool
}

// CommitRequest is a draft submitted to Store.Commit.
type CommitRequest struct {
	DocID types.DocID

	// ParentID is the revision the draft was created from, or
	// types.NoRevision for a new document.
	ParentID types.RevID

	Properties  *properties.Set
	Attachments *attachment.Stage
}

// CommitResult is the outcome of a successful commit.
type CommitResult struct {
	Info RevisionInfo

	// Properties is the committed body, with "_id", "_rev" and
	// "_attachments" as stored.
	Properties *properties.Set
}

// Store is the revision-tree storage the revisions read from and commit to.
// Implementations live in server/backend/database.
type Store interface {
	// LoadBody returns the body of the given revision. It returns
	// ErrBodyNotFound if the revision exists without a body.
	LoadBody(ctx context.Context, docID types.DocID, revID types.RevID) (*properties.Set, error)

	// Revision returns the info of the given revision.
	Revision(ctx context.Context, docID types.DocID, revID types.RevID) (RevisionInfo, error)

	// Parent returns the parent of the given revision. The boolean is false
	// if the revision is a root.
	Parent(ctx context.Context, docID types.DocID, revID types.RevID) (RevisionInfo, bool, error)

	// Ancestry returns the lineage of the given revision, oldest first,
	// ending with the revision itself.
	Ancestry(ctx context.Context, docID types.DocID, revID types.RevID) ([]RevisionInfo, error)

	// CurrentRevision returns the winning revision of the document. The
	// boolean is false if the document has never been saved.
	CurrentRevision(ctx context.Context, docID types.DocID) (RevisionInfo, bool, error)

	// Commit stores the draft as a child of req.ParentID together with its
	// staged attachments. It fails with ErrConflict, leaving the document
	// unchanged, unless req.ParentID is the current revision.
	Commit(ctx context.Context, req CommitRequest) (CommitResult, error)

	// OpenAttachment opens the content stored under the given digest.
	OpenAttachment(ctx context.Context, digest string) (io.ReadCloser, error)
}
