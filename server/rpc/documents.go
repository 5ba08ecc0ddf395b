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

package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document"
	"github.com/revdoc/revdoc/pkg/document/properties"
	"github.com/revdoc/revdoc/server/backend"
	"github.com/revdoc/revdoc/server/backend/database"
)

// docInfoResponse describes the head of a document.
type docInfoResponse struct {
	ID         string    `json:"id"`
	Rev        string    `json:"rev"`
	Generation int       `json:"generation"`
	Deleted    bool      `json:"deleted,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// revisionResponse describes one revision of a document.
type revisionResponse struct {
	Rev      string `json:"rev"`
	Sequence int64  `json:"seq"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// saveResponse is the answer to a successful write.
type saveResponse struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// documentService serves the document resources over a backend.
type documentService struct {
	registry *document.Registry
	db       database.Database
}

func newDocumentService(be *backend.Backend) *documentService {
	return &documentService{registry: be.Registry, db: be.DB}
}

func registerDocumentRoutes(app *fiber.App, s *documentService) {
	docs := app.Group("/docs")
	docs.Get("/", s.listDocuments)
	docs.Get("/:id", s.getDocument)
	docs.Put("/:id", s.putDocument)
	docs.Delete("/:id", s.deleteDocument)
	docs.Get("/:id/history", s.getHistory)
	docs.Post("/:id/compact", s.compactDocument)
	docs.Get("/:id/attachments/:name", s.getAttachment)
	docs.Put("/:id/attachments/:name", s.putAttachment)
	docs.Delete("/:id/attachments/:name", s.deleteAttachment)
}

func (s *documentService) listDocuments(c *fiber.Ctx) error {
	infos, err := s.db.ListDocInfos(c.UserContext())
	if err != nil {
		return err
	}

	resp := make([]docInfoResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, docInfoResponse{
			ID:         info.ID.String(),
			Rev:        info.CurrentRevID.String(),
			Generation: info.Generation,
			Deleted:    info.Deleted,
			UpdatedAt:  info.UpdatedAt,
		})
	}
	return c.JSON(resp)
}

// getDocument answers the body of the current revision, or of the revision
// named by the "rev" query. A deleted document is not found unless a
// revision is named.
func (s *documentService) getDocument(c *fiber.Ctx) error {
	rev, err := s.requestedRevision(c)
	if err != nil {
		return err
	}

	props, err := rev.Properties(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(props)
}

// putDocument saves the request body as a new revision. The body names its
// parent with "_rev"; without one it may only create the document or
// re-create a deleted one.
func (s *documentService) putDocument(c *fiber.Ctx) error {
	ctx := c.UserContext()
	doc, err := s.registry.Document(c.Params("id"))
	if err != nil {
		return err
	}

	props := properties.New()
	if err := props.UnmarshalJSON(c.Body()); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), document.ErrInvalidProperties)
	}
	if !props.Has(properties.KeyID) {
		props.Set(properties.KeyID, doc.ID().String())
	}

	draft, err := s.draftOf(ctx, doc, props.RevID())
	if err != nil {
		return err
	}
	draft.SetProperties(props)

	return s.save(c, draft)
}

// deleteDocument saves a deletion on top of the revision named by "rev".
func (s *documentService) deleteDocument(c *fiber.Ctx) error {
	ctx := c.UserContext()
	doc, err := s.registry.Document(c.Params("id"))
	if err != nil {
		return err
	}

	revID := types.RevID(c.Query("rev"))
	if revID == types.NoRevision {
		return fmt.Errorf("delete %s: %w", doc.ID(), ErrRevisionRequired)
	}
	parent, err := doc.Revision(ctx, revID)
	if err != nil {
		return err
	}

	rev, err := parent.DeleteDocument(ctx)
	if err != nil {
		return err
	}
	return c.JSON(saveResponse{OK: true, ID: rev.DocumentID().String(), Rev: rev.ID().String()})
}

// getHistory answers the lineage of the revision named by "rev", or of the
// current revision. A deleted document still has a history.
func (s *documentService) getHistory(c *fiber.Ctx) error {
	ctx := c.UserContext()
	doc, err := s.registry.Document(c.Params("id"))
	if err != nil {
		return err
	}

	var rev *document.SavedRevision
	if revID := types.RevID(c.Query("rev")); revID != types.NoRevision {
		rev, err = doc.Revision(ctx, revID)
	} else {
		rev, err = doc.CurrentRevision(ctx)
	}
	if err != nil {
		return err
	}

	history, err := rev.History(ctx)
	if err != nil {
		return err
	}

	resp := make([]revisionResponse, 0, len(history))
	for _, r := range history {
		resp = append(resp, revisionResponse{
			Rev:      r.ID().String(),
			Sequence: int64(r.Sequence()),
			Deleted:  r.IsDeletion(),
		})
	}
	return c.JSON(resp)
}

func (s *documentService) compactDocument(c *fiber.Ctx) error {
	doc, err := s.registry.Document(c.Params("id"))
	if err != nil {
		return err
	}

	count, err := s.db.Compact(c.UserContext(), doc.ID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "compacted": count})
}

func (s *documentService) getAttachment(c *fiber.Ctx) error {
	rev, err := s.requestedRevision(c)
	if err != nil {
		return err
	}

	name := c.Params("name")
	stub, err := rev.Attachment(c.UserContext(), name)
	if err != nil {
		return err
	}
	rc, err := rev.OpenAttachment(c.UserContext(), name)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, stub.ContentType)
	c.Set(fiber.HeaderETag, fmt.Sprintf("%q", stub.Digest))
	return c.SendStream(rc, int(stub.Length))
}

// putAttachment saves a new revision carrying the request body as the named
// attachment. The parent is named by the "rev" query.
func (s *documentService) putAttachment(c *fiber.Ctx) error {
	ctx := c.UserContext()
	doc, err := s.registry.Document(c.Params("id"))
	if err != nil {
		return err
	}

	draft, err := s.draftOf(ctx, doc, types.RevID(c.Query("rev")))
	if err != nil {
		return err
	}

	content := io.NopCloser(bytes.NewReader(bytes.Clone(c.Body())))
	if err := draft.SetAttachment(c.Params("name"), c.Get(fiber.HeaderContentType), content); err != nil {
		return err
	}

	return s.save(c, draft)
}

func (s *documentService) deleteAttachment(c *fiber.Ctx) error {
	ctx := c.UserContext()
	doc, err := s.registry.Document(c.Params("id"))
	if err != nil {
		return err
	}

	revID := types.RevID(c.Query("rev"))
	if revID == types.NoRevision {
		return fmt.Errorf("delete attachment of %s: %w", doc.ID(), ErrRevisionRequired)
	}
	draft, err := s.draftOf(ctx, doc, revID)
	if err != nil {
		return err
	}

	name := c.Params("name")
	if _, err := draft.Parent().Attachment(ctx, name); err != nil {
		return err
	}
	if err := draft.DeleteAttachment(name); err != nil {
		return err
	}

	return s.save(c, draft)
}

// requestedRevision resolves the revision named by the "rev" query, or the
// current revision of a document that is not deleted.
func (s *documentService) requestedRevision(c *fiber.Ctx) (*document.SavedRevision, error) {
	doc, err := s.registry.Document(c.Params("id"))
	if err != nil {
		return nil, err
	}

	if revID := types.RevID(c.Query("rev")); revID != types.NoRevision {
		return doc.Revision(c.UserContext(), revID)
	}

	rev, err := doc.CurrentRevision(c.UserContext())
	if err != nil {
		return nil, err
	}
	if rev.IsDeletion() {
		return nil, fmt.Errorf("%s is deleted: %w", doc.ID(), document.ErrDocumentNotFound)
	}
	return rev, nil
}

// draftOf returns a draft forked from parentID. Without a parent the
// document must not exist or be deleted.
func (s *documentService) draftOf(
	ctx context.Context,
	doc *document.Document,
	parentID types.RevID,
) (*document.DraftRevision, error) {
	if parentID != types.NoRevision {
		parent, err := doc.Revision(ctx, parentID)
		if err != nil {
			return nil, err
		}
		return parent.CreateDraft(ctx)
	}

	draft, err := doc.CreateDraft(ctx)
	if err != nil {
		return nil, err
	}
	if parent := draft.Parent(); parent != nil && !parent.IsDeletion() {
		return nil, fmt.Errorf("%s exists at %s: %w", doc.ID(), parent.ID(), document.ErrConflict)
	}
	return draft, nil
}

func (s *documentService) save(c *fiber.Ctx, draft *document.DraftRevision) error {
	rev, err := draft.Save(c.UserContext())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(saveResponse{
		OK:  true,
		ID:  rev.DocumentID().String(),
		Rev: rev.ID().String(),
	})
}
