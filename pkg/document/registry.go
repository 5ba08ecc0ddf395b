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

	"github.com/rs/xid"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/internal/validation"
	"github.com/revdoc/revdoc/pkg/cache"
)

// DefaultRegistrySize is the number of document handles a Registry keeps.
const DefaultRegistrySize = 1000

// Registry maps document ids to Document handles of one Store. Recently
// used handles are cached, so repeated lookups of a document share the
// same SavedRevision instances.
type Registry struct {
	store Store
	docs  *cache.LRU[types.DocID, *Document]
}

// NewRegistry creates a Registry over store caching up to size handles.
func NewRegistry(store Store, size int) (*Registry, error) {
	docs, err := cache.NewLRU[types.DocID, *Document]("documents", size)
	if err != nil {
		return nil, fmt.Errorf("new registry: %w", err)
	}

	return &Registry{store: store, docs: docs}, nil
}

// Store returns the store of the registry.
func (r *Registry) Store() Store {
	return r.store
}

// Document returns the handle of the document with the given id. The
// document need not exist yet.
func (r *Registry) Document(id string) (*Document, error) {
	if err := validation.ValidateDocID(id); err != nil {
		return nil, fmt.Errorf("document %q: %s: %w", id, err.Error(), ErrInvalidDocID)
	}

	return r.handle(types.DocID(id)), nil
}

// NewDocument returns the handle of a document with a fresh id.
func (r *Registry) NewDocument() *Document {
	return r.handle(types.DocID(xid.New().String()))
}

func (r *Registry) handle(docID types.DocID) *Document {
	if doc, ok := r.docs.Get(docID); ok {
		return doc
	}
	doc, _ := r.docs.GetOrAdd(docID, New(r.store, docID))
	return doc
}

// ExistingDocument returns the handle of the document with the given id. It
// returns ErrDocumentNotFound if the document has never been saved.
func (r *Registry) ExistingDocument(ctx context.Context, id string) (*Document, error) {
	doc, err := r.Document(id)
	if err != nil {
		return nil, err
	}

	if _, err := doc.CurrentRevision(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// CacheStats returns the statistics of the handle cache.
func (r *Registry) CacheStats() *cache.Stats {
	return r.docs.Stats()
}
