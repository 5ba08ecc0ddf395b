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

// Package types provides the identifiers shared by the revision core, the
// stores and the CLI.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRevID is returned when a revision id is not "<generation>-<digest>".
	ErrInvalidRevID = errors.New("invalid revision id")
)

// DocID is the stable identifier of a document. It never changes across
// revisions.
type DocID string

// String returns the string representation of this DocID.
func (id DocID) String() string {
	return string(id)
}

// RevID identifies one revision of a document. It is "<generation>-<digest>",
// where the generation is the depth of the revision in its tree. Outside the
// stores it is treated as an opaque comparable token.
type RevID string

// NoRevision is the RevID of a document that has not been saved yet.
const NoRevision RevID = ""

// NewRevID returns the RevID of the given generation and digest.
func NewRevID(generation int, digest string) RevID {
	return RevID(strconv.Itoa(generation) + "-" + digest)
}

// ParseRevID parses and validates the given revision id.
func ParseRevID(s string) (RevID, error) {
	rev := RevID(s)
	if rev.Generation() == 0 || rev.Digest() == "" {
		return NoRevision, fmt.Errorf("%q: %w", s, ErrInvalidRevID)
	}
	return rev, nil
}

// String returns the string representation of this RevID.
func (id RevID) String() string {
	return string(id)
}

// IsZero returns whether this RevID is NoRevision.
func (id RevID) IsZero() bool {
	return id == NoRevision
}

// Generation returns the generation of this RevID, or 0 if it is malformed.
func (id RevID) Generation() int {
	prefix, _, found := strings.Cut(string(id), "-")
	if !found {
		return 0
	}

	gen, err := strconv.Atoi(prefix)
	if err != nil || gen < 1 {
		return 0
	}
	return gen
}

// Digest returns the digest part of this RevID.
func (id RevID) Digest() string {
	_, digest, _ := strings.Cut(string(id), "-")
	return digest
}

// Compare orders revision ids by generation, then by digest. It returns -1,
// 0 or +1.
func (id RevID) Compare(other RevID) int {
	if a, b := id.Generation(), other.Generation(); a != b {
		if a < b {
			return -1
		}
		return 1
	}
	return strings.Compare(id.Digest(), other.Digest())
}

// Sequence is the store-wide, monotonically increasing number assigned to
// each committed revision.
type Sequence int64
