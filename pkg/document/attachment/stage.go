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

package attachment

import (
	"maps"
	"slices"
)

// EntryKind tells whether a staged entry adds or removes an attachment.
type EntryKind int

const (
	// KindPut stages a new or replacing attachment.
	KindPut EntryKind = iota

	// KindTombstone stages the removal of an attachment.
	KindTombstone
)

// Entry is one staged mutation: either a Put carrying an Attachment or a
// Tombstone.
type Entry struct {
	kind       EntryKind
	attachment *Attachment
}

// Put returns an entry that adds att.
func Put(att *Attachment) Entry {
	return Entry{kind: KindPut, attachment: att}
}

// Tombstone returns an entry that removes an attachment.
func Tombstone() Entry {
	return Entry{kind: KindTombstone}
}

// Kind returns the kind of the entry.
func (e Entry) Kind() EntryKind {
	return e.kind
}

// IsTombstone returns whether the entry removes an attachment.
func (e Entry) IsTombstone() bool {
	return e.kind == KindTombstone
}

// Attachment returns the attachment of a Put entry, or nil for a Tombstone.
func (e Entry) Attachment() *Attachment {
	return e.attachment
}

// Stage holds attachment mutations that have not been committed yet. The
// last entry staged for a name wins.
type Stage struct {
	entries map[string]Entry
}

// NewStage creates an empty Stage.
func NewStage() *Stage {
	return &Stage{entries: make(map[string]Entry)}
}

// Put stages att under name.
func (s *Stage) Put(name string, att *Attachment) {
	s.entries[name] = Put(att)
}

// Delete stages a tombstone for name.
func (s *Stage) Delete(name string) {
	s.entries[name] = Tombstone()
}

// Get returns the entry staged for name.
func (s *Stage) Get(name string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.entries[name]
	return e, ok
}

// Len returns the number of staged names.
func (s *Stage) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Names returns the staged names in lexicographic order.
func (s *Stage) Names() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.entries))
}

// Clone returns a copy of the Stage. Attachments are immutable and shared.
func (s *Stage) Clone() *Stage {
	if s == nil {
		return NewStage()
	}
	return &Stage{entries: maps.Clone(s.entries)}
}
