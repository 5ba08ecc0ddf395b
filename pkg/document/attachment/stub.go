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
	"encoding/json"
	"fmt"

	"github.com/revdoc/revdoc/pkg/document/properties"
)

// Stub is the metadata of a committed attachment as kept in the
// "_attachments" key of a revision body. The content lives in the blob store
// under Digest.
type Stub struct {
	ContentType string
	Digest      string
	Length      int64
	RevPos      int
}

// StubOf returns the stub that att will have once committed at revpos.
func StubOf(att *Attachment, revpos int) Stub {
	return Stub{
		ContentType: att.ContentType,
		Digest:      att.Digest(),
		Length:      att.Length(),
		RevPos:      revpos,
	}
}

// ToMap returns the body representation of the stub.
func (s Stub) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"content_type": s.ContentType,
		"digest":       s.Digest,
		"length":       s.Length,
		"revpos":       s.RevPos,
		"stub":         true,
	}
}

// Stubs returns the attachment stubs of the given body.
func Stubs(props *properties.Set) (map[string]Stub, error) {
	stubs := make(map[string]Stub)

	raw, ok := props.Get(properties.KeyAttachments)
	if !ok || raw == nil {
		return stubs, nil
	}

	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s is %T: %w", properties.KeyAttachments, raw, ErrInvalidStub)
	}

	for name, value := range m {
		stub, err := stubFromMap(value)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", name, err)
		}
		stubs[name] = stub
	}
	return stubs, nil
}

// SetStubs replaces the "_attachments" key of the given body. An empty map
// removes the key.
func SetStubs(props *properties.Set, stubs map[string]Stub) {
	if len(stubs) == 0 {
		props.Delete(properties.KeyAttachments)
		return
	}

	m := make(map[string]interface{}, len(stubs))
	for name, stub := range stubs {
		m[name] = stub.ToMap()
	}
	props.Set(properties.KeyAttachments, m)
}

func stubFromMap(value interface{}) (Stub, error) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return Stub{}, fmt.Errorf("stub is %T: %w", value, ErrInvalidStub)
	}

	digest, _ := m["digest"].(string)
	if digest == "" {
		return Stub{}, fmt.Errorf("missing digest: %w", ErrInvalidStub)
	}
	contentType, _ := m["content_type"].(string)
	length, ok := toInt64(m["length"])
	if !ok {
		return Stub{}, fmt.Errorf("invalid length %v: %w", m["length"], ErrInvalidStub)
	}
	revpos, _ := toInt64(m["revpos"])

	return Stub{
		ContentType: contentType,
		Digest:      digest,
		Length:      length,
		RevPos:      int(revpos),
	}, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
