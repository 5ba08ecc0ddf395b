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

// Package properties provides Set, the ordered key/value body of a document
// revision. Keys beginning with "_" are metadata owned by the store; all other
// keys are user properties.
package properties

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/revdoc/revdoc/api/types"
)

// Reserved metadata keys.
const (
	KeyID          = "_id"
	KeyRev         = "_rev"
	KeyDeleted     = "_deleted"
	KeyAttachments = "_attachments"
)

// IsReserved returns whether the key is a metadata key.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, "_")
}

// Set is an ordered mapping from string keys to JSON-like values: string,
// number, bool, nil, map[string]interface{} and []interface{}. Values are
// deep-copied on the way in, so a Set never aliases the maps or slices of
// its caller.
//
// Decoded integers are int64 and other numbers float64, so integers beyond
// 2^53 keep their value across an encode and decode.
type Set struct {
	keys   []string
	values map[string]interface{}
}

// New creates an empty Set.
func New() *Set {
	return &Set{values: make(map[string]interface{})}
}

// FromMap creates a Set from the given map. Keys are ordered
// lexicographically since map iteration order is undefined.
func FromMap(m map[string]interface{}) *Set {
	s := New()
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		s.Set(key, m[key])
	}
	return s
}

// Len returns the number of keys.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns the keys in insertion order.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.keys)
}

// Has returns whether the key is present.
func (s *Set) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.values[key]
	return ok
}

// Get returns the value of the key. Nested maps and slices are shared with
// the Set and must not be modified.
func (s *Set) Get(key string) (interface{}, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the value of the key if it is a string.
func (s *Set) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Set sets the value of the key. A new key is appended at the end; an
// existing key keeps its position.
func (s *Set) Set(key string, value interface{}) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = copyValue(value)
}

// Delete removes the key.
func (s *Set) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.keys = slices.DeleteFunc(s.keys, func(k string) bool { return k == key })
}

// ID returns the "_id" metadata.
func (s *Set) ID() types.DocID {
	return types.DocID(s.GetString(KeyID))
}

// RevID returns the "_rev" metadata.
func (s *Set) RevID() types.RevID {
	return types.RevID(s.GetString(KeyRev))
}

// IsDeleted returns the "_deleted" metadata.
func (s *Set) IsDeleted() bool {
	v, _ := s.Get(KeyDeleted)
	deleted, _ := v.(bool)
	return deleted
}

// SetDeleted sets "_deleted" to true, or removes it.
func (s *Set) SetDeleted(deleted bool) {
	if deleted {
		s.Set(KeyDeleted, true)
		return
	}
	s.Delete(KeyDeleted)
}

// UserProperties returns a copy of the non-metadata keys.
func (s *Set) UserProperties() map[string]interface{} {
	user := make(map[string]interface{})
	if s == nil {
		return user
	}
	for _, key := range s.keys {
		if !IsReserved(key) {
			user[key] = copyValue(s.values[key])
		}
	}
	return user
}

// SetUserProperties replaces every key with the given ones, except the
// metadata keys of this Set which are kept verbatim and win over metadata
// keys of the same name in user.
func (s *Set) SetUserProperties(user map[string]interface{}) {
	meta := make(map[string]interface{})
	var metaKeys []string
	for _, key := range s.keys {
		if IsReserved(key) {
			metaKeys = append(metaKeys, key)
			meta[key] = s.values[key]
		}
	}

	next := New()
	for _, key := range metaKeys {
		next.keys = append(next.keys, key)
		next.values[key] = meta[key]
	}

	userKeys := make([]string, 0, len(user))
	for key := range user {
		if _, ok := meta[key]; !ok {
			userKeys = append(userKeys, key)
		}
	}
	sort.Strings(userKeys)
	for _, key := range userKeys {
		next.Set(key, user[key])
	}

	s.keys, s.values = next.keys, next.values
}

// ToMap returns a deep copy of this Set as a map.
func (s *Set) ToMap() map[string]interface{} {
	m := make(map[string]interface{})
	if s == nil {
		return m
	}
	for _, key := range s.keys {
		m[key] = copyValue(s.values[key])
	}
	return m
}

// DeepCopy returns a copy that shares no maps or slices with this Set.
func (s *Set) DeepCopy() *Set {
	if s == nil {
		return nil
	}

	clone := &Set{
		keys:   slices.Clone(s.keys),
		values: make(map[string]interface{}, len(s.values)),
	}
	for key, value := range s.values {
		clone.values[key] = copyValue(value)
	}
	return clone
}

// Equal reports whether both Sets hold the same keys with deeply equal
// values. Key order is not significant, and numbers are compared by value
// regardless of their Go type.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	return cmp.Equal(canonical(s.ToMap()), canonical(other.ToMap()))
}

// String returns the JSON representation of this Set.
func (s *Set) String() string {
	data, err := s.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid properties: %v>", err)
	}
	return string(data)
}

// MarshalJSON encodes the Set as a JSON object in key order.
func (s *Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if s != nil {
		for i, key := range s.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(key)
			if err != nil {
				return nil, fmt.Errorf("marshal key %q: %w", key, err)
			}
			v, err := json.Marshal(s.values[key])
			if err != nil {
				return nil, fmt.Errorf("marshal value of %q: %w", key, err)
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the order of its top-level
// keys.
func (s *Set) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("unmarshal properties: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("unmarshal properties: expected object, got %v", tok)
	}

	next := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("unmarshal properties: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unmarshal properties: unexpected key %v", tok)
		}

		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("unmarshal value of %q: %w", key, err)
		}
		next.Set(key, decodeNumbers(value))
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("unmarshal properties: %w", err)
	}

	*s = *next
	return nil
}

// decodeNumbers replaces the json.Number values of a decoded value with
// int64, or float64 when the number is not an integer in range.
func decodeNumbers(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			v[key] = decodeNumbers(val)
		}
		return v
	case []interface{}:
		for i, val := range v {
			v[i] = decodeNumbers(val)
		}
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return v
	}
}

func copyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for key, val := range v {
			m[key] = copyValue(val)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(v))
		for i, val := range v {
			l[i] = copyValue(val)
		}
		return l
	case map[string]string:
		m := make(map[string]interface{}, len(v))
		for key, val := range v {
			m[key] = val
		}
		return m
	case []string:
		l := make([]interface{}, len(v))
		for i, val := range v {
			l[i] = val
		}
		return l
	case []byte:
		return slices.Clone(v)
	case *Set:
		return v.ToMap()
	default:
		return v
	}
}

// canonical converts numbers to int64 when they hold an integer that fits,
// and to float64 otherwise, so that numbers compare by value whatever their
// Go type.
func canonical(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for key, val := range v {
			m[key] = canonical(val)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(v))
		for i, val := range v {
			l[i] = canonical(val)
		}
		return l
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return canonicalUint(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return canonicalUint(v)
	case float32:
		return canonicalFloat(float64(v))
	case float64:
		return canonicalFloat(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return canonicalFloat(f)
		}
		return v.String()
	default:
		return v
	}
}

func canonicalUint(v uint64) interface{} {
	if v > math.MaxInt64 {
		return float64(v)
	}
	return int64(v)
}

func canonicalFloat(v float64) interface{} {
	if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
		return int64(v)
	}
	return v
}
