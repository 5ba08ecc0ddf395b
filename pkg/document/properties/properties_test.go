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

package properties_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revdoc/revdoc/api/types"
	"github.com/revdoc/revdoc/pkg/document/properties"
)

func TestSet(t *testing.T) {
	t.Run("ordered keys test", func(t *testing.T) {
		s := properties.New()
		s.Set("_id", "doc1")
		s.Set("title", "x")
		s.Set("count", 1)
		s.Set("title", "y")
		assert.Equal(t, []string{"_id", "title", "count"}, s.Keys())

		s.Delete("title")
		s.Delete("missing")
		assert.Equal(t, []string{"_id", "count"}, s.Keys())
		assert.Equal(t, 2, s.Len())
		assert.False(t, s.Has("title"))
	})

	t.Run("metadata accessors test", func(t *testing.T) {
		s := properties.FromMap(map[string]interface{}{
			"_id":  "doc1",
			"_rev": "1-abc",
		})
		assert.Equal(t, types.DocID("doc1"), s.ID())
		assert.Equal(t, types.RevID("1-abc"), s.RevID())
		assert.False(t, s.IsDeleted())

		s.SetDeleted(true)
		assert.True(t, s.IsDeleted())
		s.SetDeleted(false)
		assert.False(t, s.Has(properties.KeyDeleted))
	})

	t.Run("deep copy does not alias test", func(t *testing.T) {
		nested := map[string]interface{}{"a": []interface{}{1, 2}}
		s := properties.New()
		s.Set("nested", nested)

		// the caller's map is copied on the way in
		nested["a"] = "changed"
		v, _ := s.Get("nested")
		assert.Equal(t, []interface{}{1, 2}, v.(map[string]interface{})["a"])

		clone := s.DeepCopy()
		cv, _ := clone.Get("nested")
		cv.(map[string]interface{})["a"].([]interface{})[0] = 100

		v, _ = s.Get("nested")
		assert.Equal(t, 1, v.(map[string]interface{})["a"].([]interface{})[0])
		assert.False(t, s.Equal(clone))
	})

	t.Run("set user properties keeps metadata test", func(t *testing.T) {
		s := properties.FromMap(map[string]interface{}{
			"_id":          "doc1",
			"_rev":         "1-abc",
			"_attachments": map[string]interface{}{"a.txt": map[string]interface{}{"stub": true}},
			"title":        "old",
			"tags":         []interface{}{"x"},
		})
		meta := map[string]interface{}{}
		for _, key := range s.Keys() {
			if properties.IsReserved(key) {
				v, _ := s.Get(key)
				meta[key] = v
			}
		}

		user := map[string]interface{}{"title": "new", "_id": "hijack"}
		s.SetUserProperties(user)

		assert.Equal(t, types.DocID("doc1"), s.ID())
		assert.False(t, s.Has("tags"))
		assert.Equal(t, "new", s.GetString("title"))
		for key, value := range meta {
			v, ok := s.Get(key)
			assert.True(t, ok, key)
			assert.Equal(t, value, v)
		}
		assert.Equal(t, map[string]interface{}{"title": "new"}, s.UserProperties())
	})

	t.Run("equal test", func(t *testing.T) {
		a := properties.New()
		a.Set("n", 1)
		a.Set("s", "x")
		b := properties.New()
		b.Set("s", "x")
		b.Set("n", float64(1))
		assert.True(t, a.Equal(b))

		b.Set("extra", nil)
		assert.False(t, a.Equal(b))
		assert.True(t, properties.New().Equal(nil))
	})
}

func TestJSON(t *testing.T) {
	t.Run("marshal keeps order test", func(t *testing.T) {
		s := properties.New()
		s.Set("_id", "doc1")
		s.Set("zeta", 1)
		s.Set("alpha", map[string]interface{}{"k": true})

		data, err := json.Marshal(s)
		require.NoError(t, err)
		assert.Equal(t, `{"_id":"doc1","zeta":1,"alpha":{"k":true}}`, string(data))
	})

	t.Run("unmarshal keeps order test", func(t *testing.T) {
		s := properties.New()
		require.NoError(t, json.Unmarshal([]byte(`{"b":1,"a":[1,"x"],"_id":"doc1"}`), s))
		assert.Equal(t, []string{"b", "a", "_id"}, s.Keys())

		v, _ := s.Get("a")
		assert.Equal(t, []interface{}{int64(1), "x"}, v)
	})

	t.Run("unmarshal keeps large integers test", func(t *testing.T) {
		s := properties.New()
		require.NoError(t, json.Unmarshal([]byte(`{"big":9007199254740993,"f":0.5,"n":{"k":[3]}}`), s))

		big, _ := s.Get("big")
		assert.Equal(t, int64(9007199254740993), big)
		f, _ := s.Get("f")
		assert.Equal(t, 0.5, f)
		n, _ := s.Get("n")
		assert.Equal(t, map[string]interface{}{"k": []interface{}{int64(3)}}, n)

		near := properties.New()
		near.Set("big", float64(9007199254740992))
		near.Set("f", 0.5)
		near.Set("n", map[string]interface{}{"k": []interface{}{3}})
		assert.False(t, s.Equal(near))
		near.Set("big", uint64(9007199254740993))
		assert.True(t, s.Equal(near))
	})

	t.Run("unmarshal rejects non objects test", func(t *testing.T) {
		s := properties.New()
		assert.Error(t, json.Unmarshal([]byte(`[1,2]`), s))
		assert.Error(t, json.Unmarshal([]byte(`{"a":`), s))
	})

	t.Run("round trip compares equal test", func(t *testing.T) {
		s := properties.New()
		s.Set("title", "x")
		s.Set("count", int64(42))
		s.Set("nested", map[string]interface{}{"list": []interface{}{1, 2.5, nil}})

		data, err := s.MarshalJSON()
		require.NoError(t, err)

		decoded := properties.New()
		require.NoError(t, decoded.UnmarshalJSON(data))
		assert.True(t, s.Equal(decoded))
	})
}
