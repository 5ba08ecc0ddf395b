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

package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLogging(t *testing.T) {
	t.Run("set log level test", func(t *testing.T) {
		defer func() { assert.NoError(t, SetLogLevel("info")) }()

		assert.NoError(t, SetLogLevel("warn"))
		assert.False(t, Enabled(zapcore.InfoLevel))
		assert.True(t, Enabled(zapcore.ErrorLevel))

		assert.Error(t, SetLogLevel("verbose"))
	})

	t.Run("context logger test", func(t *testing.T) {
		assert.Equal(t, DefaultLogger(), From(context.Background()))

		logger := New("revision", NewField("doc_id", "doc1"))
		ctx := With(context.Background(), logger)
		assert.Equal(t, logger, From(ctx))
	})
}
