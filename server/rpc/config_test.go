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

package rpc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/revdoc/revdoc/server/rpc"
)

func TestConfig(t *testing.T) {
	t.Run("validate test", func(t *testing.T) {
		validConf := rpc.Config{
			Port:            8080,
			MaxRequestBytes: 1024,
			ReadTimeout:     "5s",
		}
		assert.NoError(t, validConf.Validate())
		assert.Equal(t, 5*time.Second, validConf.ParseReadTimeout())

		conf1 := validConf
		conf1.Port = -1
		assert.ErrorIs(t, conf1.Validate(), rpc.ErrInvalidRPCPort)

		conf2 := validConf
		conf2.MaxRequestBytes = 0
		assert.ErrorIs(t, conf2.Validate(), rpc.ErrInvalidMaxRequestBytes)

		conf3 := validConf
		conf3.ReadTimeout = "soon"
		assert.Error(t, conf3.Validate())
	})
}
