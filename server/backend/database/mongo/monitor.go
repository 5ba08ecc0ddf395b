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

package mongo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/event"
	"go.uber.org/zap"

	"github.com/revdoc/revdoc/server/logging"
)

// QueryMonitor logs the commands sent to MongoDB, and warns about slow or
// unexpectedly failing ones.
type QueryMonitor struct {
	logger        logging.Logger
	slowThreshold time.Duration
}

// NewQueryMonitor creates a QueryMonitor. A zero slowThreshold disables
// slow query warnings.
func NewQueryMonitor(slowThreshold time.Duration) *QueryMonitor {
	return &QueryMonitor{
		logger:        logging.New("mongo"),
		slowThreshold: slowThreshold,
	}
}

// CommandMonitor returns the event.CommandMonitor to register on the client.
func (m *QueryMonitor) CommandMonitor() *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(_ context.Context, evt *event.CommandStartedEvent) {
			if logging.Enabled(zap.DebugLevel) {
				m.logger.Debugf("STAR: %d(%s): %s", evt.RequestID, evt.CommandName, evt.Command)
			}
		},
		Succeeded: func(_ context.Context, evt *event.CommandSucceededEvent) {
			if m.slowThreshold > 0 && evt.Duration > m.slowThreshold {
				m.logger.Warnf("SLOW: %d(%s): %s", evt.RequestID, evt.CommandName, evt.Duration)
				return
			}
			m.logger.Debugf("SUCC: %d(%s): %s", evt.RequestID, evt.CommandName, evt.Duration)
		},
		Failed: func(_ context.Context, evt *event.CommandFailedEvent) {
			if isLostRace(evt.Failure) {
				m.logger.Debugf("FAIL: %d(%s), %s: %s", evt.RequestID, evt.CommandName, evt.Failure, evt.Duration)
				return
			}
			m.logger.Warnf("FAIL: %d(%s), %s: %s", evt.RequestID, evt.CommandName, evt.Failure, evt.Duration)
		},
	}
}

// isLostRace reports whether a failure is a duplicate revision or head
// insert lost to a racing commit, which the client turns into a conflict.
func isLostRace(failure error) bool {
	if failure == nil {
		return false
	}

	msg := failure.Error()
	if !strings.Contains(msg, "E11000 duplicate key") {
		return false
	}
	return strings.Contains(msg, ColRevisions) || strings.Contains(msg, ColDocuments)
}
