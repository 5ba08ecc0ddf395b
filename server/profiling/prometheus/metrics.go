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

// Package prometheus provides the Prometheus metrics of revdoc stores.
package prometheus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/revdoc/revdoc/internal/version"
	"github.com/revdoc/revdoc/pkg/cache"
)

const (
	namespace      = "revdoc"
	backendLabel   = "backend"
	operationLabel = "operation"
	codeLabel      = "code"
	cacheLabel     = "cache"
)

// Metrics manages the metrics of the stores of a process.
type Metrics struct {
	registry *prometheus.Registry

	serverVersion *prometheus.GaugeVec

	storeOperationSeconds *prometheus.HistogramVec
	storeOperationsTotal  *prometheus.CounterVec
	commitConflictsTotal  *prometheus.CounterVec
	commitBytesTotal      *prometheus.CounterVec
	compactedBodiesTotal  *prometheus.CounterVec
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	metrics := &Metrics{
		registry: reg,
		serverVersion: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "version",
			Help:      "Which version is running. 1 for 'server_version' label with current version.",
		}, []string{"server_version"}),
		storeOperationSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_seconds",
			Help:      "The time taken by store operations.",
		}, []string{backendLabel, operationLabel}),
		storeOperationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations completed, regardless of success or failure.",
		}, []string{backendLabel, operationLabel, codeLabel}),
		commitConflictsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commit_conflicts_total",
			Help:      "Total number of commits rejected because the parent was stale.",
		}, []string{backendLabel}),
		commitBytesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commit_attachment_bytes_total",
			Help:      "Total bytes of attachment content staged by commits.",
		}, []string{backendLabel}),
		compactedBodiesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "compacted_bodies_total",
			Help:      "Total number of revision bodies dropped by compaction.",
		}, []string{backendLabel}),
	}

	metrics.serverVersion.With(prometheus.Labels{
		"server_version": version.Version,
	}).Set(1)

	return metrics, nil
}

// ObserveStoreOperation records one completed store operation.
func (m *Metrics) ObserveStoreOperation(backend, operation, code string, seconds float64) {
	m.storeOperationSeconds.With(prometheus.Labels{
		backendLabel:   backend,
		operationLabel: operation,
	}).Observe(seconds)
	m.storeOperationsTotal.With(prometheus.Labels{
		backendLabel:   backend,
		operationLabel: operation,
		codeLabel:      code,
	}).Inc()
}

// AddCommitConflict counts a commit rejected for a stale parent.
func (m *Metrics) AddCommitConflict(backend string) {
	m.commitConflictsTotal.With(prometheus.Labels{backendLabel: backend}).Inc()
}

// AddCommitBytes adds the attachment bytes staged by a commit.
func (m *Metrics) AddCommitBytes(backend string, bytes int64) {
	m.commitBytesTotal.With(prometheus.Labels{backendLabel: backend}).Add(float64(bytes))
}

// AddCompactedBodies adds the number of bodies dropped by a compaction.
func (m *Metrics) AddCompactedBodies(backend string, count int) {
	m.compactedBodiesTotal.With(prometheus.Labels{backendLabel: backend}).Add(float64(count))
}

// RegisterCache exports the hit and miss counters of a cache.
func (m *Metrics) RegisterCache(name string, stats *cache.Stats) error {
	hits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "hits_total",
		Help:        "Total number of cache lookups that found an entry.",
		ConstLabels: prometheus.Labels{cacheLabel: name},
	}, func() float64 { return float64(stats.Hits()) })
	misses := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "misses_total",
		Help:        "Total number of cache lookups that found nothing.",
		ConstLabels: prometheus.Labels{cacheLabel: name},
	}, func() float64 { return float64(stats.Misses()) })

	for _, c := range []prometheus.Collector{hits, misses} {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("register %s cache metrics: %w", name, err)
		}
	}
	return nil
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
