// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package callgrind

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks loader activity for a Prometheus registry, following the
// same per-component metrics struct shape as the teacher's
// executableInfoMetrics.
type Metrics struct {
	linesProcessed *prometheus.CounterVec
	warnings       prometheus.Counter
	errors         prometheus.Counter
	partsLoaded    prometheus.Counter
	costLines      prometheus.Counter
}

// NewMetrics registers the loader's counters with reg. reg may be nil, in
// which case a private registry is used and nothing is exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	linesProcessed := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "callgrind_loader_lines_processed_total",
			Help: "Total number of lines processed by the loader, by kind.",
		},
		[]string{"kind"},
	)
	return &Metrics{
		linesProcessed: linesProcessed,
		warnings: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "callgrind_loader_warnings_total",
			Help: "Total number of Warning-severity diagnostics emitted.",
		}),
		errors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "callgrind_loader_errors_total",
			Help: "Total number of Error-severity diagnostics emitted.",
		}),
		partsLoaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "callgrind_loader_parts_loaded_total",
			Help: "Total number of parts successfully loaded.",
		}),
		costLines: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "callgrind_loader_cost_lines_total",
			Help: "Total number of self-cost, call-cost, and jump cost lines attributed.",
		}),
	}
}

func (m *Metrics) observeLine(kind string) {
	if m == nil {
		return
	}
	m.linesProcessed.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeWarning() {
	if m == nil {
		return
	}
	m.warnings.Inc()
}

func (m *Metrics) observeError() {
	if m == nil {
		return
	}
	m.errors.Inc()
}

func (m *Metrics) observePartLoaded() {
	if m == nil {
		return
	}
	m.partsLoaded.Inc()
}

func (m *Metrics) observeCostLine() {
	if m == nil {
		return
	}
	m.costLines.Inc()
}
