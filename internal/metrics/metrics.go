/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package metrics exposes Prometheus counters for generation, continuation and export.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation labels.
const (
	OpGenerate = "generate"
	OpContinue = "continue"
	OpExport   = "export"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)

// Recorder owns a private registry so several instances can coexist (tests, embedded servers).
type Recorder struct {
	reg      *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	panels   *prometheus.CounterVec
	exports  *prometheus.CounterVec
	images   *prometheus.CounterVec
	exportSz prometheus.Histogram
}

// New builds a Recorder with the standard Go and process collectors.
func New() *Recorder {
	r := &Recorder{reg: prometheus.NewRegistry()}
	r.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comicstrip_requests_total",
			Help: "Generate/continue/export requests by outcome.",
		},
		[]string{"op", "outcome"},
	)
	r.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comicstrip_request_duration_seconds",
			Help:    "Latency of generate/continue/export requests.",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"op"},
	)
	r.panels = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comicstrip_panels_total",
			Help: "Panels appended to sessions.",
		},
		[]string{"op"},
	)
	r.exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comicstrip_exports_total",
			Help: "Export artifacts produced by format.",
		},
		[]string{"format"},
	)
	r.images = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comicstrip_images_total",
			Help: "Panel images resolved for rendering or export.",
		},
		[]string{"result"},
	)
	r.exportSz = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "comicstrip_export_bytes",
		Help:    "Size of export artifacts.",
		Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10),
	})
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests, r.duration, r.panels, r.exports, r.images, r.exportSz,
	)
	return r
}

// Observe records one finished request.
func (r *Recorder) Observe(op, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(op, outcome).Inc()
	r.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Panels counts panels appended by op.
func (r *Recorder) Panels(op string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.panels.WithLabelValues(op).Add(float64(n))
}

// Export counts an artifact of the given format and size.
func (r *Recorder) Export(format string, size int) {
	if r == nil {
		return
	}
	r.exports.WithLabelValues(format).Inc()
	r.exportSz.Observe(float64(size))
}

// Image counts a resolved image; placeholder is true when the fallback was used.
func (r *Recorder) Image(placeholder bool) {
	if r == nil {
		return
	}
	res := "loaded"
	if placeholder {
		res = "placeholder"
	}
	r.images.WithLabelValues(res).Inc()
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
