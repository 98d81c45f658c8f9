// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes envfs's Prometheus counters. Collection is
// always on; serving them over HTTP is opt-in (see cmd's
// --prometheus-addr flag) so a plain `envfs /mnt` never opens a socket.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "envfs"

// Registry bundles every counter envfs records, mirroring the teacher's
// fs_ops_count/fs_ops_error_count/fs_ops_latency trio but scoped to
// envfs's own FUSE ops plus the PATH-resolution hit/miss/forget events
// that are specific to this filesystem's domain.
type Registry struct {
	registry *prometheus.Registry

	opsCount      *prometheus.CounterVec
	opsErrorCount *prometheus.CounterVec
	opsLatency    *prometheus.HistogramVec

	lookupResultCount *prometheus.CounterVec
	forgetCount       prometheus.Counter
}

// NewRegistry builds a Registry with every metric pre-registered (so
// they read as zero rather than absent before first use).
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.opsCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fs_ops_count",
		Help:      "Number of FUSE ops handled, by op name.",
	}, []string{"fs_op"})

	r.opsErrorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fs_ops_error_count",
		Help:      "Number of FUSE ops that returned an error, by op name.",
	}, []string{"fs_op"})

	r.opsLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fs_ops_latency",
		Help:      "FUSE op handling latency in seconds, by op name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"fs_op"})

	r.lookupResultCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lookup_result_count",
		Help:      "LookUpInode calls, by whether PATH resolution found an executable.",
	}, []string{"result"})

	r.forgetCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forget_count",
		Help:      "ForgetInode calls handled.",
	})

	r.registry.MustRegister(r.opsCount, r.opsErrorCount, r.opsLatency, r.lookupResultCount, r.forgetCount)
	return r
}

// RecordOp records one FUSE op's outcome and latency.
func (r *Registry) RecordOp(op string, start time.Time, err error) {
	r.opsCount.WithLabelValues(op).Inc()
	r.opsLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		r.opsErrorCount.WithLabelValues(op).Inc()
	}
}

// RecordLookup records a LookUpInode resolution attempt as a hit (an
// executable was found on PATH) or a miss.
func (r *Registry) RecordLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.lookupResultCount.WithLabelValues(result).Inc()
}

// RecordForget records one ForgetInode call.
func (r *Registry) RecordForget() {
	r.forgetCount.Inc()
}

// Handler returns the HTTP handler that serves this registry in the
// Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
