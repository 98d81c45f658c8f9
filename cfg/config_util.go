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

package cfg

import "runtime"

// DefaultConcurrency mirrors internal/perms.WorkerCount's heuristic so
// callers that only have a cfg.Config (no perms import, to avoid an
// import cycle) can print or validate the effective worker count.
func DefaultConcurrency() int {
	return max(runtime.NumCPU()/2, 1)
}

// IsMetricsEnabled reports whether the Prometheus HTTP listener should be
// started at all.
func IsMetricsEnabled(m *MetricsConfig) bool {
	return m.PrometheusAddr != ""
}
