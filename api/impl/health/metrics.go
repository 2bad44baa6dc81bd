// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package health

import (
	metricsutil "github.com/ebay/fedx/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type healthMetrics struct {
	memberHealthy *prometheus.GaugeVec
}

var metrics healthMetrics

func init() {
	mr := metricsutil.Registry{R: prometheus.DefaultRegisterer}
	metrics = healthMetrics{
		memberHealthy: mr.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fedx",
			Subsystem: "health",
			Name:      "member_healthy",
			Help:      `1 if the member answered its last health check, 0 otherwise.`,
		}, []string{"member"}),
	}
}
