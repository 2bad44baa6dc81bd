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

package federation

import (
	metricsutil "github.com/ebay/fedx/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type federationMetrics struct {
	borrowed  *prometheus.CounterVec
	openConns *prometheus.GaugeVec
}

var metrics federationMetrics

func init() {
	mr := metricsutil.Registry{R: prometheus.DefaultRegisterer}
	metrics = federationMetrics{
		borrowed: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "federation",
			Name:      "borrowed_connections",
			Help:      "The number of read connections borrowed from each member.",
		}, []string{"member"}),
		openConns: mr.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fedx",
			Subsystem: "federation",
			Name:      "open_connections",
			Help:      "The number of borrowed, unmanaged connections not yet released, per member.",
		}, []string{"member"}),
	}
}
