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

package sparqlclient

import (
	metricsutil "github.com/ebay/fedx/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type clientMetrics struct {
	requests       *prometheus.CounterVec
	failures       *prometheus.CounterVec
	requestSeconds *prometheus.SummaryVec
}

var metrics clientMetrics

func init() {
	mr := metricsutil.Registry{R: prometheus.DefaultRegisterer}
	metrics = clientMetrics{
		requests: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "sparqlclient",
			Name:      "requests",
			Help:      "The number of requests sent to remote SPARQL endpoints, by kind (select, ask, update).",
		}, []string{"kind"}),
		failures: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "sparqlclient",
			Name:      "failures",
			Help:      "The number of requests to remote SPARQL endpoints that failed, by kind.",
		}, []string{"kind"}),
		requestSeconds: mr.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  "fedx",
			Subsystem:  "sparqlclient",
			Name:       "request_seconds",
			Help:       "The time taken by requests to remote SPARQL endpoints, including rate limiting.",
			Objectives: metricsutil.DefaultObjectives,
		}, []string{"kind"}),
	}
}
