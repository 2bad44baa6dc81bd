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

package conn

import (
	metricsutil "github.com/ebay/fedx/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type connMetrics struct {
	openConns    prometheus.Gauge
	planSeconds  prometheus.Summary
	queries      *prometheus.CounterVec
	writes       *prometheus.CounterVec
	echoFailures *prometheus.CounterVec
	rejections   prometheus.Counter
}

var metrics connMetrics

func init() {
	mr := metricsutil.Registry{R: prometheus.DefaultRegisterer}
	metrics = connMetrics{
		openConns: mr.NewGauge(prometheus.GaugeOpts{
			Namespace: "fedx",
			Subsystem: "conn",
			Name:      "open_connections",
			Help:      "The number of federation connections not yet closed.",
		}),
		planSeconds: mr.NewSummary(prometheus.SummaryOpts{
			Namespace:  "fedx",
			Subsystem:  "conn",
			Name:       "plan_seconds",
			Help:       "The time taken to parse and optimize a query.",
			Objectives: metricsutil.DefaultObjectives,
		}),
		queries: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "conn",
			Name:      "queries",
			Help: `The number of queries evaluated.

The result label is 'started' if the query was planned and its execution
began, or 'failed' if it could not be parsed, planned or started.
`,
		}, []string{"result"}),
		writes: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "conn",
			Name:      "writes",
			Help:      "The number of write and transaction operations, by operation.",
		}, []string{"op"}),
		echoFailures: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "conn",
			Name:      "echo_failures",
			Help:      "The number of member failures while echoing an operation to the writable members.",
		}, []string{"op"}),
		rejections: mr.NewCounter(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "conn",
			Name:      "placement_rejections",
			Help:      "The number of times a member rejected a statement, causing it to be offered to the next member.",
		}),
	}
}
