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

package exec

import (
	metricsutil "github.com/ebay/fedx/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type execMetrics struct {
	executeSeconds prometheus.Summary
	executions     prometheus.Counter
	requests       *prometheus.CounterVec
	requestSeconds prometheus.Summary
	batchSize      prometheus.Histogram
	joins          *prometheus.CounterVec
}

var metrics execMetrics

func init() {
	mr := metricsutil.Registry{R: prometheus.DefaultRegisterer}
	metrics = execMetrics{
		executeSeconds: mr.NewSummary(prometheus.SummaryOpts{
			Namespace:  "fedx",
			Subsystem:  "exec",
			Name:       "execute_seconds",
			Help:       "The time from starting a query's execution until its results are closed.",
			Objectives: metricsutil.DefaultObjectives,
		}),
		executions: mr.NewCounter(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "exec",
			Name:      "executions_total",
			Help:      "The number of plans executed.",
		}),
		requests: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "exec",
			Name:      "member_requests",
			Help: `The number of requests sent to federation members.

The strategy label names the operator that sent the request, such as 'scan'
or 'controlled bound join'.
`,
		}, []string{"strategy"}),
		requestSeconds: mr.NewSummary(prometheus.SummaryOpts{
			Namespace:  "fedx",
			Subsystem:  "exec",
			Name:       "member_request_seconds",
			Help:       "The time from sending a request to a member until its results are closed.",
			Objectives: metricsutil.DefaultObjectives,
		}),
		batchSize: mr.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fedx",
			Subsystem: "exec",
			Name:      "batch_size",
			Help:      "The number of left solutions sent in each bound join request.",
			Buckets:   prometheus.LinearBuckets(1, 5, 10),
		}),
		joins: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "exec",
			Name:      "joins",
			Help:      "The number of joins evaluated, by strategy.",
		}, []string{"strategy"}),
	}
}
