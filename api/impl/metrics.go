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

package impl

import (
	metricsutil "github.com/ebay/fedx/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	querySeconds    prometheus.Summary
	queries         *prometheus.CounterVec
	solutions       prometheus.Histogram
	statementsAdded prometheus.Counter
}

var metrics apiMetrics

func init() {
	mr := metricsutil.Registry{R: prometheus.DefaultRegisterer}
	metrics = apiMetrics{
		querySeconds: mr.NewSummary(prometheus.SummaryOpts{
			Namespace:  "fedx",
			Subsystem:  "api",
			Name:       "query_seconds",
			Help:       `The time it takes to answer a query request, including streaming the results.`,
			Objectives: metricsutil.DefaultObjectives,
		}),
		queries: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "api",
			Name:      "queries_total",
			Help:      `The number of query requests, by outcome.`,
		}, []string{"result"}),
		solutions: mr.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fedx",
			Subsystem: "api",
			Name:      "query_solutions",
			Help:      `The number of solutions returned by a SELECT query request.`,
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		statementsAdded: mr.NewCounter(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "api",
			Name:      "statements_added_total",
			Help:      `The number of statements added through the API.`,
		}),
	}
}
