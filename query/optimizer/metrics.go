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

package optimizer

import (
	metricsutil "github.com/ebay/fedx/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type optimizerMetrics struct {
	optimizeSeconds prometheus.Summary
	passSeconds     *prometheus.SummaryVec
	probes          *prometheus.CounterVec
	probeCacheHits  prometheus.Counter
	fallbacks       prometheus.Counter
	emptyPatterns   prometheus.Counter
	groups          *prometheus.CounterVec
}

var metrics optimizerMetrics

func init() {
	mr := metricsutil.Registry{R: prometheus.DefaultRegisterer}
	metrics = optimizerMetrics{
		optimizeSeconds: mr.NewSummary(prometheus.SummaryOpts{
			Namespace:  "fedx",
			Subsystem:  "optimizer",
			Name:       "optimize_seconds",
			Help:       "The time taken to plan a query, including source selection.",
			Objectives: metricsutil.DefaultObjectives,
		}),
		passSeconds: mr.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  "fedx",
			Subsystem:  "optimizer",
			Name:       "pass_seconds",
			Help:       "The time taken by each optimizer pass.",
			Objectives: metricsutil.DefaultObjectives,
		}, []string{"pass"}),
		probes: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "optimizer",
			Name:      "source_probes",
			Help:      "The number of source selection probes sent to each member.",
		}, []string{"member"}),
		probeCacheHits: mr.NewCounter(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "optimizer",
			Name:      "source_probe_cache_hits",
			Help:      "The number of source selection probes answered from the cache.",
		}),
		fallbacks: mr.NewCounter(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "optimizer",
			Name:      "source_selection_fallbacks",
			Help:      "The number of patterns assigned to every member because a probe failed.",
		}),
		emptyPatterns: mr.NewCounter(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "optimizer",
			Name:      "empty_patterns",
			Help:      "The number of statement patterns no member could match.",
		}),
		groups: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "optimizer",
			Name:      "groups",
			Help:      "The number of exclusive and independent groups formed.",
		}, []string{"type"}),
	}
}
