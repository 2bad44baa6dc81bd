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

package sched

import (
	metricsutil "github.com/ebay/fedx/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type schedMetrics struct {
	workers     prometheus.Gauge
	queued      prometheus.Gauge
	running     prometheus.Gauge
	executions  prometheus.Gauge
	skipped     *prometheus.CounterVec
	timeouts    prometheus.Counter
	queueWait   prometheus.Summary
	taskSeconds prometheus.Histogram
}

var metrics schedMetrics

func init() {
	mr := metricsutil.Registry{R: prometheus.DefaultRegisterer}
	metrics = schedMetrics{
		workers: mr.NewGauge(prometheus.GaugeOpts{
			Namespace: "fedx",
			Subsystem: "sched",
			Name:      "workers",
			Help:      "The maximum number of tasks the scheduler runs concurrently.",
		}),
		queued: mr.NewGauge(prometheus.GaugeOpts{
			Namespace: "fedx",
			Subsystem: "sched",
			Name:      "queued_tasks",
			Help:      "The number of tasks waiting for a worker.",
		}),
		running: mr.NewGauge(prometheus.GaugeOpts{
			Namespace: "fedx",
			Subsystem: "sched",
			Name:      "running_tasks",
			Help:      "The number of tasks currently running on a worker.",
		}),
		executions: mr.NewGauge(prometheus.GaugeOpts{
			Namespace: "fedx",
			Subsystem: "sched",
			Name:      "executions",
			Help:      "The number of queries with an open execution.",
		}),
		skipped: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "sched",
			Name:      "skipped_tasks",
			Help: `The number of tasks dropped without running.

The reason label is one of 'canceled', 'deadline passed', 'scheduler closed'
or 'execution closed'.
`,
		}, []string{"reason"}),
		timeouts: mr.NewCounter(prometheus.CounterOpts{
			Namespace: "fedx",
			Subsystem: "sched",
			Name:      "task_timeouts",
			Help:      "The number of running tasks that failed because the query deadline passed.",
		}),
		queueWait: mr.NewSummary(prometheus.SummaryOpts{
			Namespace:  "fedx",
			Subsystem:  "sched",
			Name:       "queue_wait_seconds",
			Help:       "The time tasks spend queued before a worker picks them up.",
			Objectives: metricsutil.DefaultObjectives,
		}),
		taskSeconds: mr.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fedx",
			Subsystem: "sched",
			Name:      "task_seconds",
			Help:      "The time a worker spends running a task and draining its results.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}
