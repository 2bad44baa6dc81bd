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

package tracing

import (
	"strings"
	"sync/atomic"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	jaeger "github.com/uber/jaeger-client-go"
)

// Metric is satisfied by prometheus.Summary and prometheus.Histogram.
type Metric interface {
	prometheus.Metric
	Observe(float64)
}

// UpdateMetric arranges for the given metric to be updated with the duration
// of the span (in seconds). It only has an effect with the tracer set up by
// New.
func UpdateMetric(span opentracing.Span, metric Metric) {
	span.SetTag(metricTag, stringableMetric{metric})
}

const metricTag = "metric"

// contribObserver hands out a durationObserver for each span.
type contribObserver struct{}

// OnStartSpan implements jaeger.ContribObserver.
func (*contribObserver) OnStartSpan(
	span opentracing.Span,
	operationName string,
	options opentracing.StartSpanOptions,
) (jaeger.ContribSpanObserver, bool) {
	start := options.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	return &durationObserver{start: start}, true
}

// durationObserver implements jaeger.ContribSpanObserver. It observes the
// span's duration into the metric named by the span's "metric" tag.
type durationObserver struct {
	start time.Time
	// Holds a stringableMetric once the tag is set.
	metric atomic.Value
}

func (o *durationObserver) OnSetOperationName(name string) {}

func (o *durationObserver) OnSetTag(key string, value interface{}) {
	if key != metricTag {
		return
	}
	if metric, ok := value.(stringableMetric); ok {
		o.metric.Store(metric)
	}
}

func (o *durationObserver) OnFinish(options opentracing.FinishOptions) {
	metric, ok := o.metric.Load().(stringableMetric)
	if !ok {
		return
	}
	finish := options.FinishTime
	if finish.IsZero() {
		finish = time.Now()
	}
	metric.Observe(finish.Sub(o.start).Seconds())
}

// stringableMetric gives the Prometheus metrics a better stringer, which ends
// up being reported in the OpenTracing tag named "metric".
type stringableMetric struct {
	Metric
}

// String returns the fully-qualified name of the metric.
func (metric stringableMetric) String() string {
	// Desc has no accessor for the name. Its Stringer outputs like this:
	//   Desc{fqName: %q, help: %q, constLabels: {%s}, variableLabels: %v}
	s := metric.Desc().String()
	s = strings.TrimPrefix(s, `Desc{fqName: "`)
	i := strings.IndexByte(s, '"')
	if i < 0 {
		return ""
	}
	return s[:i]
}
