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
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ebay/fedx/config"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// recordingMetric satisfies Metric and logs Observe calls.
type recordingMetric struct {
	prometheus.Metric
	lock   sync.Mutex
	values []float64
}

func (metric *recordingMetric) Observe(value float64) {
	metric.lock.Lock()
	metric.values = append(metric.values, value)
	metric.lock.Unlock()
}

func Test_durationObserver_UpdateMetric(t *testing.T) {
	assert := assert.New(t)
	cfg := jaegercfg.Configuration{
		ServiceName: t.Name(),
	}
	tracer, closer, err := cfg.NewTracer(jaegercfg.ContribObserver(&contribObserver{}))
	assert.NoError(err)
	defer func() {
		assert.NoError(closer.Close())
	}()
	metric := new(recordingMetric)
	for i := 0; i < 3; i++ {
		span := tracer.StartSpan(t.Name())
		UpdateMetric(span, metric)
		time.Sleep(time.Millisecond)
		span.Finish()
	}
	// A span without the tag is not observed.
	tracer.StartSpan("untagged").Finish()
	assert.Len(metric.values, 3)
	for _, value := range metric.values {
		dur := time.Nanosecond * time.Duration(value*1e9)
		assert.True(dur >= time.Millisecond, "duration: %v", dur)
		assert.True(dur <= time.Second, "duration: %v", dur)
	}
}

func Test_stringableMetric(t *testing.T) {
	metric := prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  "fedx",
		Subsystem:  "optimizer",
		Name:       "pass_seconds",
		Help:       "The time spent in each optimizer pass.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01},
	})
	stringable := stringableMetric{metric}
	assert.Equal(t, "fedx_optimizer_pass_seconds", fmt.Sprint(stringable))
}

func Test_StartSpan(t *testing.T) {
	mock := mocktracer.New()
	prev := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(mock)
	defer opentracing.SetGlobalTracer(prev)

	parent, ctx := StartSpan(context.Background(), "query", nil)
	child, _ := StartSpan(ctx, "pass", nil)
	FinishWithError(child, errors.New("probe failed"))
	FinishWithError(parent, nil)

	spans := mock.FinishedSpans()
	if assert.Len(t, spans, 2) {
		assert.Equal(t, "pass", spans[0].OperationName)
		assert.Equal(t, true, spans[0].Tag("error"))
		assert.Equal(t, spans[1].SpanContext.SpanID, spans[0].ParentID)
		assert.Nil(t, spans[1].Tag("error"))
	}
}

func Test_New(t *testing.T) {
	tracer, err := New("test", nil)
	assert.NoError(t, err)
	tracer.Close()

	_, err = New("test", &config.Tracing{Type: "jaeger"})
	assert.EqualError(t, err, "tracing: collectorEndpoint is required")
}
