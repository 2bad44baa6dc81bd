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

// Package tracing assists with reporting OpenTracing traces. Each query, each
// optimizer pass and each remote request is reported as a span.
package tracing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebay/fedx/config"
	opentracing "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"
	jaeger "github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-client-go/transport"
)

// A Tracer reports OpenTracing traces to a server.
type Tracer struct {
	// If not nil, called by Close.
	close func()
}

// New constructs a tracer and sets it as the global opentracing tracer. Call
// this early on from main functions. If cfg is nil, tracing is disabled and
// the global no-op tracer stays in place. If err == nil, the returned tracer
// should be Closed to flush its buffer before program exit.
func New(serviceName string, cfg *config.Tracing) (*Tracer, error) {
	if cfg == nil {
		log.Warn("Skipping Jaeger setup: nil Tracing configuration")
		return &Tracer{}, nil
	}
	if cfg.CollectorEndpoint == "" {
		return nil, fmt.Errorf("tracing: collectorEndpoint is required")
	}
	sampler := &jaegercfg.SamplerConfig{
		Type:  jaeger.SamplerTypeConst,
		Param: 1,
	}
	if cfg.SampleRate != nil {
		sampler = &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeProbabilistic,
			Param: *cfg.SampleRate,
		}
	}
	jcfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler:     sampler,
	}
	reporter := jaeger.NewRemoteReporter(transport.NewHTTPTransport(cfg.CollectorEndpoint))
	logger := (*logrusAdapter)(log.WithFields(log.Fields{"component": "jaeger"}))
	tracer, closer, err := jcfg.NewTracer(
		jaegercfg.Logger(logger),
		jaegercfg.Reporter(reporter),
		jaegercfg.ContribObserver(&contribObserver{}),
	)
	if err != nil {
		return nil, fmt.Errorf("could not initialize Jaeger tracer: %v", err)
	}
	opentracing.SetGlobalTracer(tracer)
	return &Tracer{
		close: func() {
			err := closer.Close()
			if err != nil {
				log.WithError(err).Warn("Error shutting down Jaeger tracer")
			}
		},
	}, nil
}

// Close stops the Tracer and cleans up resources. It is not thread-safe.
func (t *Tracer) Close() {
	if t.close != nil {
		t.close()
	}
	t.close = nil
}

// StartSpan starts a span named 'operation' as a child of any span in ctx,
// and returns it with a context carrying it. If metric is not nil, it is
// updated with the span's duration when the span finishes.
func StartSpan(ctx context.Context, operation string, metric Metric) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, operation)
	if metric != nil {
		UpdateMetric(span, metric)
	}
	return span, ctx
}

// FinishWithError tags the span with err, if any, then finishes it.
func FinishWithError(span opentracing.Span, err error) {
	if err != nil {
		span.SetTag("error", true)
		span.LogKV("event", "error", "message", err.Error())
	}
	span.Finish()
}

type logrusAdapter log.Entry

func (_log *logrusAdapter) Error(msg string) {
	log := (*log.Entry)(_log)
	log.Error(strings.TrimSpace(msg))
}

func (_log *logrusAdapter) Infof(msg string, args ...interface{}) {
	log := (*log.Entry)(_log)
	log.Infof(strings.TrimSpace(msg), args...)
}
