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

// Package impl is the HTTP API of a federation. Queries are answered in the
// SPARQL 1.1 JSON results format; statements are exchanged as arrays of
// N-Triples terms.
package impl

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof" // enable pprof endpoints
	"time"

	"github.com/ebay/fedx/api/impl/health"
	"github.com/ebay/fedx/config"
	"github.com/ebay/fedx/federation/conn"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/util/web"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// How long Run waits for in-flight requests once its context ends.
const shutdownTimeout = 10 * time.Second

// New returns a new instance of the API server. The returned Server will not
// start handling traffic until a subsequent call to Server.Run().
func New(cfg *config.Fedx, engine *conn.Engine) *Server {
	return &Server{
		cfg:    cfg,
		engine: engine,
		health: health.NewChecker(health.ProbeMembers(engine.Federation())),
	}
}

// Server is the HTTP interface to a federation.
type Server struct {
	cfg    *config.Fedx
	engine *conn.Engine
	health *health.Checker
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	m := httprouter.New()

	m.GET("/query", s.query)
	m.POST("/query", s.query)
	m.GET("/explain", s.explain)
	m.GET("/statements", s.getStatements)
	m.POST("/statements", s.addStatements)
	m.DELETE("/statements", s.removeStatements)
	m.GET("/namespaces", s.namespaces)
	m.DELETE("/namespaces", s.clearNamespaces)
	m.GET("/namespaces/:prefix", s.namespace)
	m.PUT("/namespaces/:prefix", s.setNamespace)
	m.DELETE("/namespaces/:prefix", s.removeNamespace)
	m.GET("/healthz", s.healthz)
	// prometheus metrics
	m.Handler("GET", "/metrics", promhttp.Handler())

	m.NotFound = http.DefaultServeMux
	logger := func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("[API] %v %v", r.Method, r.URL)
		m.ServeHTTP(w, r)
	}
	return http.HandlerFunc(logger)
}

// Run will start listening for HTTP requests. This function will block until
// ctx ends and the in-flight requests finish, or the server fails.
func (s *Server) Run(ctx context.Context) error {
	go s.health.Run(ctx)
	srv := &http.Server{
		Addr:    s.cfg.API.HTTPAddress,
		Handler: s.Handler(),
	}
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if err != http.ErrServerClosed {
		return err
	}
	return <-done
}

// statusOf returns the HTTP status for a failed request.
func statusOf(err error) int {
	var fe *fedxerr.Error
	if !errors.As(err, &fe) {
		return web.StatusOf(err)
	}
	switch {
	case fe.Op == "parse":
		return http.StatusBadRequest
	case fe.Kind == fedxerr.WriteRejected:
		return http.StatusConflict
	case fe.Kind == fedxerr.SchedulerTimeout:
		return http.StatusGatewayTimeout
	case fe.Kind == fedxerr.MemberFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	web.WriteError(w, statusOf(err), "%v", err)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	report, err := s.health.Last(ctx)
	if err != nil {
		web.WriteError(w, http.StatusServiceUnavailable, "no health check has completed yet")
		return
	}
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	web.WriteJSON(w, status, report)
}
