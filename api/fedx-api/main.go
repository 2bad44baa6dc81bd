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

// Command fedx-api runs a federation and serves it over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/ebay/fedx/api/impl"
	"github.com/ebay/fedx/config"
	"github.com/ebay/fedx/federation/conn"
	"github.com/ebay/fedx/federation/memberfactory"
	"github.com/ebay/fedx/util/debuglog"
	"github.com/ebay/fedx/util/profiling"
	"github.com/ebay/fedx/util/tracing"
	log "github.com/sirupsen/logrus"
)

func main() {
	debuglog.Configure(debuglog.Options{})
	cfgFile := flag.String("cfg", "config.json", "config file")
	cpuProfile := flag.String("cpuprofile", "", "write a CPU profile of the first queries to this file")
	cpuProfileFor := flag.Duration("cpuprofile-for", 30*time.Second, "how long -cpuprofile records")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}
	if cfg.API == nil {
		log.Fatal("api field missing in config")
	}
	log.Infof("Using config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *cpuProfile != "" {
		if _, err := profiling.CPUProfile(ctx, *cpuProfile, *cpuProfileFor); err != nil {
			log.Warnf("Skipping CPU profile: %v", err)
		}
	}

	tracer, err := tracing.New("fedx-api", cfg.Tracing)
	if err != nil {
		log.Fatalf("Unable to initialize distributed tracing: %v", err)
	}
	defer tracer.Close()

	fed, err := memberfactory.NewFederation(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to build federation: %v", err)
	}
	if err := fed.Init(ctx); err != nil {
		log.Fatalf("Unable to initialize federation: %v", err)
	}
	defer func() {
		if err := fed.Shutdown(); err != nil {
			log.Warnf("Error shutting down federation: %v", err)
		}
	}()

	apiServer := api.New(cfg, conn.New(fed, nil))
	if err := apiServer.Run(ctx); err != nil {
		log.Errorf("Server::Run returned %v", err)
		return
	}
	log.Info("FedX API server exiting")
}
