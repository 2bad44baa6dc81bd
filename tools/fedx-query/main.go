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

// Command fedx-query evaluates a SPARQL query against the federation defined
// by a config file, without running a server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	docopt "github.com/docopt/docopt-go"
	"github.com/ebay/fedx/config"
	"github.com/ebay/fedx/federation/conn"
	"github.com/ebay/fedx/federation/memberfactory"
	"github.com/ebay/fedx/util/debuglog"
	"github.com/ebay/fedx/util/graphviz"
	"github.com/ebay/fedx/util/tracing"
	opentracing "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var fmtr = message.NewPrinter(language.English)

const usage = `fedx-query evaluates a SPARQL query against a federation.

Usage:
  fedx-query [--cfg=FILE -t=DUR --format=FORMAT --explain --dot=IMAGE --noinfer] FILE
  fedx-query [--cfg=FILE -t=DUR --format=FORMAT --explain --dot=IMAGE --noinfer] -e QUERY

Options:
  --cfg=FILE                 Federation config file [default: config.json]
  -t=DUR, --timeout=DUR      Timeout for the whole query [default: 1m]
  --format=FORMAT            Output as "table" or "json" [default: table]
  --explain                  Print the optimized plan instead of evaluating.
  --dot=IMAGE                Also draw the optimized plan to a .pdf, .png,
                             .svg or .dot file. All but .dot need Graphviz.
  --noinfer                  Exclude inferred statements.
  -e QUERY                   The query text.

Examples:
  # Query from standard input.
  fedx-query --cfg=fed.json - <<EOF
  PREFIX foaf: <http://xmlns.com/foaf/0.1/>
  SELECT ?name WHERE { ?p foaf:name ?name }
EOF

  # Show how a query would be split across the members.
  fedx-query --explain -e 'SELECT * WHERE { ?s ?p ?o }'
`

type options struct {
	ConfigFile    string `docopt:"--cfg"`
	Timeout       time.Duration
	TimeoutString string `docopt:"--timeout"`
	Format        string
	Explain       bool
	DotFile       string `docopt:"--dot"`
	NoInfer       bool   `docopt:"--noinfer"`
	Filename      string `docopt:"FILE"`
	QueryString   string `docopt:"-e"`
}

func parseArgs() *options {
	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		log.Fatalf("Error parsing command-line arguments: %v", err)
	}
	var options options
	err = opts.Bind(&options)
	if err != nil {
		log.Fatalf("Error binding command-line arguments: %v\nfrom: %+v", err, opts)
	}
	options.Timeout, err = time.ParseDuration(options.TimeoutString)
	if err != nil {
		log.Fatalf("Unable to parse timeout value: %v", err)
	}
	if options.Timeout == 0 {
		options.Timeout = time.Hour
	}
	switch options.Format {
	case "table", "json":
	default:
		log.Fatalf("Unknown output format: %q", options.Format)
	}
	return &options
}

func main() {
	debuglog.Configure(debuglog.Options{})
	options := parseArgs()

	query := options.QueryString
	if options.Filename != "" {
		var err error
		query, err = readFile(options.Filename)
		if err != nil {
			log.Fatalf("Unable to read query: %v", err)
		}
	}
	cfg, err := config.Load(options.ConfigFile)
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}
	tracer, err := tracing.New("fedx-query", cfg.Tracing)
	if err != nil {
		log.WithError(err).Warn("Could not initialize OpenTracing tracer")
	} else {
		defer tracer.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.Timeout)
	defer cancel()
	span, ctx := opentracing.StartSpanFromContext(ctx, "fedx-query run")
	defer span.Finish()

	fed, err := memberfactory.NewFederation(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to build federation: %v", err)
	}
	defer fed.Shutdown()
	if err := fed.Init(ctx); err != nil {
		log.Fatalf("Unable to initialize federation: %v", err)
	}
	c := conn.New(fed, nil).Connect()
	defer c.Close()

	req := conn.Request{Query: query, IncludeInferred: !options.NoInfer}
	if err := run(ctx, c, req, options, os.Stdout); err != nil {
		log.Errorf("Query failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *conn.Conn, req conn.Request, options *options, out io.Writer) error {
	if options.DotFile != "" {
		plan, err := c.Plan(ctx, req)
		if err != nil {
			return err
		}
		err = graphviz.Create(options.DotFile, func(w io.Writer) {
			writeDot(w, plan)
		}, graphviz.Options{})
		if err != nil {
			return err
		}
		log.Infof("Wrote plan to %s", options.DotFile)
	}
	if options.Explain {
		plan, err := c.Explain(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, plan)
		return nil
	}
	start := time.Now()
	res, err := c.Evaluate(ctx, req)
	if err != nil {
		return err
	}
	defer res.Close()
	var count int
	if options.Format == "json" {
		count, err = writeJSON(out, res)
	} else {
		count, err = writeTable(out, res)
	}
	if err != nil {
		return err
	}
	log.Infof("Query took %s", time.Since(start))
	if options.Format == "table" {
		fmtr.Fprintf(out, "\n%d results.\n", count)
	}
	return nil
}

func readFile(name string) (string, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	return string(data), err
}
