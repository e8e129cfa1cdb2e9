// Copyright 2025 Jelly Terra <jellyterra@symboltics.com>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/autodns/deltawatch/core"
	"github.com/autodns/deltawatch/logger"

	_ "github.com/autodns/deltawatch/source/cloudflare"
	_ "github.com/autodns/deltawatch/source/dns"
	_ "github.com/autodns/deltawatch/store/file"
	_ "github.com/autodns/deltawatch/store/memory"
	_ "github.com/autodns/deltawatch/store/postgres"
	_ "github.com/autodns/deltawatch/store/redis"
)

var (
	asServer = flag.Bool("server", false, "Run as feed server.")

	httpListen = flag.String("http-listen", "[::1]:8080", "HTTP listen address.")
	httpPrefix = flag.String("http-prefix", "/", "HTTP route prefix.")
	baseURL    = flag.String("base-url", "", "Public URL feeds are served under. Defaults to http://<http-listen><http-prefix>.")
	webURL     = flag.String("web-url", "", "Site hosting the search and analyse views entries link to. Defaults to the base URL.")

	asSweep = flag.Bool("sweep", false, "Resolve every watched domain once and record the snapshots.")

	asOperator = flag.Bool("operate", false, "Run as operator.")

	opQuery    = flag.Bool("query", false, "Query.")
	opRead     = flag.Bool("read", false, "Mark as read.")
	opDelete   = flag.Bool("delete", false, "Delete.")
	opSnapshot = flag.String("snapshot", "", "Record the snapshot in this JSON file.")

	domain = flag.String("domain", "", "Specify the domain.")

	configPath = flag.String("config", "", "YAML configuration file location.")

	storeBuilder  = flag.String("store", "memory", "Store builder.")
	storeParams   = Params{}
	storeTimeout  = flag.Duration("store-timeout", core.DefaultStoreTimeout, "Timeout of a single store call.")
	sourceBuilder = flag.String("source", "dns", "Snapshot source builder.")
	sourceParams  = Params{}

	logLevel  = flag.String("log-level", "info", "Log level.")
	logFormat = flag.String("log-format", "console", "Log format, console or json.")

	signalC = make(chan os.Signal, 1)
)

func init() {
	flag.Var(storeParams, "store-param", "Store builder parameter key=value. Repeatable.")
	flag.Var(sourceParams, "source-param", "Source builder parameter key=value. Repeatable.")
}

func main() {
	if err := LoadEnv(flag.CommandLine); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	flag.Parse()

	logger.Init(logger.Options{Level: *logLevel, Format: *logFormat, Service: "deltawatch"})
	log := logger.Get()

	config, err := ResolveConfig(*configPath, flag.CommandLine)
	if err != nil {
		log.Fatal().Err(err).Msg("Load configuration")
	}

	signal.Notify(signalC, syscall.SIGINT, syscall.SIGTERM)

	switch {
	case *asOperator:
		err = _operator(config)
	case *asSweep:
		err = _sweep(config)
	case *asServer:
		err = _server(config)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
