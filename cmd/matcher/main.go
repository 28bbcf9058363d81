// Copyright 2018 The klaytn Authors
// Copyright 2016 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.
//
// This file is derived from cmd/kcn/main.go (2018/06/04).
// Modified and improved for the klaytn development.

// cmd/matcher runs the Endpoint Matching & Fan-out subsystem: one
// consumer-group reader per chain, matching each event against the
// config store's active endpoints and pushing a delivery job per match.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v7"
	"gopkg.in/urfave/cli.v1"

	"github.com/ethhook/ethhook/api/debug"
	"github.com/ethhook/ethhook/cmd/utils"
	"github.com/ethhook/ethhook/datasync/matcher"
	"github.com/ethhook/ethhook/internal/config"
	"github.com/ethhook/ethhook/log"
	"github.com/ethhook/ethhook/metrics"
	"github.com/ethhook/ethhook/storage/configstore"
	"github.com/ethhook/ethhook/storage/eventlog"
	"github.com/ethhook/ethhook/storage/queue"
)

var (
	logger = log.NewModuleLogger(log.ModuleCMD)
	app    = utils.NewApp(gitCommit, "Endpoint Matching & Fan-out service: event log -> matched endpoints -> delivery queue")

	metricsAddrFlag = cli.StringFlag{
		Name:  "metricsaddr",
		Usage: "Prometheus exporter listen address",
		Value: ":9102",
	}
)

var gitCommit = ""

func init() {
	app.Flags = append(app.Flags, metricsAddrFlag)
	app.Flags = append(app.Flags, debug.Flags...)
	app.Action = run

	app.Before = func(ctx *cli.Context) error {
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		utils.Fatalf("loading configuration: %v", err)
	}
	if len(cfg.ChainWSURLs) == 0 {
		utils.Fatalf("no chains configured: set %s", config.ChainIDsEnv)
	}

	opts, err := redis.ParseURL(cfg.StoreURL)
	if err != nil {
		utils.Fatalf("parsing QUEUE_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	store, err := configstore.Open(cfg.ConfigURL, 30*time.Second)
	if err != nil {
		utils.Fatalf("opening config store: %v", err)
	}
	defer store.Close()

	eventLog := eventlog.New(rdb, cfg.StreamMaxLen)
	deliveryQueue := queue.New(rdb, cfg.StreamMaxLen)

	chainIDs := make([]uint64, 0, len(cfg.ChainWSURLs))
	for id := range cfg.ChainWSURLs {
		chainIDs = append(chainIDs, id)
	}

	m, err := matcher.New(eventLog, store, deliveryQueue, cfg.ConsumerName, chainIDs, int64(cfg.BatchSize), cfg.BlockTime)
	if err != nil {
		utils.Fatalf("constructing matcher: %v", err)
	}

	go func() {
		addr := cliCtx.String(metricsAddrFlag.Name)
		if err := metrics.ServeExporter(addr, 3*time.Second); err != nil {
			logger.Error("metrics exporter stopped", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down matcher")
		cancel()
	}()

	logger.Info("starting matcher", "chains", chainIDs, "consumer", cfg.ConsumerName)
	m.Run(ctx)
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
