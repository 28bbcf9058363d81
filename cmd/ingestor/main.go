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

// cmd/ingestor runs one Ingestor supervisor per configured chain id,
// streaming newHeads, fetching receipts and appending deduplicated
// events to each chain's event log.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v7"
	"gopkg.in/urfave/cli.v1"

	"github.com/ethhook/ethhook/api/debug"
	"github.com/ethhook/ethhook/cmd/utils"
	"github.com/ethhook/ethhook/datasync/ingestor"
	"github.com/ethhook/ethhook/internal/config"
	"github.com/ethhook/ethhook/log"
	"github.com/ethhook/ethhook/metrics"
	"github.com/ethhook/ethhook/storage/dedup"
	"github.com/ethhook/ethhook/storage/eventlog"
)

var (
	logger = log.NewModuleLogger(log.ModuleCMD)
	app    = utils.NewApp(gitCommit, "Event Ingestion service: newHeads -> receipts -> deduplicated event log")

	metricsAddrFlag = cli.StringFlag{
		Name:  "metricsaddr",
		Usage: "Prometheus exporter listen address",
		Value: ":9101",
	}
)

// gitCommit is set at build time via -ldflags.
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
		utils.Fatalf("no chains configured: set %s and the matching {id}_WS_URL variables", config.ChainIDsEnv)
	}

	opts, err := redis.ParseURL(cfg.StoreURL)
	if err != nil {
		utils.Fatalf("parsing QUEUE_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	eventLog := eventlog.New(rdb, cfg.StreamMaxLen)
	dedupIndex := dedup.New(rdb, cfg.DedupTTL)

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
		logger.Info("shutting down ingestor")
		cancel()
	}()

	var wg sync.WaitGroup
	for chainID, wsURL := range cfg.ChainWSURLs {
		ig := ingestor.New(ingestor.Config{
			ChainID:         chainID,
			WSURL:           wsURL,
			BackoffBase:     cfg.RetryBaseDelay,
			BackoffMax:      time.Minute,
			BreakerTimeout:  cfg.CircuitBreakerTimeout,
			WatchdogTimeout: 120 * time.Second,
		}, eventLog, dedupIndex, nil)

		wg.Add(1)
		go func(chainID uint64) {
			defer wg.Done()
			logger.Info("starting chain ingestor", "chain_id", chainID)
			ig.Run(ctx)
		}(chainID)
	}
	wg.Wait()
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
