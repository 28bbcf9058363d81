// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package ingestor implements the Event Ingestion subsystem (spec §4.1):
// one supervisor per chain that subscribes to newHeads, fetches each
// block's transaction receipts, deduplicates the logs found there, and
// appends them to that chain's event log.
package ingestor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethhook/ethhook/client"
	"github.com/ethhook/ethhook/common"
	"github.com/ethhook/ethhook/domain"
	"github.com/ethhook/ethhook/internal/backoff"
	"github.com/ethhook/ethhook/internal/breaker"
	"github.com/ethhook/ethhook/log"
	"github.com/ethhook/ethhook/metrics"
)

var logger = log.NewModuleLogger(log.ModuleIngestor)

// watchdogKey is the single breaker key every Ingestor uses for its own
// connection health (spec §4.1: "connection-health circuit").
const watchdogKey = "connection"

// connectionBreakerThreshold is the fixed consecutive-failure count that
// trips the ingestor's connection circuit (spec §4.1: "three consecutive
// connect/stream failures trip CLOSED->OPEN"). Unlike the delivery
// worker's breaker, this isn't operator-configurable.
const connectionBreakerThreshold = 3

// maxConsecutiveFailures bounds how many consecutive connect/stream
// failures a chain's supervisor tolerates before giving up on that chain
// entirely (spec §4.1 "Graceful degradation": "After 10 consecutive
// failures, the per-chain task terminates rather than loop forever").
const maxConsecutiveFailures = 10

// rpcClient is the subset of client.Client an Ingestor drives, narrowed
// to an interface so tests can substitute a fake node.
type rpcClient interface {
	SubscribeNewHeads(ctx context.Context) (*client.NewHeadsSubscription, error)
	BlockByNumber(ctx context.Context, hexBlockNum string) (*client.RawBlock, error)
	TransactionReceipt(ctx context.Context, txHash string) (*client.RawReceipt, error)
	Close()
}

// EventLog is the subset of storage/eventlog.Log an Ingestor appends to.
type EventLog interface {
	Append(ctx context.Context, chainID uint64, payload string) (string, error)
}

// Dedup is the subset of storage/dedup.Index an Ingestor consults before
// appending, giving exactly-once-within-TTL semantics (Testable Property
// 1) across reconnects and replays.
type Dedup interface {
	SeenOrMark(ctx context.Context, fingerprint string) (bool, error)
}

// Config bounds an Ingestor's reconnect and liveness policy.
type Config struct {
	ChainID         uint64
	WSURL           string
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	BreakerTimeout  time.Duration
	WatchdogTimeout time.Duration // spec §4.1: 120s default; one silent window warns, a second forces reconnect
}

// Ingestor supervises one chain's websocket connection for the life of
// the process, reconnecting with backoff on every disconnect.
type Ingestor struct {
	cfg      Config
	eventLog EventLog
	dedup    Dedup
	breaker  *breaker.Manager
	dial     func(ctx context.Context, url string) (rpcClient, error)

	failures int
}

// New builds an Ingestor. dial defaults to client.Dial; tests override it
// with a fake.
func New(cfg Config, eventLog EventLog, dedup Dedup, dial func(ctx context.Context, url string) (rpcClient, error)) *Ingestor {
	if dial == nil {
		dial = func(ctx context.Context, url string) (rpcClient, error) {
			return client.Dial(ctx, url)
		}
	}
	return &Ingestor{
		cfg:      cfg,
		eventLog: eventLog,
		dedup:    dedup,
		breaker:  breaker.NewManager(connectionBreakerThreshold, cfg.BreakerTimeout),
		dial:     dial,
	}
}

// Run supervises the connection until ctx is canceled: connect, stream
// heads until disconnect or watchdog timeout, back off, repeat. The task
// gives up on this chain (spec §4.1 "Graceful degradation") once
// maxConsecutiveFailures connect/stream failures happen in a row; other
// chains' tasks are unaffected.
func (ig *Ingestor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !ig.breaker.Allow(watchdogKey) {
			select {
			case <-time.After(ig.cfg.BreakerTimeout):
			case <-ctx.Done():
				return
			}
			continue
		}

		conn, err := ig.dial(ctx, ig.cfg.WSURL)
		if err != nil {
			if ig.onFailure(ctx, err) {
				return
			}
			continue
		}

		ig.breaker.RecordSuccess(watchdogKey)
		ig.failures = 0
		ig.reportBreakerState()

		err = ig.stream(ctx, conn)
		conn.Close()
		if err != nil {
			if ig.onFailure(ctx, err) {
				return
			}
		}
	}
}

// onFailure records a connect/stream failure, sleeps the backoff window,
// and reports whether the chain's task should terminate having exceeded
// maxConsecutiveFailures in a row.
func (ig *Ingestor) onFailure(ctx context.Context, err error) bool {
	ig.breaker.RecordFailure(watchdogKey)
	ig.reportBreakerState()
	logger.Warn("chain connection failed", "chain_id", ig.cfg.ChainID, "url", ig.cfg.WSURL, "err", err)

	ig.failures++
	if ig.failures >= maxConsecutiveFailures {
		logger.Error("giving up on chain after repeated consecutive failures", "chain_id", ig.cfg.ChainID, "failures", ig.failures)
		return true
	}

	wait := backoff.Duration(ig.cfg.BackoffBase, ig.cfg.BackoffMax, ig.failures-1)
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
	return false
}

// reportBreakerState mirrors the connection breaker's state into the
// metrics gauge consumed by the debug/metrics surface (0=closed,
// 1=open, 2=half_open).
func (ig *Ingestor) reportBreakerState() {
	metrics.BreakerState("ingestor", ig.cfg.WSURL).Update(int64(ig.breaker.State(watchdogKey)))
}

// stream consumes newHeads notifications until the subscription ends,
// ctx is canceled, or the liveness watchdog fires (spec §4.1): after one
// WatchdogTimeout without a head it logs a warning, after a second it
// returns errWatchdogTimeout so Run reconnects.
func (ig *Ingestor) stream(ctx context.Context, conn rpcClient) error {
	sub, err := conn.SubscribeNewHeads(ctx)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	watchdog := time.NewTicker(ig.cfg.WatchdogTimeout / 4)
	defer watchdog.Stop()
	lastHead := time.Now()
	warned := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-watchdog.C:
			silent := time.Since(lastHead)
			if silent > 2*ig.cfg.WatchdogTimeout {
				return errWatchdogTimeout
			}
			if silent > ig.cfg.WatchdogTimeout && !warned {
				logger.Warn("no new heads within watchdog timeout", "chain_id", ig.cfg.ChainID, "silent_for", silent)
				warned = true
			}
		case head, ok := <-sub.Heads:
			if !ok {
				return errSubscriptionClosed
			}
			lastHead = time.Now()
			warned = false
			ig.handleHead(ctx, conn, head)
		}
	}
}

func (ig *Ingestor) handleHead(ctx context.Context, conn rpcClient, head client.RawHeader) {
	blockNum, err := common.DecodeHexUint64(head.Number)
	if err != nil {
		logger.Warn("malformed head notification", "chain_id", ig.cfg.ChainID, "err", err)
		return
	}

	block, err := conn.BlockByNumber(ctx, head.Number)
	if err != nil {
		logger.Warn("failed to fetch block", "chain_id", ig.cfg.ChainID, "block", blockNum, "err", err)
		return
	}

	timestamp, err := common.DecodeHexUint64(block.Timestamp)
	if err != nil {
		logger.Warn("malformed block timestamp", "chain_id", ig.cfg.ChainID, "block", blockNum, "err", err)
		return
	}
	metrics.ChainLag(ig.cfg.ChainID).Update(time.Now().Unix() - int64(timestamp))

	for _, tx := range block.Transactions {
		receipt, err := conn.TransactionReceipt(ctx, tx.Hash)
		if err != nil {
			logger.Warn("failed to fetch receipt", "chain_id", ig.cfg.ChainID, "tx", tx.Hash, "err", err)
			continue
		}
		ig.handleReceipt(ctx, receipt, int64(timestamp))
	}
}

func (ig *Ingestor) handleReceipt(ctx context.Context, receipt *client.RawReceipt, blockTimestamp int64) {
	for _, raw := range receipt.Logs {
		if raw.Removed {
			continue
		}
		ev, err := decodeEvent(ig.cfg.ChainID, raw, blockTimestamp)
		if err != nil {
			logger.Warn("malformed log entry", "chain_id", ig.cfg.ChainID, "tx", raw.TxHash, "err", err)
			continue
		}

		firstSeen, err := ig.dedup.SeenOrMark(ctx, ev.Fingerprint())
		if err != nil {
			logger.Error("dedup check failed", "chain_id", ig.cfg.ChainID, "err", err)
			continue
		}
		if !firstSeen {
			continue
		}

		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Error("failed to marshal event", "chain_id", ig.cfg.ChainID, "err", err)
			continue
		}
		if _, err := ig.eventLog.Append(ctx, ig.cfg.ChainID, string(payload)); err != nil {
			logger.Error("failed to append event", "chain_id", ig.cfg.ChainID, "err", err)
		}
	}
}

func decodeEvent(chainID uint64, raw client.RawLog, blockTimestamp int64) (domain.Event, error) {
	blockNum, err := common.DecodeHexUint64(raw.BlockNumber)
	if err != nil {
		return domain.Event{}, err
	}
	logIndex, err := common.DecodeHexUint32(raw.LogIndex)
	if err != nil {
		return domain.Event{}, err
	}

	topics := make([]string, len(raw.Topics))
	for i, t := range raw.Topics {
		topics[i] = common.NormalizeHex(t)
	}

	return domain.Event{
		ChainID:         chainID,
		BlockNumber:     blockNum,
		BlockHash:       common.NormalizeHex(raw.BlockHash),
		TxHash:          common.NormalizeHex(raw.TxHash),
		LogIndex:        logIndex,
		ContractAddress: common.NormalizeAddress(raw.Address),
		Topics:          topics,
		Data:            common.NormalizeHex(raw.Data),
		BlockTimestamp:  blockTimestamp,
	}, nil
}

var (
	errWatchdogTimeout    = &ingestorError{"no new heads received within watchdog timeout"}
	errSubscriptionClosed = &ingestorError{"newHeads subscription closed"}
)

type ingestorError struct{ msg string }

func (e *ingestorError) Error() string { return e.msg }
