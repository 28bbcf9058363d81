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

// Package matcher implements the Endpoint Matching & Fan-out subsystem
// (spec §4.2): batch-read events off the per-chain event log, apply
// domain.Endpoint.Matches against the active endpoint set, and enqueue one
// delivery job per match.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethhook/ethhook/common"
	"github.com/ethhook/ethhook/domain"
	"github.com/ethhook/ethhook/log"
	"github.com/ethhook/ethhook/metrics"
	"github.com/ethhook/ethhook/storage/eventlog"
)

var logger = log.NewModuleLogger(log.ModuleMatcher)

// ConsumerGroup is the fixed cursor-group name every matcher instance
// joins, so any number of matcher processes share one cursor per chain.
const ConsumerGroup = "matcher"

// EventLog is the subset of storage/eventlog.Log the matcher drives.
type EventLog interface {
	EnsureGroup(ctx context.Context, chainID uint64, group string) error
	ReadPending(ctx context.Context, chainID uint64, group, consumer string, count int64) ([]eventlog.Entry, error)
	ReadGroup(ctx context.Context, chainID uint64, group, consumer string, count int64, block time.Duration) ([]eventlog.Entry, error)
	Ack(ctx context.Context, chainID uint64, group string, ids ...string) error
}

// EndpointStore is the subset of storage/configstore.Store the matcher
// needs to resolve candidate endpoints for a (chain, address) pair.
type EndpointStore interface {
	CandidateEndpoints(chainID uint64, contractAddress string) ([]*domain.Endpoint, error)
}

// JobQueue is the subset of storage/queue.Queue the matcher pushes onto.
type JobQueue interface {
	Push(ctx context.Context, job *domain.DeliveryJob) error
}

// Matcher fans events out from the event log to the delivery queue.
type Matcher struct {
	log       EventLog
	store     EndpointStore
	queue     JobQueue
	cache     common.Cache
	consumer  string
	chainIDs  []uint64
	batchSize int64
	blockTime time.Duration
}

// New builds a Matcher. consumer must be unique per process (spec §6.5,
// CONSUMER_NAME); chainIDs lists every chain this process reads from.
func New(eventLog EventLog, store EndpointStore, q JobQueue, consumer string, chainIDs []uint64, batchSize int64, blockTime time.Duration) (*Matcher, error) {
	cache, err := common.NewCache(common.LRUShardConfig{CacheSize: 10000, NumShards: 16})
	if err != nil {
		return nil, err
	}
	return &Matcher{
		log:       eventLog,
		store:     store,
		queue:     q,
		cache:     cache,
		consumer:  consumer,
		chainIDs:  chainIDs,
		batchSize: batchSize,
		blockTime: blockTime,
	}, nil
}

// Run drives one goroutine per configured chain until ctx is canceled.
func (m *Matcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, chainID := range m.chainIDs {
		wg.Add(1)
		go func(chainID uint64) {
			defer wg.Done()
			m.runChain(ctx, chainID)
		}(chainID)
	}
	wg.Wait()
}

func (m *Matcher) runChain(ctx context.Context, chainID uint64) {
	if err := m.log.EnsureGroup(ctx, chainID, ConsumerGroup); err != nil {
		logger.Error("failed to ensure consumer group", "chain_id", chainID, "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Retry anything still sitting unacked in this consumer's pending
		// list, whether left over from a previous crash or withheld by
		// processBatch after a store/queue failure. Checked every
		// iteration so a withheld entry is retried after a bounded delay
		// (at most m.blockTime) instead of only on restart.
		if pending, err := m.log.ReadPending(ctx, chainID, ConsumerGroup, m.consumer, m.batchSize); err != nil {
			logger.Warn("failed to read pending entries", "chain_id", chainID, "err", err)
		} else if len(pending) > 0 {
			m.processBatch(ctx, chainID, pending)
		}

		entries, err := m.log.ReadGroup(ctx, chainID, ConsumerGroup, m.consumer, m.batchSize, m.blockTime)
		if err != nil {
			logger.Warn("read group failed, backing off", "chain_id", chainID, "err", err)
			time.Sleep(m.blockTime)
			continue
		}
		if len(entries) == 0 {
			continue
		}
		m.processBatch(ctx, chainID, entries)
	}
}

// processBatch matches every entry and acks only the entries whose
// candidate lookup and every matched enqueue succeeded. An entry whose
// store read fails or whose enqueue fails is left unacked so it stays in
// the consumer group's pending list and is retried, per spec §4.2's
// "never acknowledge until enqueue succeeds" rule — the batch is not
// acknowledged as a unit, each entry's ack stands on its own outcome.
func (m *Matcher) processBatch(ctx context.Context, chainID uint64, entries []eventlog.Entry) {
	ackIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		var ev domain.Event
		if err := json.Unmarshal([]byte(entry.Payload), &ev); err != nil {
			logger.Warn("skipping malformed event payload", "chain_id", chainID, "id", entry.ID, "err", err)
			// A malformed payload can never succeed on retry; ack it so a
			// poison entry doesn't block the cursor forever.
			ackIDs = append(ackIDs, entry.ID)
			continue
		}

		endpoints, err := m.candidates(chainID, ev.ContractAddress)
		if err != nil {
			logger.Error("failed to load candidate endpoints, withholding ack", "chain_id", chainID, "id", entry.ID, "err", err)
			continue
		}

		matched := 0
		enqueueFailed := false
		for _, ep := range endpoints {
			if !ep.Matches(chainID, ev.ContractAddress, ev.Topics) {
				continue
			}
			job := domain.NewDeliveryJob(ep, ev)
			if err := m.queue.Push(ctx, job); err != nil {
				logger.Warn("failed to enqueue delivery job, withholding ack", "endpoint_id", ep.EndpointID, "id", entry.ID, "err", err)
				enqueueFailed = true
				continue
			}
			matched++
		}
		if enqueueFailed {
			continue
		}

		if matched > 0 {
			metrics.MatchedEvents(chainID).Inc(1)
		} else {
			metrics.UnmatchedEvents(chainID).Inc(1)
		}
		ackIDs = append(ackIDs, entry.ID)
	}

	if len(ackIDs) == 0 {
		return
	}
	if err := m.log.Ack(ctx, chainID, ConsumerGroup, ackIDs...); err != nil {
		logger.Error("failed to ack batch", "chain_id", chainID, "err", err)
	}
}

// candidateTTL bounds how long a cached candidate list is reused before
// the config store is consulted again.
const candidateTTL = 10 * time.Second

type cachedCandidates struct {
	endpoints []*domain.Endpoint
	fetchedAt time.Time
}

// candidates returns the endpoints plausibly interested in address on
// chainID, consulting the shared LRU before hitting the config store.
// Topic filtering still happens per-event in processBatch: this cache
// only shortcuts the chain/address predicates.
func (m *Matcher) candidates(chainID uint64, address string) ([]*domain.Endpoint, error) {
	key := common.AddressKey(fmt.Sprintf("%d:%s", chainID, common.NormalizeAddress(address)))

	if v, ok := m.cache.Get(key); ok {
		if c := v.(cachedCandidates); time.Since(c.fetchedAt) < candidateTTL {
			return c.endpoints, nil
		}
	}

	endpoints, err := m.store.CandidateEndpoints(chainID, address)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, cachedCandidates{endpoints: endpoints, fetchedAt: time.Now()})
	return endpoints, nil
}
