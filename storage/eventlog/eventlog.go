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

// Package eventlog is the Event Log (spec §3, C3): one Redis stream per
// chain with a cursor-consumer-group, ack-required reads, and
// approximate-length trim, giving at-least-once delivery to the matcher
// via group redelivery of un-acked entries (Testable Property 8).
package eventlog

import (
	"fmt"
	"time"

	"context"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"

	"github.com/ethhook/ethhook/log"
)

var logger = log.NewModuleLogger(log.ModuleEventLog)

// Entry is one append log record together with the stream id the matcher
// must echo back on Ack.
type Entry struct {
	ID      string
	Payload string
}

// Log is the Redis-backed append log for a set of chains.
type Log struct {
	rdb      *redis.Client
	maxLen   int64
	ensured  map[string]bool
}

// New builds an event Log over rdb. maxLen bounds each stream's
// approximate length (spec §6.5, STREAM_MAX_LEN).
func New(rdb *redis.Client, maxLen int64) *Log {
	return &Log{rdb: rdb, maxLen: maxLen, ensured: make(map[string]bool)}
}

// StreamName returns the stream key for chainID (spec: "one log per
// chain").
func StreamName(chainID uint64) string {
	return fmt.Sprintf("ethhook:events:%d", chainID)
}

// EnsureGroup creates the stream and consumer group if they don't exist
// yet, mirroring XGROUP CREATE ... MKSTREAM. Safe to call repeatedly.
func (l *Log) EnsureGroup(ctx context.Context, chainID uint64, group string) error {
	stream := StreamName(chainID)
	cacheKey := stream + "/" + group
	if l.ensured[cacheKey] {
		return nil
	}

	err := l.rdb.WithContext(ctx).XGroupCreateMkStream(stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return errors.Wrapf(err, "eventlog: XGROUP CREATE %s %s", stream, group)
	}
	if err == nil {
		logger.Info("consumer group created", "stream", stream, "group", group)
	}
	l.ensured[cacheKey] = true
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Append adds payload to chainID's stream, trimming approximately to
// maxLen (spec §3: "approximate-length trim").
func (l *Log) Append(ctx context.Context, chainID uint64, payload string) (string, error) {
	stream := StreamName(chainID)
	id, err := l.rdb.WithContext(ctx).XAdd(&redis.XAddArgs{
		Stream:       stream,
		MaxLenApprox: l.maxLen,
		Values:       map[string]interface{}{"payload": payload},
	}).Result()
	if err != nil {
		return "", errors.Wrapf(err, "eventlog: XADD %s", stream)
	}
	return id, nil
}

// ReadGroup reads up to count new entries for chainID under group/consumer,
// blocking up to block for at least one entry. Previously-delivered,
// un-acked entries for this consumer are NOT returned here; call
// ReadPending to recover those (spec: "redelivery on non-ack").
func (l *Log) ReadGroup(ctx context.Context, chainID uint64, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	stream := StreamName(chainID)
	res, err := l.rdb.WithContext(ctx).XReadGroup(&redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "eventlog: XREADGROUP %s", stream)
	}
	return toEntries(res), nil
}

// ReadPending re-reads entries this consumer was delivered but never
// acked. The matcher calls it on every loop iteration, which covers both
// entries left over from before a restart and entries it withheld.
func (l *Log) ReadPending(ctx context.Context, chainID uint64, group, consumer string, count int64) ([]Entry, error) {
	stream := StreamName(chainID)
	res, err := l.rdb.WithContext(ctx).XReadGroup(&redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, "0"},
		Count:    count,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "eventlog: XREADGROUP (pending) %s", stream)
	}
	return toEntries(res), nil
}

func toEntries(res []redis.XStream) []Entry {
	var out []Entry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			payload, _ := msg.Values["payload"].(string)
			out = append(out, Entry{ID: msg.ID, Payload: payload})
		}
	}
	return out
}

// Ack acknowledges ids for chainID/group, matching XACK semantics. The
// matcher acks at batch granularity once every entry in the batch has been
// evaluated against the endpoint set (spec §4.2).
func (l *Log) Ack(ctx context.Context, chainID uint64, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	stream := StreamName(chainID)
	if err := l.rdb.WithContext(ctx).XAck(stream, group, ids...).Err(); err != nil {
		return errors.Wrapf(err, "eventlog: XACK %s", stream)
	}
	return nil
}

// PendingCount reports how many entries are currently delivered-but-unacked
// for group, used by metrics/debug surfaces to watch for a stuck matcher.
func (l *Log) PendingCount(ctx context.Context, chainID uint64, group string) (int64, error) {
	stream := StreamName(chainID)
	summary, err := l.rdb.WithContext(ctx).XPending(stream, group).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "eventlog: XPENDING %s", stream)
	}
	return summary.Count, nil
}
