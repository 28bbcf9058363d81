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

// Package queue is the Delivery Queue (spec §3, C4): a bounded FIFO of
// delivery jobs backed by a Redis list, pushed by the matcher and popped
// by delivery workers with a blocking read.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"

	"github.com/ethhook/ethhook/domain"
	"github.com/ethhook/ethhook/log"
	"github.com/ethhook/ethhook/metrics"
)

var logger = log.NewModuleLogger(log.ModuleQueue)

const (
	key         = "ethhook:queue:delivery"
	readyKey    = "webhook_delivery:ready"
	readyTTL    = 60 * time.Second
)

// ErrFull is a ResourceLimit-kind error (spec §7): the queue is at its
// configured bound. The matcher leaves the affected event unacked and
// retries it from the consumer group's pending list on its next loop
// iteration; it does not pause before that retry, and the other entries
// of the batch are still acked.
var ErrFull = errors.New("queue: delivery queue full")

// Queue is the Redis-list-backed bounded FIFO.
type Queue struct {
	rdb      *redis.Client
	maxLen   int64
}

// New builds a Queue over rdb bounded to maxLen jobs.
func New(rdb *redis.Client, maxLen int64) *Queue {
	return &Queue{rdb: rdb, maxLen: maxLen}
}

// Push enqueues job, returning ErrFull if the queue is already at its
// bound (spec §4.2 backpressure, Testable Property 9).
func (q *Queue) Push(ctx context.Context, job *domain.DeliveryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "queue: marshal job")
	}

	n, err := q.rdb.WithContext(ctx).LLen(key).Result()
	if err != nil {
		return errors.Wrap(err, "queue: LLEN")
	}
	if q.maxLen > 0 && n >= q.maxLen {
		metrics.QueueDepth().Update(n)
		return ErrFull
	}

	if err := q.rdb.WithContext(ctx).LPush(key, payload).Err(); err != nil {
		return errors.Wrap(err, "queue: LPUSH")
	}
	metrics.QueueDepth().Update(n + 1)
	return nil
}

// Pop blocks up to timeout for the next job, returning nil, nil on
// timeout with nothing available.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*domain.DeliveryJob, error) {
	res, err := q.rdb.WithContext(ctx).BRPop(timeout, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "queue: BRPOP")
	}
	if len(res) < 2 {
		return nil, errors.Errorf("queue: malformed BRPOP reply %v", res)
	}

	if n, err := q.rdb.WithContext(ctx).LLen(key).Result(); err == nil {
		metrics.QueueDepth().Update(n)
	}

	var job domain.DeliveryJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		logger.Warn("dropping malformed job payload", "err", err)
		return nil, errors.Wrap(err, "queue: decode job")
	}
	return &job, nil
}

// Len reports the current queue length, used for backpressure metrics.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.WithContext(ctx).LLen(key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "queue: LLEN")
	}
	return n, nil
}

// MarkReady sets the readiness sentinel key with its TTL (spec §6.6),
// meant to be called once on worker-pool startup and again on every
// heartbeat.
func (q *Queue) MarkReady(ctx context.Context) error {
	return q.rdb.WithContext(ctx).Set(readyKey, 1, readyTTL).Err()
}

// IsReady reports whether the sentinel key is currently present, for
// orchestrators that want to poll rather than watch heartbeats directly.
func (q *Queue) IsReady(ctx context.Context) (bool, error) {
	n, err := q.rdb.WithContext(ctx).Exists(readyKey).Result()
	if err != nil {
		return false, errors.Wrap(err, "queue: EXISTS ready sentinel")
	}
	return n > 0, nil
}
