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

// Package dedup is the Dedup Index (spec §3, C2): a TTL-bounded set of
// event fingerprints backed by Redis SETNX, so the ingestor appends each
// fingerprint at most once within the TTL window (Testable Property 1).
package dedup

import (
	"context"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"

	"github.com/ethhook/ethhook/log"
)

var logger = log.NewModuleLogger(log.ModuleDedup)

const keyPrefix = "ethhook:dedup:"

// Index is the Redis-backed dedup set.
type Index struct {
	rdb *redis.Client
	ttl time.Duration
}

// New builds a dedup Index over rdb with the given per-entry TTL (spec
// §6.5, DEDUP_TTL_SECONDS).
func New(rdb *redis.Client, ttl time.Duration) *Index {
	return &Index{rdb: rdb, ttl: ttl}
}

// SeenOrMark atomically checks whether fingerprint has been recorded
// before and, if not, records it. It returns true if this call is the
// first to observe fingerprint within the TTL window (the caller should
// proceed), and false if a prior call already claimed it (the caller
// should skip the event as a duplicate).
func (idx *Index) SeenOrMark(ctx context.Context, fingerprint string) (firstSeen bool, err error) {
	ok, err := idx.rdb.WithContext(ctx).SetNX(keyPrefix+fingerprint, 1, idx.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "dedup: SETNX %s", fingerprint)
	}
	if !ok {
		logger.Debug("duplicate event suppressed", "fingerprint", fingerprint)
	}
	return ok, nil
}
