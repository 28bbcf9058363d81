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

// Package config loads process configuration from environment variables
// per spec §6.5. Names are illustrative in the spec; this package pins
// concrete ones and their defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config holds every environment-derived setting shared across the three
// binaries. Not every field is meaningful to every binary: cmd/ingestor
// reads ChainWSURLs and ignores WorkerCount, cmd/worker reads WorkerCount
// and ignores BlockTime, and so on.
type Config struct {
	// Connection
	ChainWSURLs map[uint64]string // chain id -> {CHAIN}_WS_URL
	StoreURL    string            // QUEUE_URL substrate (dedup + event log + queue)
	ConfigURL   string            // Postgres DSN for the config store / attempt journal

	// Pool sizing
	WorkerCount int
	BatchSize   int
	BlockTime   time.Duration

	// Behavior
	HTTPTimeout             time.Duration
	MaxRetries              int
	RetryBaseDelay          time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	DedupTTL                time.Duration
	StreamMaxLen            int64

	// Identity
	ConsumerName string
}

const (
	defaultWorkerCount             = 10
	defaultBatchSize               = 100
	defaultBlockTimeMS             = 2000
	defaultHTTPTimeoutSecs         = 10
	defaultMaxRetries              = 5
	defaultRetryBaseDelaySecs      = 1
	defaultCircuitBreakerThreshold = 5
	defaultCircuitBreakerTimeout   = 60
	defaultDedupTTLSeconds         = 86400
	defaultStreamMaxLen            = 1_000_000
)

// ChainIDsEnv lists the chain ids this process serves, e.g. "1,137,42161".
// Each id's websocket endpoint is then read from "<id>_WS_URL" (spec §6.5:
// "{CHAIN}_WS_URL per chain").
const ChainIDsEnv = "CHAIN_IDS"

// Load builds a Config from the process environment, applying the
// defaults above for anything unset. It returns a Validation-kind error
// (per the spec §7 error taxonomy) if a required variable is malformed.
func Load() (*Config, error) {
	cfg := &Config{
		StoreURL:                getenv("QUEUE_URL", ""),
		ConfigURL:                getenv("CONFIG_URL", ""),
		WorkerCount:              defaultWorkerCount,
		BatchSize:                defaultBatchSize,
		BlockTime:                defaultBlockTimeMS * time.Millisecond,
		HTTPTimeout:              defaultHTTPTimeoutSecs * time.Second,
		MaxRetries:               defaultMaxRetries,
		RetryBaseDelay:           defaultRetryBaseDelaySecs * time.Second,
		CircuitBreakerThreshold:  defaultCircuitBreakerThreshold,
		CircuitBreakerTimeout:    defaultCircuitBreakerTimeout * time.Second,
		DedupTTL:                 defaultDedupTTLSeconds * time.Second,
		StreamMaxLen:             defaultStreamMaxLen,
	}

	var err error
	if cfg.WorkerCount, err = getenvInt("WORKER_COUNT", defaultWorkerCount); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getenvInt("BATCH_SIZE", defaultBatchSize); err != nil {
		return nil, err
	}
	blockMS, err := getenvInt("BLOCK_TIME_MS", defaultBlockTimeMS)
	if err != nil {
		return nil, err
	}
	cfg.BlockTime = time.Duration(blockMS) * time.Millisecond

	httpSecs, err := getenvInt("HTTP_TIMEOUT_SECS", defaultHTTPTimeoutSecs)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = time.Duration(httpSecs) * time.Second

	if cfg.MaxRetries, err = getenvInt("MAX_RETRIES", defaultMaxRetries); err != nil {
		return nil, err
	}

	retrySecs, err := getenvInt("RETRY_BASE_DELAY_SECS", defaultRetryBaseDelaySecs)
	if err != nil {
		return nil, err
	}
	cfg.RetryBaseDelay = time.Duration(retrySecs) * time.Second

	if cfg.CircuitBreakerThreshold, err = getenvInt("CIRCUIT_BREAKER_THRESHOLD", defaultCircuitBreakerThreshold); err != nil {
		return nil, err
	}

	cbTimeoutSecs, err := getenvInt("CIRCUIT_BREAKER_TIMEOUT_SECS", defaultCircuitBreakerTimeout)
	if err != nil {
		return nil, err
	}
	cfg.CircuitBreakerTimeout = time.Duration(cbTimeoutSecs) * time.Second

	dedupSecs, err := getenvInt("DEDUP_TTL_SECONDS", defaultDedupTTLSeconds)
	if err != nil {
		return nil, err
	}
	cfg.DedupTTL = time.Duration(dedupSecs) * time.Second

	streamMaxLen, err := getenvInt64("STREAM_MAX_LEN", defaultStreamMaxLen)
	if err != nil {
		return nil, err
	}
	cfg.StreamMaxLen = streamMaxLen

	cfg.ConsumerName = getenv("CONSUMER_NAME", hostnameOrFallback())

	cfg.ChainWSURLs, err = loadChainWSURLs()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadChainWSURLs reads CHAIN_IDS and resolves "<id>_WS_URL" for each.
func loadChainWSURLs() (map[uint64]string, error) {
	raw := os.Getenv(ChainIDsEnv)
	if raw == "" {
		return map[uint64]string{}, nil
	}

	urls := make(map[uint64]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "config: invalid chain id %q in %s", part, ChainIDsEnv)
		}
		key := part + "_WS_URL"
		url := os.Getenv(key)
		if url == "" {
			return nil, errors.Errorf("config: missing %s for chain id %d", key, id)
		}
		urls[id] = url
	}
	return urls, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid integer for %s", key)
	}
	return n, nil
}

func getenvInt64(key string, fallback int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid integer for %s", key)
	}
	return n, nil
}

func hostnameOrFallback() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "ethhook-unknown"
	}
	return h
}
