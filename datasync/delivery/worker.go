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

// Package delivery implements the pooled Delivery Worker subsystem (spec
// §4.3): pull jobs, POST with an HMAC signature, enforce a per-endpoint
// circuit breaker and bounded exponential-backoff retry, and persist
// every completed attempt.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"golang.org/x/time/rate"

	"github.com/ethhook/ethhook/domain"
	"github.com/ethhook/ethhook/internal/backoff"
	"github.com/ethhook/ethhook/internal/breaker"
	"github.com/ethhook/ethhook/internal/hmacsign"
	"github.com/ethhook/ethhook/internal/retry"
	"github.com/ethhook/ethhook/log"
	"github.com/ethhook/ethhook/metrics"
)

var logger = log.NewModuleLogger(log.ModuleDelivery)

// JobSource is the subset of storage/queue.Queue workers pull from.
type JobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*domain.DeliveryJob, error)
	MarkReady(ctx context.Context) error
}

// readyHeartbeat is how often Run refreshes the readiness sentinel (spec
// §6.6: 60s TTL, refreshed every 20s).
const readyHeartbeat = 20 * time.Second

// Journal is the subset of storage/journal.Journal workers write to.
type Journal interface {
	Record(rec *domain.AttemptRecord) error
}

// Pool runs WorkerCount goroutines, each pulling and delivering jobs
// until its context is canceled.
type Pool struct {
	source  JobSource
	journal Journal
	breaker *breaker.Manager
	http    *http.Client
	popWait time.Duration

	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

// NewPool builds a delivery worker pool. breakerThreshold/breakerTimeout
// configure the per-endpoint circuit (spec §4.3, Testable Property 7);
// popWait bounds how long each worker blocks waiting for a job (spec
// default 5s).
func NewPool(source JobSource, journal Journal, breakerThreshold int, breakerTimeout time.Duration, popWait time.Duration) *Pool {
	return &Pool{
		source:   source,
		journal:  journal,
		breaker:  breaker.NewManager(breakerThreshold, breakerTimeout),
		http:     &http.Client{},
		popWait:  popWait,
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

// Run starts workerCount goroutines and blocks until ctx is canceled,
// alongside a heartbeat goroutine that keeps the readiness sentinel alive.
func (p *Pool) Run(ctx context.Context, workerCount int) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runReadyHeartbeat(ctx)
	}()

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
}

// runReadyHeartbeat refreshes the readiness sentinel on a fixed interval
// until ctx is canceled, marking it ready immediately on startup.
func (p *Pool) runReadyHeartbeat(ctx context.Context) {
	if err := p.source.MarkReady(ctx); err != nil {
		logger.Warn("failed to set readiness sentinel", "err", err)
	}

	ticker := time.NewTicker(readyHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.source.MarkReady(ctx); err != nil {
				logger.Warn("failed to refresh readiness sentinel", "err", err)
			}
		}
	}
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.source.Pop(ctx, p.popWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("failed to pop delivery job", "worker", id, "err", err)
			continue
		}
		if job == nil {
			continue
		}
		p.deliver(ctx, job)
	}
}

// deliver runs the full in-process retry loop for one job (spec §4.3):
// check the breaker before every POST, retry on a retryable outcome
// while attempts remain, and journal every completed attempt.
func (p *Pool) deliver(ctx context.Context, job *domain.DeliveryJob) {
	key := job.EndpointID.String()
	limiter := p.limiterFor(job)

	for {
		if !p.breaker.Allow(key) {
			p.recordSkipped(job)
			metrics.DeliveryAttempts("circuit_skipped").Inc(1)
			return
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		result := p.post(ctx, job)
		p.journalResult(job, result)

		if result.success {
			p.breaker.RecordSuccess(key)
			metrics.DeliveryAttempts("success").Inc(1)
			return
		}
		p.breaker.RecordFailure(key)

		if !result.shouldRetry || job.Attempt >= uint32(job.MaxRetries)+1 {
			metrics.DeliveryAttempts("non_retryable_failure").Inc(1)
			return
		}
		metrics.DeliveryAttempts("retryable_failure").Inc(1)

		wait := backoff.Duration(time.Second, 60*time.Second, int(job.Attempt)-1)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
		job.Attempt++
	}
}

type deliveryResult struct {
	success      bool
	statusCode   *int
	responseBody string
	errorMessage *string
	durationMs   int64
	shouldRetry  bool
}

// post sends exactly one HTTP POST for job, per spec §4.3: body is the
// event's JSON fields in a fixed order, signature is the HMAC of those
// exact bytes.
func (p *Pool) post(ctx context.Context, job *domain.DeliveryJob) deliveryResult {
	start := time.Now()

	body, err := json.Marshal(job.Event)
	if err != nil {
		msg := err.Error()
		return deliveryResult{errorMessage: &msg, shouldRetry: false, durationMs: 0}
	}

	signature := hmacsign.Sign(body, job.HMACSecret)

	reqCtx := ctx
	if job.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequest(http.MethodPost, job.WebhookURL, bytes.NewReader(body))
	if err != nil {
		msg := err.Error()
		return deliveryResult{errorMessage: &msg, shouldRetry: false, durationMs: time.Since(start).Milliseconds()}
	}
	req = req.WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Id", job.EndpointID.String())
	req.Header.Set("X-Webhook-Attempt", fmt.Sprintf("%d", job.Attempt))

	resp, err := p.http.Do(req)
	durationMs := time.Since(start).Milliseconds()
	metrics.DeliveryLatency().Update(time.Duration(durationMs) * time.Millisecond)
	if err != nil {
		msg := err.Error()
		logger.Warn("webhook delivery failed", "endpoint_id", job.EndpointID, "err", err)
		return deliveryResult{errorMessage: &msg, shouldRetry: true, durationMs: durationMs}
	}
	defer resp.Body.Close()

	raw, _ := ioutil.ReadAll(resp.Body)
	truncated := domain.TruncateResponseBody(raw)
	status := resp.StatusCode
	success := status >= 200 && status < 300

	if success {
		logger.Info("webhook delivered", "endpoint_id", job.EndpointID, "status", status, "duration_ms", durationMs)
	} else {
		logger.Warn("webhook delivery rejected", "endpoint_id", job.EndpointID, "status", status, "duration_ms", durationMs)
	}

	return deliveryResult{
		success:      success,
		statusCode:   &status,
		responseBody: truncated,
		shouldRetry:  !success && retry.IsRetryableStatus(status),
		durationMs:   durationMs,
	}
}

func (p *Pool) journalResult(job *domain.DeliveryJob, result deliveryResult) {
	now := time.Now()
	rec := &domain.AttemptRecord{
		ID:             uuid.NewV4(),
		EndpointID:     job.EndpointID,
		AttemptNumber:  job.Attempt,
		HTTPStatusCode: result.statusCode,
		ResponseBody:   result.responseBody,
		ErrorMessage:   result.errorMessage,
		AttemptedAt:    now.Add(-time.Duration(result.durationMs) * time.Millisecond),
		CompletedAt:    now,
		DurationMs:     result.durationMs,
		Success:        result.success,
		ShouldRetry:    result.shouldRetry,
	}
	if err := p.journal.Record(rec); err != nil {
		logger.Error("failed to journal delivery attempt", "endpoint_id", job.EndpointID, "err", err)
	}
}

// recordSkipped journals a synthetic attempt for a job dropped because the
// endpoint's breaker is OPEN (spec §4.3: "record a synthetic Attempt with
// skipped reason").
func (p *Pool) recordSkipped(job *domain.DeliveryJob) {
	msg := "circuit breaker open"
	now := time.Now()
	rec := &domain.AttemptRecord{
		ID:            uuid.NewV4(),
		EndpointID:    job.EndpointID,
		AttemptNumber: job.Attempt,
		ErrorMessage:  &msg,
		AttemptedAt:   now,
		CompletedAt:   now,
		Success:       false,
		ShouldRetry:   false,
	}
	if err := p.journal.Record(rec); err != nil {
		logger.Error("failed to journal skipped attempt", "endpoint_id", job.EndpointID, "err", err)
	}
}

func (p *Pool) limiterFor(job *domain.DeliveryJob) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[job.EndpointID]
	if !ok {
		rps := job.RateLimitPerSecond
		if rps <= 0 {
			rps = 10
		}
		l = rate.NewLimiter(rate.Limit(rps), int(rps))
		p.limiters[job.EndpointID] = l
	}
	return l
}
