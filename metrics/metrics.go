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

// Package metrics registers the rcrowley/go-metrics instruments each
// component needs (ingestor lag, breaker state, matcher throughput,
// delivery latency) and exposes them to Prometheus via promhttp, the same
// exporter shape cmd/kcn wires up for the node process.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rmetrics "github.com/rcrowley/go-metrics"
)

// DefaultRegistry is the process-wide rcrowley registry every gauge and
// counter in this package attaches to, mirroring rcrowley/go-metrics'
// own DefaultRegistry convention.
var DefaultRegistry = rmetrics.NewRegistry()

// ChainLag returns (registering if needed) the gauge tracking how many
// seconds behind the processed block's own timestamp the ingestor
// currently is (spec §4.1).
func ChainLag(chainID uint64) rmetrics.Gauge {
	return rmetrics.GetOrRegisterGauge(fmt.Sprintf("ingestor/%d/lag_seconds", chainID), DefaultRegistry)
}

// BreakerState returns the gauge for a circuit breaker's numeric state
// (0=closed, 1=open, 2=half_open) under the given component/key pair.
func BreakerState(component, key string) rmetrics.Gauge {
	return rmetrics.GetOrRegisterGauge(fmt.Sprintf("%s/%s/breaker_state", component, key), DefaultRegistry)
}

// MatchedEvents counts events the matcher fanned out to at least one
// endpoint.
func MatchedEvents(chainID uint64) rmetrics.Counter {
	return rmetrics.GetOrRegisterCounter(fmt.Sprintf("matcher/%d/matched_total", chainID), DefaultRegistry)
}

// UnmatchedEvents counts events the matcher found no endpoint for.
func UnmatchedEvents(chainID uint64) rmetrics.Counter {
	return rmetrics.GetOrRegisterCounter(fmt.Sprintf("matcher/%d/unmatched_total", chainID), DefaultRegistry)
}

// DeliveryAttempts counts delivery attempts per outcome ("success",
// "retryable_failure", "non_retryable_failure", "circuit_skipped").
func DeliveryAttempts(outcome string) rmetrics.Counter {
	return rmetrics.GetOrRegisterCounter(fmt.Sprintf("delivery/attempts/%s", outcome), DefaultRegistry)
}

// DeliveryLatency is the webhook POST round-trip timer.
func DeliveryLatency() rmetrics.Timer {
	return rmetrics.GetOrRegisterTimer("delivery/latency", DefaultRegistry)
}

// QueueDepth tracks the delivery queue's current length (spec §4.2,
// backpressure).
func QueueDepth() rmetrics.Gauge {
	return rmetrics.GetOrRegisterGauge("queue/depth", DefaultRegistry)
}

// ServeExporter starts an HTTP server exposing DefaultRegistry to
// Prometheus at /metrics via promhttp, polling rcrowley's registry on the
// given interval the way cmd/kcn's prometheusmetrics.NewPrometheusProvider
// does.
func ServeExporter(addr string, interval time.Duration) error {
	registerer := prometheus.NewRegistry()
	provider := newPrometheusProvider(DefaultRegistry, registerer, interval)
	go provider.run()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
