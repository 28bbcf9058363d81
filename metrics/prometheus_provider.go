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

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	rmetrics "github.com/rcrowley/go-metrics"
)

// prometheusProvider polls an rcrowley registry on an interval and mirrors
// every gauge/counter/timer it finds into prometheus gauges, lazily
// registering one per metric name on first sight.
type prometheusProvider struct {
	registry   rmetrics.Registry
	registerer prometheus.Registerer
	interval   time.Duration

	mu     sync.Mutex
	gauges map[string]prometheus.Gauge
}

func newPrometheusProvider(registry rmetrics.Registry, registerer prometheus.Registerer, interval time.Duration) *prometheusProvider {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &prometheusProvider{
		registry:   registry,
		registerer: registerer,
		interval:   interval,
		gauges:     make(map[string]prometheus.Gauge),
	}
}

func (p *prometheusProvider) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for range ticker.C {
		p.sample()
	}
}

func (p *prometheusProvider) sample() {
	p.registry.Each(func(name string, i interface{}) {
		switch metric := i.(type) {
		case rmetrics.Gauge:
			p.set(name, float64(metric.Value()))
		case rmetrics.Counter:
			p.set(name, float64(metric.Count()))
		case rmetrics.Timer:
			p.set(name+"_count", float64(metric.Count()))
			p.set(name+"_mean_ns", metric.Mean())
		}
	})
}

func (p *prometheusProvider) set(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ethhook",
			Name:      sanitizeMetricName(name),
			Help:      "ethhook metric " + name,
		})
		p.registerer.MustRegister(g)
		p.gauges[name] = g
	}
	g.Set(value)
}

func sanitizeMetricName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
