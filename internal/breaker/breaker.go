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

// Package breaker implements the three-state (CLOSED/OPEN/HALF_OPEN)
// circuit breaker used both by the per-chain ingestor connection
// supervisor (spec §4.1) and by the per-endpoint delivery worker (spec
// §4.3). A Manager is a process-local table keyed by an arbitrary string
// (the delivery pool keys by endpoint id; each ingestor owns its own
// Manager with a single connection key) with init-on-first-use semantics
// and no teardown, matching spec §9's "global/module state" note.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type entry struct {
	state               State
	consecutiveFailures int
	openedAt            time.Time
}

// Manager is a concurrent, process-local circuit breaker table. Threshold
// consecutive failures trip CLOSED->OPEN; after timeout in OPEN, the next
// Allow() call admits a single HALF_OPEN probe.
type Manager struct {
	mu        sync.Mutex
	entries   map[string]*entry
	threshold int
	timeout   time.Duration
	now       func() time.Time // overridable for tests
}

// NewManager builds a breaker table. threshold is the consecutive-failure
// count that trips the breaker (spec default F=5 for delivery, 3 for
// ingestor connections); timeout is how long OPEN lasts before a probe is
// admitted (spec default W=60s for delivery).
func NewManager(threshold int, timeout time.Duration) *Manager {
	return &Manager{
		entries:   make(map[string]*entry),
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (m *Manager) getLocked(key string) *entry {
	e, ok := m.entries[key]
	if !ok {
		e = &entry{state: Closed}
		m.entries[key] = e
	}
	return e
}

// Allow reports whether a request for key should be admitted, transitioning
// OPEN->HALF_OPEN exactly once the timeout has elapsed (spec §4.3: "the
// first admit after W is a single probe").
func (m *Manager) Allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.getLocked(key)
	switch e.state {
	case Closed:
		return true
	case HalfOpen:
		// The probe has already been admitted; later requests are refused
		// until RecordSuccess or RecordFailure settles its outcome.
		return false
	case Open:
		if m.now().Sub(e.openedAt) >= m.timeout {
			e.state = HalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure counter and closes the circuit.
func (m *Manager) RecordSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.getLocked(key)
	e.consecutiveFailures = 0
	e.state = Closed
	e.openedAt = time.Time{}
}

// RecordFailure increments the failure counter. A failure in HALF_OPEN
// returns immediately to OPEN with a fresh timestamp (spec §4.1, §4.3).
// A failure in CLOSED only trips the breaker once threshold is reached.
func (m *Manager) RecordFailure(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.getLocked(key)
	e.consecutiveFailures++

	switch e.state {
	case HalfOpen:
		e.state = Open
		e.openedAt = m.now()
	case Closed:
		if e.consecutiveFailures >= m.threshold {
			e.state = Open
			e.openedAt = m.now()
		}
	case Open:
		e.openedAt = m.now()
	}
}

// State returns the current state for key (Closed if never seen).
func (m *Manager) State(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(key).state
}

// ConsecutiveFailures returns the current failure streak for key.
func (m *Manager) ConsecutiveFailures(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(key).consecutiveFailures
}

// Stats summarizes the breaker table for metrics/debug endpoints.
type Stats struct {
	Total, Closed, Open, HalfOpen int
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	s.Total = len(m.entries)
	for _, e := range m.entries {
		switch e.state {
		case Closed:
			s.Closed++
		case Open:
			s.Open++
		case HalfOpen:
			s.HalfOpen++
		}
	}
	return s
}
