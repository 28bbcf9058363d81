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

// Package configstore is the Config Store (spec §3, C1): a read-only view
// over the applications and endpoints the admin side owns. The core never
// writes through this package (spec §6.3).
package configstore

import (
	"sync"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ethhook/ethhook/domain"
	"github.com/ethhook/ethhook/log"
)

var logger = log.NewModuleLogger(log.ModuleConfigStore)

// Store is a read-only handle onto the Postgres-backed config tables.
type Store struct {
	db *gorm.DB

	mu          sync.RWMutex
	cachedAt    time.Time
	cacheTTL    time.Duration
	activeByID  map[string][]*domain.Endpoint // whole active set under the single key "*"
}

// Open connects to dsn and verifies it's reachable. cacheTTL bounds how
// long the in-process active-endpoint snapshot is reused before a refresh
// (spec §6.3: "equivalent client-side filtering over a per-chain active
// set").
func Open(dsn string, cacheTTL time.Duration) (*Store, error) {
	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "configstore: connect")
	}
	if err := db.DB().Ping(); err != nil {
		return nil, errors.Wrap(err, "configstore: ping")
	}
	return &Store{db: db, cacheTTL: cacheTTL, activeByID: make(map[string][]*domain.Endpoint)}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// MatchingEndpoints returns every active endpoint whose filters match
// (chainID, contractAddress, topics), per spec §6.3 and §4.2. Rows that
// fail domain.Endpoint.Validate are skipped with a warn log (spec §7,
// Validation kind) rather than failing the whole lookup.
func (s *Store) MatchingEndpoints(chainID uint64, contractAddress string, topics []string) ([]*domain.Endpoint, error) {
	all, err := s.activeEndpoints()
	if err != nil {
		return nil, err
	}

	var out []*domain.Endpoint
	for _, ep := range all {
		if ep.Matches(chainID, contractAddress, topics) {
			out = append(out, ep)
		}
	}
	return out, nil
}

// CandidateEndpoints returns every active endpoint whose chain_ids and
// contract_addresses predicates match, leaving event_signatures
// unevaluated (domain.Endpoint.MatchesChainAndContract). The matcher's
// per-(chain,address) cache uses this narrower query so a cached entry
// stays correct regardless of which topics a later event carries.
func (s *Store) CandidateEndpoints(chainID uint64, contractAddress string) ([]*domain.Endpoint, error) {
	all, err := s.activeEndpoints()
	if err != nil {
		return nil, err
	}

	var out []*domain.Endpoint
	for _, ep := range all {
		if ep.MatchesChainAndContract(chainID, contractAddress) {
			out = append(out, ep)
		}
	}
	return out, nil
}

// activeEndpoints returns the full active-endpoint set, refreshing from
// Postgres once cacheTTL has elapsed since the last load.
func (s *Store) activeEndpoints() ([]*domain.Endpoint, error) {
	s.mu.RLock()
	fresh := time.Since(s.cachedAt) < s.cacheTTL
	cached := s.activeByID["*"]
	s.mu.RUnlock()
	if fresh && cached != nil {
		return cached, nil
	}

	var rows []domain.Endpoint
	if err := s.db.Where("is_active = ?", true).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "configstore: query active endpoints")
	}

	valid := make([]*domain.Endpoint, 0, len(rows))
	for i := range rows {
		ep := &rows[i]
		if err := ep.Validate(); err != nil {
			logger.Warn("skipping invalid endpoint row", "endpoint_id", ep.EndpointID, "err", err)
			continue
		}
		valid = append(valid, ep)
	}

	s.mu.Lock()
	s.activeByID["*"] = valid
	s.cachedAt = time.Now()
	s.mu.Unlock()

	return valid, nil
}

// Application looks up the owning application for logging/metrics context.
func (s *Store) Application(appID string) (*domain.Application, error) {
	var app domain.Application
	if err := s.db.Where("id = ?", appID).First(&app).Error; err != nil {
		return nil, errors.Wrapf(err, "configstore: load application %s", appID)
	}
	return &app, nil
}
