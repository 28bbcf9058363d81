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

// Package journal is the Attempt Journal (spec §3, C5): an append-only
// Postgres log of delivery attempts, written once per attempt by the
// delivery worker and never read by the core.
package journal

import (
	"github.com/jinzhu/gorm"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ethhook/ethhook/domain"
	"github.com/ethhook/ethhook/log"
)

var logger = log.NewModuleLogger(log.ModuleJournal)

// Journal is a handle onto the delivery_attempts table.
type Journal struct {
	db *gorm.DB
}

// Open connects to dsn and verifies it's reachable.
func Open(dsn string) (*Journal, error) {
	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "journal: connect")
	}
	if err := db.DB().Ping(); err != nil {
		return nil, errors.Wrap(err, "journal: ping")
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one attempt row. Insert is idempotent on ID: a retried
// insert with the same attempt ID (worker crash-and-resume) is a no-op
// rather than a duplicate row (Testable Property 10).
func (j *Journal) Record(rec *domain.AttemptRecord) error {
	err := j.db.Create(rec).Error
	if err != nil && isDuplicateKey(err) {
		logger.Debug("attempt already journaled, skipping", "id", rec.ID)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "journal: insert attempt")
	}
	return nil
}

func isDuplicateKey(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == "23505" // unique_violation
}
