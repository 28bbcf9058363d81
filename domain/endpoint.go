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

package domain

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	uuid "github.com/satori/go.uuid"

	"github.com/ethhook/ethhook/common"
)

// Endpoint is a customer's webhook subscription: filter rules plus delivery
// configuration. The admin collaborator owns CRUD; the core only reads it.
type Endpoint struct {
	EndpointID uuid.UUID `gorm:"column:id;primary_key" json:"endpoint_id"`
	AppID      uuid.UUID `gorm:"column:application_id" json:"app_id"`

	// Filter rules. Empty/nil means "match all" per spec §3.
	ChainIDs          pq.Int64Array  `gorm:"column:chain_ids;type:integer[]" json:"chain_ids"`
	ContractAddresses pq.StringArray `gorm:"column:contract_addresses;type:text[]" json:"contract_addresses"`
	EventSignatures   pq.StringArray `gorm:"column:event_signatures;type:text[]" json:"event_signatures"`

	WebhookURL         string `gorm:"column:webhook_url" json:"webhook_url"`
	HMACSecret         []byte `gorm:"column:hmac_secret" json:"-"`
	RateLimitPerSecond int32  `gorm:"column:rate_limit_per_second" json:"rate_limit_per_second"`
	MaxRetries         int32  `gorm:"column:max_retries" json:"max_retries"`
	TimeoutSeconds     int32  `gorm:"column:timeout_seconds" json:"timeout_seconds"`

	IsActive bool `gorm:"column:is_active" json:"is_active"`
}

func (Endpoint) TableName() string { return "endpoints" }

// Validate enforces the invariants of spec §3: hmac_secret nonempty,
// webhook_url scheme http/https, max_retries >= 0, timeout_seconds > 0.
// A row that fails validation is a Validation error per §7: skip the
// endpoint, log at warn, keep going — never abort the matcher.
func (e *Endpoint) Validate() error {
	if len(e.HMACSecret) == 0 {
		return fmt.Errorf("endpoint %s: hmac_secret must not be empty", e.EndpointID)
	}
	u, err := url.Parse(e.WebhookURL)
	if err != nil {
		return fmt.Errorf("endpoint %s: invalid webhook_url: %w", e.EndpointID, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %s: webhook_url scheme must be http or https, got %q", e.EndpointID, u.Scheme)
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("endpoint %s: max_retries must be >= 0", e.EndpointID)
	}
	if e.TimeoutSeconds <= 0 {
		return fmt.Errorf("endpoint %s: timeout_seconds must be > 0", e.EndpointID)
	}
	return nil
}

// Matches implements the four predicates of spec §4.2. It is the single
// source of truth for matching: datasync/matcher applies it per event, and
// storage/configstore.MatchingEndpoints filters the loaded active set with
// it client-side rather than in SQL.
func (e *Endpoint) Matches(chainID uint64, contractAddress string, topics []string) bool {
	if !e.MatchesChainAndContract(chainID, contractAddress) {
		return false
	}
	if len(e.EventSignatures) > 0 {
		for _, sig := range e.EventSignatures {
			if !containsFold(topics, sig) {
				return false
			}
		}
	}
	return true
}

// MatchesChainAndContract applies the is_active, chain_ids and
// contract_addresses predicates only, leaving event_signatures
// unevaluated. The matcher's endpoint-filter cache keys on (chain,
// address) alone, so it pre-filters with this narrower check and applies
// the remaining event_signatures predicate per event via Matches.
func (e *Endpoint) MatchesChainAndContract(chainID uint64, contractAddress string) bool {
	if !e.IsActive {
		return false
	}
	if len(e.ChainIDs) > 0 {
		found := false
		for _, id := range e.ChainIDs {
			if uint64(id) == chainID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(e.ContractAddresses) > 0 {
		normalized := common.NormalizeAddress(contractAddress)
		found := false
		for _, a := range e.ContractAddresses {
			if common.NormalizeAddress(a) == normalized {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(topics []string, sig string) bool {
	target := strings.ToLower(sig)
	for _, t := range topics {
		if strings.ToLower(t) == target {
			return true
		}
	}
	return false
}
