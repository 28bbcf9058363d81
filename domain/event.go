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

// Package domain holds the data model shared by every component of the
// pipeline: Event, Application, Endpoint, DeliveryJob and AttemptRecord.
package domain

import "fmt"

// Event is a normalized EVM log, the unit the ingestor appends to the event
// log and the matcher/worker carry through the rest of the pipeline.
type Event struct {
	ChainID         uint64   `json:"chain_id"`
	BlockNumber     uint64   `json:"block_number"`
	BlockHash       string   `json:"block_hash"`
	TxHash          string   `json:"transaction_hash"`
	LogIndex        uint32   `json:"log_index"`
	ContractAddress string   `json:"contract_address"` // always lowercase, 0x-prefixed
	Topics          []string `json:"topics"`            // length 0-4, topics[0] is the event signature when present
	Data            string   `json:"data"`
	BlockTimestamp  int64    `json:"timestamp"`
}

// Fingerprint returns the dedup key described by spec §3:
// (chain_id, tx_hash, log_index).
func (e *Event) Fingerprint() string {
	return fmt.Sprintf("%d:%s:%d", e.ChainID, e.TxHash, e.LogIndex)
}

// Signature returns topics[0], the event signature hash, or "" if the log
// has no topics (anonymous event).
func (e *Event) Signature() string {
	if len(e.Topics) == 0 {
		return ""
	}
	return e.Topics[0]
}
