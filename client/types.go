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

package client

// RawHeader is the "newHeads" subscription payload (spec §6.1). Fields
// stay as raw hex strings here; the ingestor parses them with
// common.DecodeHexUint64 and friends.
type RawHeader struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

// RawBlock is the eth_getBlockByNumber(num, true) response shape (spec
// §6.1): a block header plus full transaction objects.
type RawBlock struct {
	Number       string     `json:"number"`
	Hash         string     `json:"hash"`
	ParentHash   string     `json:"parentHash"`
	Timestamp    string     `json:"timestamp"`
	Transactions []RawTx    `json:"transactions"`
}

// RawTx is one transaction embedded in a RawBlock.
type RawTx struct {
	Hash string `json:"hash"`
}

// RawReceipt is the eth_getTransactionReceipt response shape (spec §6.1).
type RawReceipt struct {
	TransactionHash string   `json:"transactionHash"`
	Status          string   `json:"status"`
	Logs            []RawLog `json:"logs"`
}

// RawLog is one entry of RawReceipt.Logs.
type RawLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	LogIndex    string   `json:"logIndex"`
	BlockNumber string   `json:"blockNumber"`
	BlockHash   string   `json:"blockHash"`
	TxHash      string   `json:"transactionHash"`
	Removed     bool     `json:"removed"`
}
