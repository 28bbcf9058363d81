// Copyright 2018 The klaytn Authors
// Copyright 2016 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ethereum library. If not, see <http://www.gnu.org/licenses/>.
//
// This file is derived from ethclient/ethclient.go (2018/06/04).
// Modified and improved for the klaytn development.

package client

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// NewHeadsSubscription wraps the channel returned by SubscribeNewHeads
// along with the subscription id needed to unsubscribe.
type NewHeadsSubscription struct {
	c     *Client
	id    string
	Heads <-chan RawHeader
}

// Unsubscribe stops delivering new heads and releases the subscription.
func (s *NewHeadsSubscription) Unsubscribe() {
	s.c.Unsubscribe(s.id)
}

// SubscribeNewHeads opens an eth_subscribe("newHeads") stream (spec §6.1).
// Each decode failure is a Protocol-kind error: logged and skipped so one
// malformed notification doesn't tear down the subscription.
func (c *Client) SubscribeNewHeads(ctx context.Context) (*NewHeadsSubscription, error) {
	id, raw, err := c.Subscribe(ctx, "eth_subscribe", "newHeads")
	if err != nil {
		return nil, errors.Wrap(err, "client: eth_subscribe newHeads")
	}

	heads := make(chan RawHeader, 256)
	go func() {
		defer close(heads)
		for payload := range raw {
			var h RawHeader
			if err := json.Unmarshal(payload, &h); err != nil {
				logger.Warn("malformed newHeads notification", "err", err)
				continue
			}
			heads <- h
		}
	}()

	return &NewHeadsSubscription{c: c, id: id, Heads: heads}, nil
}

// BlockByNumber calls eth_getBlockByNumber(hexBlockNum, true), returning
// the block with full transaction objects (spec §6.1).
func (c *Client) BlockByNumber(ctx context.Context, hexBlockNum string) (*RawBlock, error) {
	var block RawBlock
	if err := c.CallContext(ctx, &block, "eth_getBlockByNumber", hexBlockNum, true); err != nil {
		return nil, errors.Wrapf(err, "client: eth_getBlockByNumber(%s)", hexBlockNum)
	}
	return &block, nil
}

// TransactionReceipt calls eth_getTransactionReceipt(hash) (spec §6.1).
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*RawReceipt, error) {
	var receipt RawReceipt
	if err := c.CallContext(ctx, &receipt, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, errors.Wrapf(err, "client: eth_getTransactionReceipt(%s)", txHash)
	}
	return &receipt, nil
}
