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

// Package client is a minimal JSON-RPC 2.0 client over a persistent
// WebSocket connection, used by the ingestor to talk to one chain's node
// (spec §6.1). It speaks request/response calls and eth_subscribe-style
// notification streams over the same socket.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	gws "github.com/clevergo/websocket"
	"github.com/pkg/errors"

	"github.com/ethhook/ethhook/log"
)

var logger = log.NewModuleLogger(log.ModuleClient)

// ErrClosed is returned by CallContext/Subscribe once the client has been
// closed, either explicitly or because the underlying socket died.
var ErrClosed = errors.New("client: connection closed")

type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonrpcError) Error() string { return e.Message }

type jsonrpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type subscriptionParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// Client is a connected JSON-RPC 2.0 websocket peer. A Client serves
// exactly one underlying connection; reconnect logic lives one layer up
// in the ingestor's supervisor (spec §4.1), which discards and replaces
// the Client on failure rather than trying to heal it in place.
type Client struct {
	url  string
	conn *gws.Conn

	idSeq uint64

	mu      sync.Mutex
	pending map[uint64]chan *jsonrpcMessage
	subs    map[string]chan json.RawMessage

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a websocket connection to url and starts the background read
// loop. Callers should pass a ctx with a reasonable deadline; once
// connected, the read loop runs until Close or a socket error.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := gws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "client: dial %s", url)
	}

	c := &Client{
		url:     url,
		conn:    conn,
		pending: make(map[uint64]chan *jsonrpcMessage),
		subs:    make(map[string]chan json.RawMessage),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close terminates the connection and unblocks any pending calls with
// ErrClosed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, ch := range c.pending {
			close(ch)
		}
		for _, ch := range c.subs {
			close(ch)
		}
	})
}

// CallContext issues a JSON-RPC call and decodes the result into result,
// mirroring the CallContext(ctx, &result, method, args...) shape used
// throughout this package.
func (c *Client) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	id := atomic.AddUint64(&c.idSeq, 1)
	respCh := make(chan *jsonrpcMessage, 1)

	c.mu.Lock()
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: args}
	if args == nil {
		req.Params = []interface{}{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "client: marshal request")
	}

	if err := c.conn.WriteMessage(gws.TextMessage, payload); err != nil {
		return errors.Wrap(err, "client: write request")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	case msg, ok := <-respCh:
		if !ok {
			return ErrClosed
		}
		if msg.Error != nil {
			return errors.Wrapf(msg.Error, "client: rpc error calling %s", method)
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return errors.Wrapf(err, "client: decode result of %s", method)
		}
		return nil
	}
}

// Subscribe issues an eth_subscribe call and returns a channel delivering
// each notification's raw "result" payload. The channel is closed when the
// client is closed; callers must call Unsubscribe to release it earlier.
func (c *Client) Subscribe(ctx context.Context, subscribeMethod string, args ...interface{}) (string, <-chan json.RawMessage, error) {
	var subID string
	if err := c.CallContext(ctx, &subID, subscribeMethod, args...); err != nil {
		return "", nil, err
	}

	ch := make(chan json.RawMessage, 256)
	c.mu.Lock()
	c.subs[subID] = ch
	c.mu.Unlock()

	return subID, ch, nil
}

// Unsubscribe stops routing notifications for subID and closes its channel.
func (c *Client) Unsubscribe(subID string) {
	c.mu.Lock()
	ch, ok := c.subs[subID]
	if ok {
		delete(c.subs, subID)
	}
	c.mu.Unlock()
	if ok {
		close(ch)
	}
}

// readLoop demultiplexes every frame on the socket into either a pending
// call's response channel or a subscription's notification channel.
// Malformed frames are Protocol-kind errors (spec §6.1): logged and
// skipped rather than tearing down the connection, since one bad frame
// shouldn't cost the whole chain's feed.
func (c *Client) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			logger.Warn("websocket read failed", "url", c.url, "err", err)
			return
		}

		var msg jsonrpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("malformed rpc frame", "url", c.url, "err", err)
			continue
		}

		if msg.ID != nil {
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			c.mu.Unlock()
			if ok {
				ch <- &msg
			}
			continue
		}

		if msg.Method == "eth_subscription" {
			var params subscriptionParams
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				logger.Warn("malformed subscription notification", "url", c.url, "err", err)
				continue
			}
			c.mu.Lock()
			ch, ok := c.subs[params.Subscription]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- params.Result:
				default:
					logger.Warn("subscription channel full, dropping notification", "url", c.url, "subscription", params.Subscription)
				}
			}
		}
	}
}
