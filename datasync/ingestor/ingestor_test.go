package ingestor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethhook/ethhook/client"
)

type fakeRPC struct {
	mu      sync.Mutex
	heads   chan client.RawHeader
	blocks  map[string]*client.RawBlock
	receipt map[string]*client.RawReceipt
	closed  bool
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		heads:   make(chan client.RawHeader, 8),
		blocks:  make(map[string]*client.RawBlock),
		receipt: make(map[string]*client.RawReceipt),
	}
}

// SubscribeNewHeads is never exercised by these tests: they drive
// handleHead directly rather than going through stream(), since
// NewHeadsSubscription's fields are private to package client.
func (f *fakeRPC) SubscribeNewHeads(ctx context.Context) (*client.NewHeadsSubscription, error) {
	return nil, errNotFound
}

func (f *fakeRPC) BlockByNumber(ctx context.Context, hexBlockNum string) (*client.RawBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[hexBlockNum]
	if !ok {
		return nil, errNotFound
	}
	return b, nil
}

func (f *fakeRPC) TransactionReceipt(ctx context.Context, txHash string) (*client.RawReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipt[txHash]
	if !ok {
		return nil, errNotFound
	}
	return r, nil
}

func (f *fakeRPC) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

var errNotFound = &ingestorError{"not found"}

type fakeEventLog struct {
	mu       sync.Mutex
	payloads []string
}

func (f *fakeEventLog) Append(ctx context.Context, chainID uint64, payload string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return "0-1", nil
}

func (f *fakeEventLog) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.payloads))
	copy(out, f.payloads)
	return out
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: make(map[string]bool)}
}

func (f *fakeDedup) SeenOrMark(ctx context.Context, fingerprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[fingerprint] {
		return false, nil
	}
	f.seen[fingerprint] = true
	return true, nil
}

func testConfig() Config {
	return Config{
		ChainID:         1,
		WSURL:           "ws://fake",
		BackoffBase:     time.Millisecond,
		BackoffMax:      10 * time.Millisecond,
		BreakerTimeout:  10 * time.Millisecond,
		WatchdogTimeout: 50 * time.Millisecond,
	}
}

func sampleReceipt(txHash string, logs []client.RawLog) *client.RawReceipt {
	return &client.RawReceipt{TransactionHash: txHash, Status: "0x1", Logs: logs}
}

func TestHandleHead_AppendsNewEvent(t *testing.T) {
	rpc := newFakeRPC()
	rpc.blocks["0x1"] = &client.RawBlock{
		Number:       "0x1",
		Timestamp:    "0x5f5e100",
		Transactions: []client.RawTx{{Hash: "0xtx1"}},
	}
	rpc.receipt["0xtx1"] = sampleReceipt("0xtx1", []client.RawLog{
		{
			Address:     "0xAbC0000000000000000000000000000000000000",
			Topics:      []string{"0xdead"},
			Data:        "0x",
			LogIndex:    "0x0",
			BlockNumber: "0x1",
			BlockHash:   "0xblockhash",
			TxHash:      "0xtx1",
		},
	})

	eventLog := &fakeEventLog{}
	dedup := newFakeDedup()
	ig := New(testConfig(), eventLog, dedup, nil)

	ig.handleHead(context.Background(), rpc, client.RawHeader{Number: "0x1", Hash: "0xblockhash"})

	payloads := eventLog.snapshot()
	require.Len(t, payloads, 1)
}

func TestHandleHead_DuplicateFingerprintSuppressed(t *testing.T) {
	rpc := newFakeRPC()
	rpc.blocks["0x1"] = &client.RawBlock{
		Number:       "0x1",
		Timestamp:    "0x5f5e100",
		Transactions: []client.RawTx{{Hash: "0xtx1"}},
	}
	raw := []client.RawLog{{
		Address:     "0xAbC0000000000000000000000000000000000000",
		Topics:      []string{"0xdead"},
		Data:        "0x",
		LogIndex:    "0x0",
		BlockNumber: "0x1",
		BlockHash:   "0xblockhash",
		TxHash:      "0xtx1",
	}}
	rpc.receipt["0xtx1"] = sampleReceipt("0xtx1", raw)

	eventLog := &fakeEventLog{}
	dedup := newFakeDedup()
	ig := New(testConfig(), eventLog, dedup, nil)

	ig.handleHead(context.Background(), rpc, client.RawHeader{Number: "0x1", Hash: "0xblockhash"})
	ig.handleHead(context.Background(), rpc, client.RawHeader{Number: "0x1", Hash: "0xblockhash"})

	require.Len(t, eventLog.snapshot(), 1)
}

func TestHandleHead_RemovedLogSkipped(t *testing.T) {
	rpc := newFakeRPC()
	rpc.blocks["0x1"] = &client.RawBlock{
		Number:       "0x1",
		Timestamp:    "0x5f5e100",
		Transactions: []client.RawTx{{Hash: "0xtx1"}},
	}
	rpc.receipt["0xtx1"] = sampleReceipt("0xtx1", []client.RawLog{
		{
			Address:     "0xAbC0000000000000000000000000000000000000",
			Topics:      []string{"0xdead"},
			LogIndex:    "0x0",
			BlockNumber: "0x1",
			BlockHash:   "0xblockhash",
			TxHash:      "0xtx1",
			Removed:     true,
		},
	})

	eventLog := &fakeEventLog{}
	dedup := newFakeDedup()
	ig := New(testConfig(), eventLog, dedup, nil)

	ig.handleHead(context.Background(), rpc, client.RawHeader{Number: "0x1", Hash: "0xblockhash"})

	require.Empty(t, eventLog.snapshot())
}

func TestHandleHead_MalformedLogEntrySkippedWithoutHalting(t *testing.T) {
	rpc := newFakeRPC()
	rpc.blocks["0x1"] = &client.RawBlock{
		Number:       "0x1",
		Timestamp:    "0x5f5e100",
		Transactions: []client.RawTx{{Hash: "0xtx1"}},
	}
	rpc.receipt["0xtx1"] = sampleReceipt("0xtx1", []client.RawLog{
		{
			Address:     "0xAbC0000000000000000000000000000000000000",
			LogIndex:    "not-hex",
			BlockNumber: "0x1",
			BlockHash:   "0xblockhash",
			TxHash:      "0xtx1",
		},
	})

	eventLog := &fakeEventLog{}
	dedup := newFakeDedup()
	ig := New(testConfig(), eventLog, dedup, nil)

	ig.handleHead(context.Background(), rpc, client.RawHeader{Number: "0x1", Hash: "0xblockhash"})

	require.Empty(t, eventLog.snapshot())
}

func TestRun_BreakerOpensAfterRepeatedDialFailures(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerTimeout = time.Hour

	var dialCount int
	var mu sync.Mutex
	dial := func(ctx context.Context, url string) (rpcClient, error) {
		mu.Lock()
		dialCount++
		mu.Unlock()
		return nil, errNotFound
	}

	ig := New(cfg, &fakeEventLog{}, newFakeDedup(), dial)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	ig.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	// Once the breaker trips (after connectionBreakerThreshold failures)
	// Run stops dialing and instead waits for BreakerTimeout (or ctx
	// cancellation), so the dial count settles at a small number rather
	// than growing for the whole test window.
	require.True(t, dialCount >= connectionBreakerThreshold)
	require.True(t, dialCount < 20)
}

func TestRun_TerminatesAfterMaxConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerTimeout = time.Millisecond

	dial := func(ctx context.Context, url string) (rpcClient, error) {
		return nil, errNotFound
	}

	ig := New(cfg, &fakeEventLog{}, newFakeDedup(), dial)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		ig.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not terminate after maxConsecutiveFailures consecutive failures")
	}

	require.Equal(t, maxConsecutiveFailures, ig.failures)
}
