package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v7"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) (*Log, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, 1000), rdb
}

func TestAppendAndReadGroup_OrderPreserved(t *testing.T) {
	log := newLogOnly(t)
	ctx := context.Background()

	require.NoError(t, log.EnsureGroup(ctx, 1, "matcher"))

	_, err := log.Append(ctx, 1, "event-1")
	require.NoError(t, err)
	_, err = log.Append(ctx, 1, "event-2")
	require.NoError(t, err)

	entries, err := log.ReadGroup(ctx, 1, "matcher", "consumer-a", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "event-1", entries[0].Payload)
	require.Equal(t, "event-2", entries[1].Payload)
}

func TestReadGroup_DoesNotRedeliverBeforeAck(t *testing.T) {
	log := newLogOnly(t)
	ctx := context.Background()
	require.NoError(t, log.EnsureGroup(ctx, 1, "matcher"))

	_, err := log.Append(ctx, 1, "event-1")
	require.NoError(t, err)

	first, err := log.ReadGroup(ctx, 1, "matcher", "consumer-a", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := log.ReadGroup(ctx, 1, "matcher", "consumer-a", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestReadPending_RecoversUnackedEntries(t *testing.T) {
	log := newLogOnly(t)
	ctx := context.Background()
	require.NoError(t, log.EnsureGroup(ctx, 1, "matcher"))

	_, err := log.Append(ctx, 1, "event-1")
	require.NoError(t, err)

	delivered, err := log.ReadGroup(ctx, 1, "matcher", "consumer-a", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, delivered, 1)

	pending, err := log.ReadPending(ctx, 1, "matcher", "consumer-a", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, delivered[0].ID, pending[0].ID)
}

func TestAck_RemovesFromPending(t *testing.T) {
	log := newLogOnly(t)
	ctx := context.Background()
	require.NoError(t, log.EnsureGroup(ctx, 1, "matcher"))

	_, err := log.Append(ctx, 1, "event-1")
	require.NoError(t, err)

	delivered, err := log.ReadGroup(ctx, 1, "matcher", "consumer-a", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, delivered, 1)

	require.NoError(t, log.Ack(ctx, 1, "matcher", delivered[0].ID))

	count, err := log.PendingCount(ctx, 1, "matcher")
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func newLogOnly(t *testing.T) *Log {
	l, _ := newTestLog(t)
	return l
}
