package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v7"
	"github.com/stretchr/testify/require"

	"github.com/ethhook/ethhook/domain"
)

func newTestQueue(t *testing.T, maxLen int64) *Queue {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, maxLen)
}

func sampleJob() *domain.DeliveryJob {
	return domain.NewDeliveryJob(&domain.Endpoint{}, domain.Event{ChainID: 1, LogIndex: 0})
}

func TestPushPop_FIFO(t *testing.T) {
	q := newTestQueue(t, 0)
	ctx := context.Background()

	j1 := sampleJob()
	j1.Event.TxHash = "0xaaa"
	j2 := sampleJob()
	j2.Event.TxHash = "0xbbb"

	require.NoError(t, q.Push(ctx, j1))
	require.NoError(t, q.Push(ctx, j2))

	got1, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "0xaaa", got1.Event.TxHash)

	got2, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "0xbbb", got2.Event.TxHash)
}

func TestPop_TimesOutWithNilJob(t *testing.T) {
	q := newTestQueue(t, 0)
	job, err := q.Pop(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestPush_ReturnsErrFullAtBound(t *testing.T) {
	q := newTestQueue(t, 1)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, sampleJob()))
	err := q.Push(ctx, sampleJob())
	require.Equal(t, ErrFull, err)
}

func TestMarkReadyAndIsReady(t *testing.T) {
	q := newTestQueue(t, 0)
	ctx := context.Background()

	ready, err := q.IsReady(ctx)
	require.NoError(t, err)
	require.False(t, ready)

	require.NoError(t, q.MarkReady(ctx))

	ready, err = q.IsReady(ctx)
	require.NoError(t, err)
	require.True(t, ready)
}
