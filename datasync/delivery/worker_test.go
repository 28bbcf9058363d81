package delivery

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethhook/ethhook/domain"
	"github.com/ethhook/ethhook/internal/hmacsign"
	uuid "github.com/satori/go.uuid"
)

type fakeSource struct {
	mu          sync.Mutex
	jobs        []*domain.DeliveryJob
	readyCalls  int
}

func (f *fakeSource) Pop(ctx context.Context, timeout time.Duration) (*domain.DeliveryJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeSource) MarkReady(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyCalls++
	return nil
}

func (f *fakeSource) readyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readyCalls
}

type fakeJournal struct {
	mu      sync.Mutex
	records []*domain.AttemptRecord
}

func (f *fakeJournal) Record(rec *domain.AttemptRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeJournal) snapshot() []*domain.AttemptRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.AttemptRecord, len(f.records))
	copy(out, f.records)
	return out
}

func newJob(url string) *domain.DeliveryJob {
	return &domain.DeliveryJob{
		EndpointID:         uuid.NewV4(),
		WebhookURL:         url,
		HMACSecret:         []byte("topsecret"),
		Event:              domain.Event{ChainID: 1, TxHash: "0xabc", LogIndex: 0},
		Attempt:            1,
		MaxRetries:         5,
		TimeoutSeconds:     5,
		RateLimitPerSecond: 1000,
	}
}

func TestDeliver_SuccessOnFirstAttempt(t *testing.T) {
	var gotSig, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		buf, _ := ioutil.ReadAll(r.Body)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	journal := &fakeJournal{}
	pool := NewPool(nil, journal, 5, time.Minute, time.Second)

	job := newJob(srv.URL)
	pool.deliver(context.Background(), job)

	records := journal.snapshot()
	require.Len(t, records, 1)
	require.True(t, records[0].Success)
	require.True(t, hmacsign.Verify([]byte(gotBody), job.HMACSecret, gotSig))
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	journal := &fakeJournal{}
	pool := NewPool(nil, journal, 100, time.Minute, time.Second)

	job := newJob(srv.URL)
	pool.deliver(context.Background(), job)

	records := journal.snapshot()
	require.Len(t, records, 3)
	require.False(t, records[0].Success)
	require.False(t, records[1].Success)
	require.True(t, records[2].Success)
}

func TestDeliver_NonRetryableStatusStopsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	journal := &fakeJournal{}
	pool := NewPool(nil, journal, 100, time.Minute, time.Second)

	job := newJob(srv.URL)
	pool.deliver(context.Background(), job)

	records := journal.snapshot()
	require.Len(t, records, 1)
	require.False(t, records[0].Success)
	require.False(t, records[0].ShouldRetry)
}

func TestDeliver_RetryBoundIsMaxRetriesPlusOne(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	journal := &fakeJournal{}
	pool := NewPool(nil, journal, 1000, time.Minute, time.Second)

	job := newJob(srv.URL)
	job.MaxRetries = 2
	pool.deliver(context.Background(), job)

	require.Equal(t, int32(3), calls) // max_retries + 1
	records := journal.snapshot()
	require.Len(t, records, 3)
}

func TestDeliver_CircuitOpenSkipsWithSyntheticAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	journal := &fakeJournal{}
	pool := NewPool(nil, journal, 1, time.Hour, time.Second)

	job := newJob(srv.URL)
	job.MaxRetries = 0
	pool.deliver(context.Background(), job)

	// One real failed attempt trips the breaker (threshold 1); a second
	// job should be skipped without hitting the server.
	job2 := newJob(srv.URL)
	job2.EndpointID = job.EndpointID
	job2.MaxRetries = 0
	pool.deliver(context.Background(), job2)

	records := journal.snapshot()
	require.Len(t, records, 2)
	require.False(t, records[0].Success)
	require.Equal(t, "circuit breaker open", *records[1].ErrorMessage)
}

func TestRun_MarksReadyOnStartup(t *testing.T) {
	source := &fakeSource{}
	journal := &fakeJournal{}
	pool := NewPool(source, journal, 5, time.Minute, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	pool.Run(ctx, 1)

	require.GreaterOrEqual(t, source.readyCount(), 1)
}
