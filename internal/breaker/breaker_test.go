package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_ClosedByDefault(t *testing.T) {
	m := NewManager(3, time.Minute)
	assert.True(t, m.Allow("ep1"))
	assert.Equal(t, Closed, m.State("ep1"))
}

func TestRecordFailure_TripsAfterThreshold(t *testing.T) {
	m := NewManager(3, time.Minute)
	m.RecordFailure("ep1")
	m.RecordFailure("ep1")
	assert.Equal(t, Closed, m.State("ep1"))
	assert.True(t, m.Allow("ep1"))

	m.RecordFailure("ep1")
	assert.Equal(t, Open, m.State("ep1"))
	assert.False(t, m.Allow("ep1"))
}

func TestRecordSuccess_ResetsBreaker(t *testing.T) {
	m := NewManager(2, time.Minute)
	m.RecordFailure("ep1")
	m.RecordFailure("ep1")
	assert.Equal(t, Open, m.State("ep1"))

	m.RecordSuccess("ep1")
	assert.Equal(t, Closed, m.State("ep1"))
	assert.Equal(t, 0, m.ConsecutiveFailures("ep1"))
}

func TestAllow_TransitionsToHalfOpenAfterTimeout(t *testing.T) {
	m := NewManager(1, 10*time.Millisecond)
	m.RecordFailure("ep1")
	assert.Equal(t, Open, m.State("ep1"))
	assert.False(t, m.Allow("ep1"))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, m.Allow("ep1"))
	assert.Equal(t, HalfOpen, m.State("ep1"))
}

func TestHalfOpenFailure_ReopensBreaker(t *testing.T) {
	m := NewManager(1, 10*time.Millisecond)
	m.RecordFailure("ep1")
	time.Sleep(15 * time.Millisecond)
	assert.True(t, m.Allow("ep1"))
	assert.Equal(t, HalfOpen, m.State("ep1"))

	m.RecordFailure("ep1")
	assert.Equal(t, Open, m.State("ep1"))
	assert.False(t, m.Allow("ep1"))
}

func TestHalfOpenSuccess_ClosesBreaker(t *testing.T) {
	m := NewManager(1, 10*time.Millisecond)
	m.RecordFailure("ep1")
	time.Sleep(15 * time.Millisecond)
	assert.True(t, m.Allow("ep1"))

	m.RecordSuccess("ep1")
	assert.Equal(t, Closed, m.State("ep1"))
	assert.True(t, m.Allow("ep1"))
}

func TestIndependentKeys(t *testing.T) {
	m := NewManager(1, time.Minute)
	m.RecordFailure("ep1")
	assert.Equal(t, Open, m.State("ep1"))
	assert.Equal(t, Closed, m.State("ep2"))
}

func TestStats(t *testing.T) {
	m := NewManager(1, time.Minute)
	m.RecordFailure("ep1")
	m.Allow("ep2")
	s := m.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Open)
	assert.Equal(t, 1, s.Closed)
}
