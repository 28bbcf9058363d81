package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration_WithinJitterBounds(t *testing.T) {
	base := 2 * time.Second
	max := 60 * time.Second

	// attempt 0 (S5 scenario: second wait in [1.6, 2.4]s with base=2s).
	for i := 0; i < 200; i++ {
		d := Duration(base, max, 0)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8))
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.2))
	}

	// attempt 1 (S5 scenario: third wait in [3.2, 4.8]s).
	for i := 0; i < 200; i++ {
		d := Duration(base, max, 1)
		assert.GreaterOrEqual(t, d, time.Duration(float64(4*time.Second)*0.8))
		assert.LessOrEqual(t, d, time.Duration(float64(4*time.Second)*1.2))
	}
}

func TestDuration_CapsAtMax(t *testing.T) {
	d := Duration(time.Second, 5*time.Second, 20)
	assert.LessOrEqual(t, d, time.Duration(float64(5*time.Second)*1.2))
}

func TestDuration_NegativeAttemptTreatedAsZero(t *testing.T) {
	d := Duration(time.Second, time.Minute, -5)
	assert.GreaterOrEqual(t, d, time.Duration(float64(time.Second)*0.8))
	assert.LessOrEqual(t, d, time.Duration(float64(time.Second)*1.2))
}
