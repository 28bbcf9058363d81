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

// Package backoff implements the exponential-backoff-with-jitter formula
// shared by the ingestor's reconnect policy (spec §4.1) and the delivery
// worker's retry loop (spec §4.3): min(base * 2^n, max) +/- 20% jitter.
package backoff

import (
	"math/rand"
	"time"
)

// MaxConsecutiveFailureExponent caps the exponent used in the backoff
// formula (spec §4.1: "n is consecutive-failure count capped at 10").
const MaxConsecutiveFailureExponent = 10

// Duration computes min(base * 2^attempt, max) with +/-20% uniform jitter.
// attempt is clamped to MaxConsecutiveFailureExponent before exponentiation
// so huge failure counts can't overflow.
func Duration(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > MaxConsecutiveFailureExponent {
		attempt = MaxConsecutiveFailureExponent
	}

	exp := base
	for i := 0; i < attempt; i++ {
		exp *= 2
		if exp <= 0 || exp > max { // overflow guard or already past cap
			exp = max
			break
		}
	}
	if exp > max {
		exp = max
	}

	return jitter(exp)
}

// jitter multiplies d by a uniformly random factor in [0.8, 1.2].
func jitter(d time.Duration) time.Duration {
	factor := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * factor)
}
