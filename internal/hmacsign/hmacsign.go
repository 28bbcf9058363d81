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

// Package hmacsign signs and verifies webhook bodies per spec §4.3/§6.2:
// lowercase hex HMAC-SHA256 of the exact request body bytes.
package hmacsign

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignatureLength is the length of the hex-encoded signature (spec §8,
// Testable Property 4).
const SignatureLength = sha256.Size * 2

// Sign returns the lowercase hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the correct HMAC-SHA256 of body under
// secret. Comparison is constant-time over the decoded bytes to avoid
// leaking information through timing, matching spec §4.3's requirement
// that verification be "constant-time compatible".
func Verify(body []byte, secret []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil || len(want) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	got := mac.Sum(nil)
	return subtle.ConstantTimeCompare(want, got) == 1
}
