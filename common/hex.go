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

package common

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// NormalizeAddress lowercases a hex address (with or without 0x prefix) and
// ensures a 0x prefix. The matcher and ingestor both normalize addresses
// this way so that case never matters for equality or map lookups.
func NormalizeAddress(addr string) string {
	return "0x" + strings.ToLower(strip0x(addr))
}

// NormalizeHex lowercases an arbitrary hex string and ensures a 0x prefix.
func NormalizeHex(h string) string {
	return "0x" + strings.ToLower(strip0x(h))
}

func strip0x(s string) string {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}

// DecodeHexUint64 parses a "0x"-prefixed hex-encoded quantity as used by
// Ethereum JSON-RPC responses (number, timestamp, blockNumber, ...).
func DecodeHexUint64(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	clean := strip0x(s)
	if clean == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(clean, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex quantity %q: %w", s, err)
	}
	return v, nil
}

// DecodeHexUint32 parses a hex-encoded quantity that is known to fit in 32 bits
// (e.g. a transaction or log index).
func DecodeHexUint32(s string) (uint32, error) {
	v, err := DecodeHexUint64(s)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, fmt.Errorf("hex quantity %q overflows uint32", s)
	}
	return uint32(v), nil
}

// DecodeHexBytes decodes a "0x"-prefixed hex byte string.
func DecodeHexBytes(s string) ([]byte, error) {
	clean := strip0x(s)
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	return hex.DecodeString(clean)
}

// EncodeHexBytes hex-encodes b with a lowercase 0x prefix.
func EncodeHexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// BigFromHex parses a hex quantity into a big.Int, used for fields that may
// legitimately exceed 64 bits (not currently needed by the Event model but
// kept for RPC responses that return arbitrary-precision quantities).
func BigFromHex(s string) (*big.Int, error) {
	clean := strip0x(s)
	if clean == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(clean, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex big integer %q", s)
	}
	return v, nil
}
