package common

import "testing"

import "github.com/stretchr/testify/assert"

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
		{"a0B8", "0xa0b8"},
		{"0x", "0x"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeAddress(c.in))
	}
}

func TestDecodeHexUint64(t *testing.T) {
	v, err := DecodeHexUint64("0x1a")
	assert.NoError(t, err)
	assert.Equal(t, uint64(26), v)

	_, err = DecodeHexUint64("not-hex")
	assert.Error(t, err)

	v, err = DecodeHexUint64("0x")
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestDecodeHexUint32Overflow(t *testing.T) {
	_, err := DecodeHexUint32("0x100000000")
	assert.Error(t, err)
}

func TestDecodeEncodeHexBytesRoundTrip(t *testing.T) {
	b, err := DecodeHexBytes("0xdeadbeef")
	assert.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", EncodeHexBytes(b))
}
