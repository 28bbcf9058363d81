package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	e1 := &Event{ChainID: 1, TxHash: "0xabc", LogIndex: 3}
	e2 := &Event{ChainID: 1, TxHash: "0xabc", LogIndex: 3}
	e3 := &Event{ChainID: 1, TxHash: "0xabc", LogIndex: 4}

	assert.Equal(t, e1.Fingerprint(), e2.Fingerprint())
	assert.NotEqual(t, e1.Fingerprint(), e3.Fingerprint())
	assert.Equal(t, "1:0xabc:3", e1.Fingerprint())
}

func TestSignature(t *testing.T) {
	e := &Event{Topics: nil}
	assert.Equal(t, "", e.Signature())

	e2 := &Event{Topics: []string{"0xsig", "0xa"}}
	assert.Equal(t, "0xsig", e2.Signature())
}
