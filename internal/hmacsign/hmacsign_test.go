package hmacsign

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"chain_id":1}`)
	secret := []byte("topsecret")

	sig := Sign(body, secret)
	assert.Len(t, sig, SignatureLength)
	assert.True(t, Verify(body, secret, sig))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	secret := []byte("topsecret")
	sig := Sign([]byte(`{"a":1}`), secret)
	assert.False(t, Verify([]byte(`{"a":2}`), secret, sig))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	sig := Sign([]byte(`{"a":1}`), []byte("s1"))
	assert.False(t, Verify([]byte(`{"a":1}`), []byte("s2"), sig))
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	assert.False(t, Verify([]byte("x"), []byte("s"), "not-hex"))
	assert.False(t, Verify([]byte("x"), []byte("s"), "abcd"))
}
