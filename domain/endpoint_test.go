package domain

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

const transferSig = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

func usdcEndpoint() *Endpoint {
	return &Endpoint{
		ChainIDs:          pq.Int64Array{1},
		ContractAddresses: pq.StringArray{"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
		EventSignatures:   pq.StringArray{transferSig},
		IsActive:          true,
	}
}

// S1: Transfer match, mixed-case contract address.
func TestMatches_S1_TransferMatch(t *testing.T) {
	ep := usdcEndpoint()
	ok := ep.Matches(1, "0xA0B86991c6218b36C1D19D4a2e9Eb0cE3606EB48", []string{
		transferSig,
		"0x000000000000000000000000alice00000000000000000000000000000000",
		"0x000000000000000000000000bob000000000000000000000000000000000",
	})
	assert.True(t, ok)
}

// S2: wildcard contract_addresses (nil/empty) still matches on signature.
func TestMatches_S2_WildcardContract(t *testing.T) {
	ep := &Endpoint{IsActive: true, EventSignatures: pq.StringArray{transferSig}}
	ok := ep.Matches(1, "0x1234567890123456789012345678901234567890", []string{transferSig})
	assert.True(t, ok)
}

// S3: wrong topic, no match.
func TestMatches_S3_WrongTopic(t *testing.T) {
	ep := &Endpoint{IsActive: true, EventSignatures: pq.StringArray{transferSig}}
	ok := ep.Matches(1, "0x1234567890123456789012345678901234567890", []string{
		"0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925",
	})
	assert.False(t, ok)
}

// S4: inactive endpoint never matches, even if filters would otherwise pass.
func TestMatches_S4_Inactive(t *testing.T) {
	ep := usdcEndpoint()
	ep.IsActive = false
	ok := ep.Matches(1, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", []string{transferSig})
	assert.False(t, ok)
}

func TestMatches_ChainIDMismatch(t *testing.T) {
	ep := usdcEndpoint()
	ok := ep.Matches(42, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", []string{transferSig})
	assert.False(t, ok)
}

func TestMatches_MultipleRequiredSignaturesAllMustAppear(t *testing.T) {
	other := "0x1111111111111111111111111111111111111111111111111111111111111111"
	ep := &Endpoint{IsActive: true, EventSignatures: pq.StringArray{transferSig, other}}

	assert.False(t, ep.Matches(1, "0xabc", []string{transferSig}))
	assert.True(t, ep.Matches(1, "0xabc", []string{transferSig, other, "0xextra"}))
}

func TestValidate(t *testing.T) {
	ep := usdcEndpoint()
	ep.WebhookURL = "https://example.com/hook"
	ep.HMACSecret = []byte("secret")
	ep.MaxRetries = 3
	ep.TimeoutSeconds = 10
	assert.NoError(t, ep.Validate())

	bad := *ep
	bad.HMACSecret = nil
	assert.Error(t, bad.Validate())

	bad2 := *ep
	bad2.WebhookURL = "ftp://example.com"
	assert.Error(t, bad2.Validate())

	bad3 := *ep
	bad3.MaxRetries = -1
	assert.Error(t, bad3.Validate())

	bad4 := *ep
	bad4.TimeoutSeconds = 0
	assert.Error(t, bad4.Validate())
}
