// utils/signature_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"apiKey":"acme-key","externalEventId":"evt-1"}`)

	sig := ComputeWebhookSignature("secret", 1700000000, body)
	assert.True(t, VerifyWebhookSignature("secret", 1700000000, body, sig))

	// Any changed input invalidates the signature.
	assert.False(t, VerifyWebhookSignature("other-secret", 1700000000, body, sig))
	assert.False(t, VerifyWebhookSignature("secret", 1700000001, body, sig))
	assert.False(t, VerifyWebhookSignature("secret", 1700000000, []byte(`{}`), sig))
	assert.False(t, VerifyWebhookSignature("secret", 1700000000, body, sig[:len(sig)-1]+"x"))
}

func TestSignatureCoversTimestampDelimiter(t *testing.T) {
	// "12.34" body "x" and "1.234x"-style shifts must not collide.
	a := ComputeWebhookSignature("secret", 12, []byte("34x"))
	b := ComputeWebhookSignature("secret", 123, []byte("4x"))
	assert.NotEqual(t, a, b)
}
