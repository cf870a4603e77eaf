// utils/signature.go
package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// ComputeWebhookSignature returns the hex HMAC-SHA256 of
// "<unix_timestamp>.<raw_request_body>" under the partner secret.
// body must be the exact bytes received — never a re-serialization.
func ComputeWebhookSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature compares in constant time.
func VerifyWebhookSignature(secret string, timestamp int64, body []byte, signature string) bool {
	expected := ComputeWebhookSignature(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
