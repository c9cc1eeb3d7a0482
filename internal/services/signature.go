package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// VerifyWebhookSignature checks that providedHex is the lowercase hex
// HMAC-SHA256 of body under secret. The length check runs first: an
// unequal-length signature is rejected before the MAC is computed, which
// leaks only the length. Mismatch and malformed input are indistinguishable
// to the caller, and neither the secret nor the computed MAC is ever logged
// or returned.
func VerifyWebhookSignature(body []byte, providedHex string, secret []byte) bool {
	if len(secret) == 0 {
		return false
	}
	// hex encoding of a sha256 MAC is always 64 characters
	if len(providedHex) != hex.EncodedLen(sha256.Size) {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expectedHex := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expectedHex), []byte(providedHex)) == 1
}
