package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of the raw request body.
	SignatureHeader = "X-Hub-Signature-256"
	SignaturePrefix = "sha256="
)

// VerifySignature verifies a GitHub "sha256=<hex>" signature of body keyed by
// secret. Malformed signatures are reported as a mismatch.
func VerifySignature(secret, signature string, body []byte) bool {
	hexDigest, ok := strings.CutPrefix(signature, SignaturePrefix)
	if !ok || hexDigest == "" {
		return false
	}

	received, err := hex.DecodeString(hexDigest)
	if err != nil || len(received) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal(mac.Sum(nil), received)
}
