package server

import (
	"math/rand"
	"strings"
	"testing"
)

const testSecret = "test-secret-at-least-32-chars-long-here"

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"repository":{"full_name":"acme/app"}}`)
	signature := MakeTestSignature(payload, testSecret)

	if !VerifySignature(testSecret, signature, payload) {
		t.Error("Expected valid signature to be accepted")
	}
}

func TestVerifySignature_Invalid(t *testing.T) {
	payload := []byte(`{"repository":{"full_name":"acme/app"}}`)
	signature := MakeTestSignature(payload, "wrong-secret-at-least-32-chars-long-x")

	if VerifySignature(testSecret, signature, payload) {
		t.Error("Expected invalid signature to be rejected")
	}
}

func TestVerifySignature_UppercaseHex(t *testing.T) {
	payload := []byte(`{}`)
	signature := MakeTestSignature(payload, testSecret)
	upper := SignaturePrefix + strings.ToUpper(strings.TrimPrefix(signature, SignaturePrefix))

	if !VerifySignature(testSecret, upper, payload) {
		t.Error("Expected hex digest to be compared as bytes, not text")
	}
}

func TestVerifySignature_MalformedSignature(t *testing.T) {
	payload := []byte(`{"repository":{"full_name":"acme/app"}}`)
	valid := MakeTestSignature(payload, testSecret)

	testCases := []struct {
		name      string
		signature string
	}{
		{"empty", ""},
		{"no prefix", strings.TrimPrefix(valid, SignaturePrefix)},
		{"wrong prefix", "sha1=" + strings.TrimPrefix(valid, SignaturePrefix)},
		{"no equals", "sha256abc123def456"},
		{"empty after prefix", "sha256="},
		{"non-hex digest", "sha256=zzzz"},
		{"odd length", valid[:len(valid)-1]},
		{"truncated digest", valid[:len(valid)-2]},
		{"extended digest", valid + "00"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifySignature(testSecret, tc.signature, payload) {
				t.Errorf("Expected malformed signature '%s' to be rejected", tc.signature)
			}
		})
	}
}

// Any single-bit change to the body or to the digest must fail verification.
func TestVerifySignature_BitFlips(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		body := make([]byte, 1+rng.Intn(256))
		rng.Read(body)
		secret := make([]byte, 8+rng.Intn(32))
		rng.Read(secret)

		signature := MakeTestSignature(body, string(secret))
		if !VerifySignature(string(secret), signature, body) {
			t.Fatalf("round %d: valid signature rejected", i)
		}

		for bit := 0; bit < len(body)*8; bit += 1 + rng.Intn(8) {
			mutated := append([]byte(nil), body...)
			mutated[bit/8] ^= 1 << (bit % 8)
			if VerifySignature(string(secret), signature, mutated) {
				t.Fatalf("round %d: body with bit %d flipped was accepted", i, bit)
			}
		}

		digest := []byte(strings.TrimPrefix(signature, SignaturePrefix))
		for pos := range digest {
			mutated := append([]byte(nil), digest...)
			// Replace one hex digit with a different one
			if mutated[pos] == '0' {
				mutated[pos] = '1'
			} else {
				mutated[pos] = '0'
			}
			if VerifySignature(string(secret), SignaturePrefix+string(mutated), body) {
				t.Fatalf("round %d: digest with position %d changed was accepted", i, pos)
			}
		}
	}
}
