package triggers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// SignatureHeaders are checked in order for a webhook signature.
var SignatureHeaders = []string{"x-signature", "x-hub-signature-256"}

// SignatureVerifier checks a webhook signature against the raw request body.
type SignatureVerifier interface {
	Verify(secret string, payload []byte, signature string) bool
}

// HMACVerifier accepts hex encoded HMAC-SHA256 signatures, with or without a
// "sha256=" prefix.
type HMACVerifier struct{}

func (HMACVerifier) Verify(secret string, payload []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	return hmac.Equal(got, mac(secret, payload))
}

// Sign returns the "sha256=<hex>" signature HMACVerifier accepts.
func Sign(secret string, payload []byte) string {
	return signaturePrefix + hex.EncodeToString(mac(secret, payload))
}

func mac(secret string, payload []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)

	return h.Sum(nil)
}
