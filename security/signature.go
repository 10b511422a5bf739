package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the inbound push-webhook signature header.
const SignatureHeader = "X-Hub-Signature-256"

// SignBody computes the "sha256=<hex>" HMAC-SHA-256 signature of a raw
// request body.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a supplied "sha256=<hex>" header value
// against the body and secret in constant time. Missing prefix or
// malformed hex fails closed.
func VerifySignature(body []byte, secret, header string) bool {
	if secret == "" || !strings.HasPrefix(header, "sha256=") {
		return false
	}
	supplied, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(supplied, mac.Sum(nil))
}
