package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/goliatone/go-payhooks/core"
)

const (
	AlgorithmSHA256 = "sha256"
	AlgorithmSHA512 = "sha512"
)

// ProviderWebhookTemplate bundles what a provider needs to run through a
// Processor.
type ProviderWebhookTemplate struct {
	ProviderID        string
	Verifier          Verifier
	Parser            EventParser
	SuccessEventTypes []string
}

// HeaderHMACVerifier checks an HMAC carried in a request header against the
// raw body.
type HeaderHMACVerifier struct {
	Header    string
	Prefix    string
	Secret    string
	Algorithm string // sha256 | sha512
	Encoding  string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	expected := ComputeHMAC(v.Algorithm, secret, req.Body)

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
	default:
		decoded, err = hex.DecodeString(strings.ToLower(signature))
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

// ComputeHMAC signs body with secret. Unknown algorithms fall back to sha256.
func ComputeHMAC(algorithm string, secret string, body []byte) []byte {
	mac := hmac.New(hashFunc(algorithm), []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// SignHex returns the hex-encoded HMAC a provider would send for body.
func SignHex(algorithm string, secret string, body []byte) string {
	return hex.EncodeToString(ComputeHMAC(algorithm, secret, body))
}

func hashFunc(algorithm string) func() hash.Hash {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case AlgorithmSHA512:
		return sha512.New
	default:
		return sha256.New
	}
}
