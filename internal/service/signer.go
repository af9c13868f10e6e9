package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HMACWebhookSigner implements ports.WebhookSigner using HMAC-SHA256.
type HMACWebhookSigner struct{}

// NewHMACWebhookSigner creates a new webhook signer.
func NewHMACWebhookSigner() *HMACWebhookSigner {
	return &HMACWebhookSigner{}
}

// Sign computes the signature header for a payload at timestamp ts.
// Format: "t=<unix>,v1=<hex hmac-sha256>" where the MAC covers "<unix>.<payload>".
func (s *HMACWebhookSigner) Sign(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// Verify checks a signature header against the payload. It rejects malformed
// headers, MAC mismatches, and timestamps outside the tolerance window.
// Comparison is constant-time.
func (s *HMACWebhookSigner) Verify(secret string, header string, payload []byte, now time.Time, tolerance time.Duration) error {
	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(tolerance.Seconds()) {
		return fmt.Errorf("signature timestamp outside tolerance: %ds", age)
	}

	expected := s.Sign(secret, ts, payload)
	_, expectedSig, _ := parseSignatureHeader(expected)
	if !hmac.Equal([]byte(expectedSig), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>" into its parts.
func parseSignatureHeader(header string) (int64, string, error) {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return 0, "", fmt.Errorf("malformed signature header")
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("malformed signature timestamp: %w", err)
			}
			ts = parsed
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", fmt.Errorf("incomplete signature header")
	}
	return ts, sig, nil
}
