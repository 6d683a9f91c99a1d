// Package integration accepts activities pushed by external systems (LMS, ERP
// adapters). Every request carries a tenant-bound HMAC signature that is
// checked before any activity is created from its contents.
package integration

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

const (
	HeaderTimestamp = "X-Credence-Timestamp"
	HeaderSignature = "X-Credence-Signature"

	defaultTolerance = 5 * time.Minute
)

// Sign returns hex(HMAC-SHA256(secret, timestamp + "." + body)).
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureVerifier holds one shared secret per tenant.
type SignatureVerifier struct {
	secrets   map[domain.TenantID][]byte
	tolerance time.Duration
}

// NewSignatureVerifier parses tenant-keyed secrets. A zero tolerance uses five minutes.
func NewSignatureVerifier(secrets map[string]string, tolerance time.Duration) (*SignatureVerifier, error) {
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	v := &SignatureVerifier{
		secrets:   make(map[domain.TenantID][]byte, len(secrets)),
		tolerance: tolerance,
	}
	for raw, secret := range secrets {
		tenantID, err := domain.ParseTenantID(raw)
		if err != nil {
			return nil, fmt.Errorf("inbound secret for %q: %w", raw, err)
		}
		if strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("inbound secret for %s is empty", tenantID)
		}
		v.secrets[tenantID] = []byte(secret)
	}
	return v, nil
}

// Verify checks the signature of body for tenantID at now. The returned error
// always carries CodeInvalidSignature; its message names the failed check and
// is meant for the audit trail, not for the caller.
func (v *SignatureVerifier) Verify(tenantID domain.TenantID, timestamp, signature string, body []byte, now time.Time) error {
	secret, ok := v.secrets[tenantID]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidSignature, "no inbound secret for tenant")
	}
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)
	if timestamp == "" || signature == "" {
		return dErrors.New(dErrors.CodeInvalidSignature, "missing signature headers")
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidSignature, "malformed timestamp")
	}
	skew := now.Sub(time.Unix(unix, 0))
	if skew < -v.tolerance || skew > v.tolerance {
		return dErrors.New(dErrors.CodeInvalidSignature, "timestamp outside tolerance window")
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidSignature, "signature is not hex")
	}
	expected, _ := hex.DecodeString(Sign(secret, timestamp, body))
	if !hmac.Equal(expected, provided) {
		return dErrors.New(dErrors.CodeInvalidSignature, "signature mismatch")
	}
	return nil
}
