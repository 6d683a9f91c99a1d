package integration

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/testutil"
)

func TestSign(t *testing.T) {
	// hex(HMAC-SHA256("secret", "1700000000.{}"))
	got := Sign([]byte("secret"), "1700000000", []byte("{}"))
	assert.Len(t, got, 64)
	assert.Equal(t, got, Sign([]byte("secret"), "1700000000", []byte("{}")))
	assert.NotEqual(t, got, Sign([]byte("secret"), "1700000001", []byte("{}")))
	assert.NotEqual(t, got, Sign([]byte("other"), "1700000000", []byte("{}")))
}

func TestSignatureVerifier(t *testing.T) {
	tenant := testutil.NewTenantID()
	other := testutil.NewTenantID()
	now := time.Unix(1_767_225_600, 0)
	body := []byte(`{"title":"Hackathon"}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	v, err := NewSignatureVerifier(map[string]string{tenant.String(): "s3cret"}, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name      string
		tenant    domain.TenantID
		timestamp string
		signature string
		body      []byte
		wantMsg   string
	}{
		{name: "valid", tenant: tenant, timestamp: ts, signature: Sign([]byte("s3cret"), ts, body), body: body},
		{name: "unknown tenant", tenant: other, timestamp: ts, signature: Sign([]byte("s3cret"), ts, body), body: body, wantMsg: "no inbound secret for tenant"},
		{name: "missing signature", tenant: tenant, timestamp: ts, body: body, wantMsg: "missing signature headers"},
		{name: "malformed timestamp", tenant: tenant, timestamp: "yesterday", signature: "00", body: body, wantMsg: "malformed timestamp"},
		{
			name:      "stale timestamp",
			tenant:    tenant,
			timestamp: strconv.FormatInt(now.Add(-2*time.Minute).Unix(), 10),
			signature: Sign([]byte("s3cret"), strconv.FormatInt(now.Add(-2*time.Minute).Unix(), 10), body),
			body:      body,
			wantMsg:   "timestamp outside tolerance window",
		},
		{
			name:      "future timestamp",
			tenant:    tenant,
			timestamp: strconv.FormatInt(now.Add(2*time.Minute).Unix(), 10),
			signature: Sign([]byte("s3cret"), strconv.FormatInt(now.Add(2*time.Minute).Unix(), 10), body),
			body:      body,
			wantMsg:   "timestamp outside tolerance window",
		},
		{name: "non-hex signature", tenant: tenant, timestamp: ts, signature: "zz", body: body, wantMsg: "signature is not hex"},
		{name: "tampered body", tenant: tenant, timestamp: ts, signature: Sign([]byte("s3cret"), ts, body), body: []byte(`{"title":"Hackathon!"}`), wantMsg: "signature mismatch"},
		{name: "wrong secret", tenant: tenant, timestamp: ts, signature: Sign([]byte("guess"), ts, body), body: body, wantMsg: "signature mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.tenant, tt.timestamp, tt.signature, tt.body, now)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSignature))
			assert.Equal(t, tt.wantMsg, dErrors.MessageOf(err))
		})
	}
}

func TestNewSignatureVerifier_RejectsBadConfig(t *testing.T) {
	_, err := NewSignatureVerifier(map[string]string{"not-a-uuid": "s"}, 0)
	require.Error(t, err)

	_, err = NewSignatureVerifier(map[string]string{testutil.NewTenantID().String(): "  "}, 0)
	require.Error(t, err)
}
