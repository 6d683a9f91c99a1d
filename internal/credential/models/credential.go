package models

import (
	"time"

	"credence/internal/proof"
	"credence/pkg/domain"
)

// Credential is a signed attestation that an activity was verified.
// At most one unrevoked credential exists per activity. Revocation sets
// RevokedAt; credentials are never deleted.
type Credential struct {
	ID          domain.CredentialID `json:"id"`
	TenantID    domain.TenantID     `json:"tenant_id"`
	ActivityID  domain.ActivityID   `json:"activity_id"`
	SubjectID   domain.UserID       `json:"subject_id"`
	KeyID       string              `json:"key_id"`
	IssuedAt    time.Time           `json:"issued_at"`
	Payload     []byte              `json:"payload"`
	PayloadHash proof.ContentHash   `json:"payload_hash"`
	Signature   []byte              `json:"signature"`
	RevokedAt   *time.Time          `json:"revoked_at,omitempty"`
}

func (c *Credential) IsRevoked() bool {
	return c.RevokedAt != nil
}

// Payload is the signed content. It is encoded as deterministic CBOR so the
// same credential always hashes to the same bytes.
type Payload struct {
	CredentialID domain.CredentialID `cbor:"1,keyasint"`
	TenantID     domain.TenantID     `cbor:"2,keyasint"`
	ActivityID   domain.ActivityID   `cbor:"3,keyasint"`
	StudentID    domain.UserID       `cbor:"4,keyasint"`
	ActivityType string              `cbor:"5,keyasint"`
	Title        string              `cbor:"6,keyasint"`
	Department   string              `cbor:"7,keyasint,omitempty"`
	VerifierID   domain.UserID       `cbor:"8,keyasint"`
	VerifiedAt   time.Time           `cbor:"9,keyasint"`
	ProofHashes  []string            `cbor:"10,keyasint"`
	KeyID        string              `cbor:"11,keyasint"`
	IssuedAt     time.Time           `cbor:"12,keyasint"`
}

// VerifyResult reports whether a credential is authentic and still in force.
type VerifyResult struct {
	CredentialID domain.CredentialID `json:"credential_id"`
	Valid        bool                `json:"valid"`
	Revoked      bool                `json:"revoked"`
	Reason       string              `json:"reason,omitempty"`
}
