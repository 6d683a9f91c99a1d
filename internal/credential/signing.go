package credential

import (
	"crypto/ed25519"
	"time"

	actmodels "credence/internal/activity/models"
	"credence/internal/credential/models"
	"credence/internal/proof"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

// sign builds the canonical payload for a, hashes it with sha256 and signs
// the hash string with the tenant key.
func sign(a *actmodels.Activity, verifier domain.UserID, key *SigningKey, now time.Time) (*models.Credential, error) {
	hashes := make([]string, 0, len(a.ProofRefs))
	for _, ref := range a.ProofRefs {
		hashes = append(hashes, ref.ContentHash.String())
	}
	p := models.Payload{
		CredentialID: domain.NewCredentialID(),
		TenantID:     a.TenantID,
		ActivityID:   a.ID,
		StudentID:    a.StudentID,
		ActivityType: string(a.Type),
		Title:        a.Title,
		Department:   a.Department,
		VerifierID:   verifier,
		VerifiedAt:   a.LastTransitionAt,
		ProofHashes:  hashes,
		KeyID:        key.KeyID,
		IssuedAt:     now,
	}
	data, err := EncodePayload(p)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode credential payload")
	}
	hash, err := proof.Compute(proof.AlgSHA256, data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash credential payload")
	}
	return &models.Credential{
		ID:          p.CredentialID,
		TenantID:    a.TenantID,
		ActivityID:  a.ID,
		SubjectID:   a.StudentID,
		KeyID:       key.KeyID,
		IssuedAt:    now,
		Payload:     data,
		PayloadHash: hash,
		Signature:   ed25519.Sign(key.Private, []byte(hash.String())),
	}, nil
}

// VerifyCredential checks c without any service state, given the issuing
// tenant's public key. A revoked credential is authentic but not valid.
func VerifyCredential(c *models.Credential, pub ed25519.PublicKey) models.VerifyResult {
	result := models.VerifyResult{CredentialID: c.ID, Revoked: c.IsRevoked()}
	if !c.PayloadHash.Matches(c.Payload) {
		result.Reason = "payload does not match its hash"
		return result
	}
	if len(pub) != ed25519.PublicKeySize || !ed25519.Verify(pub, []byte(c.PayloadHash.String()), c.Signature) {
		result.Reason = "signature does not verify"
		return result
	}
	p, err := DecodePayload(c.Payload)
	if err != nil {
		result.Reason = "payload is not canonical CBOR"
		return result
	}
	if p.CredentialID != c.ID || p.TenantID != c.TenantID || p.ActivityID != c.ActivityID || p.StudentID != c.SubjectID {
		result.Reason = "payload describes a different credential"
		return result
	}
	if result.Revoked {
		result.Reason = "credential was revoked"
		return result
	}
	result.Valid = true
	return result
}
