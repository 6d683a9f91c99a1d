package credential

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

const (
	defaultKeyID = "k1"
	hkdfSalt     = "credence/credential-signing/v1"
)

// Keyring derives one ed25519 signing key per tenant and key id from a master
// secret. Rotating KeyID changes the signing key for new credentials while
// older credentials stay verifiable under their recorded key id.
type Keyring struct {
	master   []byte
	keyID    string
	disabled map[domain.TenantID]struct{}
}

// NewKeyring returns a keyring. An empty master secret disables issuance.
func NewKeyring(masterSecret, keyID string, disabled ...domain.TenantID) *Keyring {
	if keyID == "" {
		keyID = defaultKeyID
	}
	k := &Keyring{
		master:   []byte(masterSecret),
		keyID:    keyID,
		disabled: make(map[domain.TenantID]struct{}, len(disabled)),
	}
	for _, t := range disabled {
		k.disabled[t] = struct{}{}
	}
	return k
}

// SigningKey is the active key for one tenant.
type SigningKey struct {
	KeyID   string
	Private ed25519.PrivateKey
}

// Signer returns the tenant's active signing key.
func (k *Keyring) Signer(tenantID domain.TenantID) (*SigningKey, error) {
	if len(k.master) == 0 {
		return nil, dErrors.New(dErrors.CodeIssuanceUnavailable, "no issuing key is configured")
	}
	if _, off := k.disabled[tenantID]; off {
		return nil, dErrors.New(dErrors.CodeIssuanceUnavailable, "issuance is disabled for this tenant")
	}
	priv, err := k.derive(tenantID, k.keyID)
	if err != nil {
		return nil, err
	}
	return &SigningKey{KeyID: k.keyID, Private: priv}, nil
}

// PublicKey returns the verification key for a tenant and key id. Disabled
// tenants can still verify what they were issued.
func (k *Keyring) PublicKey(tenantID domain.TenantID, keyID string) (ed25519.PublicKey, error) {
	if len(k.master) == 0 {
		return nil, dErrors.New(dErrors.CodeIssuanceUnavailable, "no issuing key is configured")
	}
	priv, err := k.derive(tenantID, keyID)
	if err != nil {
		return nil, err
	}
	return priv.Public().(ed25519.PublicKey), nil
}

func (k *Keyring) derive(tenantID domain.TenantID, keyID string) (ed25519.PrivateKey, error) {
	info := []byte(keyID + ":" + tenantID.String())
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, k.master, []byte(hkdfSalt), info), seed); err != nil {
		return nil, dErrors.Wrap(fmt.Errorf("derive signing key: %w", err), dErrors.CodeIssuanceUnavailable, "issuing key could not be derived")
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
