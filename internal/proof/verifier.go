package proof

import (
	"context"
	"errors"
	"fmt"

	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/sentinel"
)

// Verifier re-hashes stored bytes for a set of refs. It never trusts the hash
// recorded on the ref without reading the bytes back.
type Verifier struct {
	store Store
}

func NewVerifier(store Store) *Verifier {
	return &Verifier{store: store}
}

// Verify checks every ref. Missing bytes and hash mismatches both fail with
// CodeProofTampered naming the offending content hash.
func (v *Verifier) Verify(ctx context.Context, refs []Ref) error {
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "proof verification cancelled")
		}
		data, err := v.store.Get(ctx, ref.ContentHash)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeProofTampered, fmt.Sprintf("proof %s is missing from storage", ref.ContentHash))
			}
			if errors.Is(err, sentinel.ErrUnavailable) {
				return dErrors.Wrap(err, dErrors.CodeTimeout, "proof storage unavailable")
			}
			return fmt.Errorf("load proof %s: %w", ref.ContentHash, err)
		}
		if !ref.ContentHash.Matches(data) {
			return dErrors.New(dErrors.CodeProofTampered, fmt.Sprintf("proof %s does not match its content hash", ref.ContentHash))
		}
	}
	return nil
}
