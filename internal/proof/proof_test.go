package proof

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/requestcontext"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func TestCompute(t *testing.T) {
	h, err := Compute(AlgSHA256, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, ContentHash("sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"), h)
	assert.Equal(t, AlgSHA256, h.Algorithm())
	assert.True(t, h.Matches([]byte("abc")))
	assert.False(t, h.Matches([]byte("abd")))

	b, err := Compute(AlgBLAKE3, []byte("abc"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "blake3:"))
	assert.True(t, b.Matches([]byte("abc")))

	_, err = Compute("md5", []byte("abc"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParseContentHash(t *testing.T) {
	h, _ := Compute(AlgSHA256, []byte("abc"))
	parsed, err := ParseContentHash(strings.ToUpper(string(h)[len("sha256:"):]))
	require.Error(t, err, "missing algorithm prefix")
	assert.Empty(t, parsed)

	parsed, err = ParseContentHash(string(h))
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	for _, bad := range []string{"sha256:zz", "sha1:" + strings.Repeat("a", 40), "sha256:" + strings.Repeat("a", 10)} {
		_, err := ParseContentHash(bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), bad)
	}
}

type VerifierSuite struct {
	suite.Suite
	store    *InMemoryStore
	verifier *Verifier
	ctx      context.Context
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	s.store = NewInMemoryStore(AlgSHA256)
	s.verifier = NewVerifier(s.store)
	s.ctx = context.Background()
}

func (s *VerifierSuite) TestIntactProofsPass() {
	h1, err := s.store.Put(s.ctx, []byte("certificate"))
	s.Require().NoError(err)
	h2, err := s.store.Put(s.ctx, []byte("photo"))
	s.Require().NoError(err)

	s.NoError(s.verifier.Verify(s.ctx, []Ref{{ContentHash: h1}, {ContentHash: h2}}))
}

func (s *VerifierSuite) TestTamperedBytesFail() {
	h, err := s.store.Put(s.ctx, []byte("certificate"))
	s.Require().NoError(err)
	s.store.Overwrite(h, []byte("forged certificate"))

	err = s.verifier.Verify(s.ctx, []Ref{{ContentHash: h}})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeProofTampered))
	s.Contains(err.Error(), string(h))
}

func (s *VerifierSuite) TestMissingBytesFail() {
	h, _ := Compute(AlgSHA256, []byte("never uploaded"))
	err := s.verifier.Verify(s.ctx, []Ref{{ContentHash: h}})
	s.True(dErrors.HasCode(err, dErrors.CodeProofTampered))
}

func (s *VerifierSuite) TestClientSuppliedHashIsNotTrusted() {
	h, err := s.store.Put(s.ctx, []byte("real"))
	s.Require().NoError(err)
	forged, _ := Compute(AlgSHA256, []byte("claimed"))
	s.store.Overwrite(forged, []byte("real"))

	s.NoError(s.verifier.Verify(s.ctx, []Ref{{ContentHash: h}}))
	s.True(dErrors.HasCode(s.verifier.Verify(s.ctx, []Ref{{ContentHash: forged}}), dErrors.CodeProofTampered))
}

func TestUploader(t *testing.T) {
	store := NewInMemoryStore(AlgSHA256)
	up := NewUploader(store, 1024)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	user := domain.UserID(uuid.New())

	t.Run("stores pdf with detected media type", func(t *testing.T) {
		ref, err := up.Upload(ctx, user, pdfBytes)
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", ref.MediaType)
		assert.Equal(t, user, ref.UploadedBy)
		assert.Equal(t, now, ref.UploadedAt)
		assert.Equal(t, int64(len(pdfBytes)), ref.SizeBytes)

		stored, err := store.Get(ctx, ref.ContentHash)
		require.NoError(t, err)
		assert.Equal(t, pdfBytes, stored)
	})

	t.Run("rejects disallowed media type", func(t *testing.T) {
		_, err := up.Upload(ctx, user, []byte("<html><body>hi</body></html>"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects empty and oversized", func(t *testing.T) {
		_, err := up.Upload(ctx, user, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
		_, err = up.Upload(ctx, user, make([]byte, 2048))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
