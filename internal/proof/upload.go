package proof

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/requestcontext"
)

// DefaultAllowedMediaTypes are the evidence formats accepted for upload.
var DefaultAllowedMediaTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/webp",
	"text/plain",
}

// Uploader detects the media type of uploaded evidence from its bytes and
// stores it. The client-declared content type is ignored.
type Uploader struct {
	store    Store
	allowed  []string
	maxBytes int64
}

func NewUploader(store Store, maxBytes int64, allowed ...string) *Uploader {
	if len(allowed) == 0 {
		allowed = DefaultAllowedMediaTypes
	}
	return &Uploader{store: store, allowed: allowed, maxBytes: maxBytes}
}

// Upload stores data and returns a ref attributed to uploader.
func (u *Uploader) Upload(ctx context.Context, uploader domain.UserID, data []byte) (Ref, error) {
	if len(data) == 0 {
		return Ref{}, dErrors.New(dErrors.CodeBadRequest, "proof is empty")
	}
	if u.maxBytes > 0 && int64(len(data)) > u.maxBytes {
		return Ref{}, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("proof exceeds %d bytes", u.maxBytes))
	}

	mt := mimetype.Detect(data)
	if !u.isAllowed(mt) {
		return Ref{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("media type %s is not accepted", mt.String()))
	}

	hash, err := u.store.Put(ctx, data)
	if err != nil {
		return Ref{}, fmt.Errorf("store proof: %w", err)
	}
	return Ref{
		ContentHash: hash,
		MediaType:   baseType(mt),
		SizeBytes:   int64(len(data)),
		UploadedBy:  uploader,
		UploadedAt:  requestcontext.Now(ctx),
	}, nil
}

func (u *Uploader) isAllowed(mt *mimetype.MIME) bool {
	return slices.Contains(u.allowed, baseType(mt))
}

// baseType strips parameters such as "; charset=utf-8".
func baseType(mt *mimetype.MIME) string {
	base, _, _ := strings.Cut(mt.String(), ";")
	return strings.TrimSpace(base)
}
