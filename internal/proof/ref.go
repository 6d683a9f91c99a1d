package proof

import (
	"time"

	"credence/pkg/domain"
)

// Ref points at uploaded evidence by content address.
type Ref struct {
	ContentHash ContentHash   `json:"content_hash"`
	MediaType   string        `json:"media_type"`
	SizeBytes   int64         `json:"size_bytes"`
	UploadedBy  domain.UserID `json:"uploaded_by"`
	UploadedAt  time.Time     `json:"uploaded_at"`
}
