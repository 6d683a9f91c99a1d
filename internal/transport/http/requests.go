package httptransport

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"credence/internal/proof"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs struct tags and reports the first failure as a
// validation error naming the JSON field.
func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
	}
	fe := verrs[0]
	field := jsonName(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return dErrors.New(dErrors.CodeValidation, field+" is required")
	case "max":
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
	case "min":
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
	case "uuid":
		return dErrors.New(dErrors.CodeValidation, field+" must be a UUID")
	default:
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
}

// jsonName drops the struct name from a namespace such as
// "CreateActivityRequest.proof_refs[0].content_hash".
func jsonName(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

type ProofRefInput struct {
	ContentHash string `json:"content_hash" validate:"required,max=200"`
	MediaType   string `json:"media_type" validate:"max=100"`
	SizeBytes   int64  `json:"size_bytes" validate:"min=0"`
}

type CreateActivityRequest struct {
	StudentID          string          `json:"student_id" validate:"omitempty,uuid"`
	Type               string          `json:"type" validate:"required,max=50"`
	Title              string          `json:"title" validate:"required,max=200"`
	Description        string          `json:"description" validate:"max=4000"`
	Department         string          `json:"department" validate:"max=100"`
	AssignedVerifierID string          `json:"assigned_verifier_id" validate:"omitempty,uuid"`
	ProofRefs          []ProofRefInput `json:"proof_refs" validate:"max=20,dive"`
	ProofWaived        bool            `json:"proof_waived"`
	Submit             bool            `json:"submit"`
}

type TransitionRequest struct {
	Action          string `json:"action" validate:"required,max=50"`
	Comment         string `json:"comment" validate:"max=4000"`
	ExpectedVersion int64  `json:"expected_version" validate:"min=0"`
}

type BulkTransitionRequest struct {
	ActivityIDs []string `json:"activity_ids" validate:"required,min=1,dive,uuid"`
	Action      string   `json:"action" validate:"required,max=50"`
	Comment     string   `json:"comment" validate:"max=4000"`
}

type BulkItemResponse struct {
	ActivityID string `json:"activity_id"`
	Status     string `json:"status,omitempty"`
	SequenceNo int64  `json:"sequence_no,omitempty"`
	Version    int64  `json:"version,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"error_description,omitempty"`
}

type ConsistencyResponse struct {
	ActivityID string `json:"activity_id"`
	Consistent bool   `json:"consistent"`
	Problem    string `json:"problem,omitempty"`
}

func parseOptionalUserID(s string) (domain.UserID, error) {
	if s == "" {
		return domain.UserID{}, nil
	}
	return domain.ParseUserID(s)
}

func (r ProofRefInput) ref(uploadedBy domain.UserID) (proof.Ref, error) {
	hash, err := proof.ParseContentHash(r.ContentHash)
	if err != nil {
		return proof.Ref{}, err
	}
	return proof.Ref{
		ContentHash: hash,
		MediaType:   r.MediaType,
		SizeBytes:   r.SizeBytes,
		UploadedBy:  uploadedBy,
	}, nil
}
