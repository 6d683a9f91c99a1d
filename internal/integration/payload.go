package integration

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"credence/internal/activity/service"
	"credence/internal/proof"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

//go:embed schema/activity.json
var schemaFS embed.FS

const activitySchemaURL = "credence://integration/activity.json"

// ActivityPayload is the body of an inbound activity request.
type ActivityPayload struct {
	ExternalRef        string       `json:"external_ref,omitempty"`
	StudentID          string       `json:"student_id"`
	Type               string       `json:"type"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Department         string       `json:"department,omitempty"`
	AssignedVerifierID string       `json:"assigned_verifier_id,omitempty"`
	ProofWaived        bool         `json:"proof_waived,omitempty"`
	Submit             bool         `json:"submit,omitempty"`
	ProofRefs          []ProofInput `json:"proof_refs,omitempty"`
}

type ProofInput struct {
	ContentHash string `json:"content_hash"`
	MediaType   string `json:"media_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

func compileActivitySchema() (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schema/activity.json")
	if err != nil {
		return nil, fmt.Errorf("read activity schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(activitySchemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add activity schema: %w", err)
	}
	schema, err := compiler.Compile(activitySchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile activity schema: %w", err)
	}
	return schema, nil
}

// parsePayload validates body against the schema and decodes it.
func parsePayload(schema *jsonschema.Schema, body []byte) (*ActivityPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, dErrors.New(dErrors.CodeValidation, schemaMessage(verr))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "payload does not match schema")
	}

	var p ActivityPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return &p, nil
}

// schemaMessage reports the most specific cause.
func schemaMessage(verr *jsonschema.ValidationError) string {
	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("payload %s: %s", loc, leaf.Message)
}

// CreateRequest maps the payload onto the activity registry input.
func (p *ActivityPayload) CreateRequest(uploadedBy domain.UserID, now time.Time) (service.CreateRequest, error) {
	studentID, err := domain.ParseUserID(p.StudentID)
	if err != nil {
		return service.CreateRequest{}, dErrors.New(dErrors.CodeValidation, "student_id must be a UUID")
	}
	req := service.CreateRequest{
		StudentID:   studentID,
		Type:        p.Type,
		Title:       p.Title,
		Description: p.Description,
		Department:  p.Department,
		ProofWaived: p.ProofWaived,
		Submit:      p.Submit,
	}
	if p.AssignedVerifierID != "" {
		verifierID, err := domain.ParseUserID(p.AssignedVerifierID)
		if err != nil {
			return service.CreateRequest{}, dErrors.New(dErrors.CodeValidation, "assigned_verifier_id must be a UUID")
		}
		req.AssignedVerifierID = verifierID
	}
	for _, in := range p.ProofRefs {
		hash, err := proof.ParseContentHash(in.ContentHash)
		if err != nil {
			return service.CreateRequest{}, err
		}
		req.ProofRefs = append(req.ProofRefs, proof.Ref{
			ContentHash: hash,
			MediaType:   in.MediaType,
			SizeBytes:   in.SizeBytes,
			UploadedBy:  uploadedBy,
			UploadedAt:  now,
		})
	}
	return req, nil
}
