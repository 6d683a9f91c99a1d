package models

import (
	"strings"
	"time"

	"credence/internal/proof"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

// ActivityType classifies a claimed achievement.
type ActivityType string

const (
	TypeConference       ActivityType = "conference"
	TypeCertification    ActivityType = "certification"
	TypeClub             ActivityType = "club"
	TypeCompetition      ActivityType = "competition"
	TypeInternship       ActivityType = "internship"
	TypeVolunteering     ActivityType = "volunteering"
	TypeCommunityService ActivityType = "community_service"
	TypeOther            ActivityType = "other"
)

var validTypes = map[ActivityType]bool{
	TypeConference:       true,
	TypeCertification:    true,
	TypeClub:             true,
	TypeCompetition:      true,
	TypeInternship:       true,
	TypeVolunteering:     true,
	TypeCommunityService: true,
	TypeOther:            true,
}

// ParseActivityType accepts the canonical snake_case names case-insensitively.
func ParseActivityType(s string) (ActivityType, error) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(s)))
	if !validTypes[t] {
		return "", dErrors.New(dErrors.CodeValidation, "unknown activity type")
	}
	return t, nil
}

func (t ActivityType) IsValid() bool  { return validTypes[t] }
func (t ActivityType) String() string { return string(t) }

// Activity is a claimed achievement moving through the verification lifecycle.
//
// Invariants:
//   - TenantID is immutable after construction
//   - Status changes only through ApplyTransition, paired with a ledger record
//   - Every non-draft activity has at least one proof ref or ProofWaived
//   - ProofRefs change only while Status is draft or pending_info
//   - Version increases by one on every write and is the optimistic concurrency token
//   - SequenceNo equals the highest ledger sequence recorded for the activity
//
// Activities are never deleted; rejection and withdrawal are terminal statuses.
type Activity struct {
	ID                  domain.ActivityID `json:"id"`
	TenantID            domain.TenantID   `json:"tenant_id"`
	StudentID           domain.UserID     `json:"student_id"`
	Type                ActivityType      `json:"type"`
	Title               string            `json:"title"`
	Description         string            `json:"description,omitempty"`
	Department          string            `json:"department"`
	AssignedVerifierID  domain.UserID     `json:"assigned_verifier_id,omitzero"`
	ProofRefs           []proof.Ref       `json:"proof_refs"`
	ProofWaived         bool              `json:"proof_waived"`
	Status              Status            `json:"status"`
	CreatedBy           domain.UserID     `json:"created_by"`
	CreatedAt           time.Time         `json:"created_at"`
	LastTransitionAt    time.Time         `json:"last_transition_at"`
	SequenceNo          int64             `json:"sequence_no"`
	Version             int64             `json:"version"`
	ProofsAtInfoRequest int               `json:"-"`
}

// NewActivityParams carries the validated inputs for NewActivity.
type NewActivityParams struct {
	ID                 domain.ActivityID
	TenantID           domain.TenantID
	StudentID          domain.UserID
	Type               ActivityType
	Title              string
	Description        string
	Department         string
	AssignedVerifierID domain.UserID
	ProofRefs          []proof.Ref
	ProofWaived        bool
	CreatedBy          domain.UserID
}

// NewActivity constructs a draft activity at version 1.
func NewActivity(p NewActivityParams, now time.Time) (*Activity, error) {
	if p.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant is required")
	}
	if p.StudentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "student is required")
	}
	if !p.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown activity type")
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len(title) > 256 {
		return nil, dErrors.New(dErrors.CodeValidation, "title must be 256 characters or less")
	}
	return &Activity{
		ID:                 p.ID,
		TenantID:           p.TenantID,
		StudentID:          p.StudentID,
		Type:               p.Type,
		Title:              title,
		Description:        strings.TrimSpace(p.Description),
		Department:         strings.TrimSpace(p.Department),
		AssignedVerifierID: p.AssignedVerifierID,
		ProofRefs:          append([]proof.Ref(nil), p.ProofRefs...),
		ProofWaived:        p.ProofWaived,
		Status:             StatusDraft,
		CreatedBy:          p.CreatedBy,
		CreatedAt:          now,
		LastTransitionAt:   now,
		Version:            1,
	}, nil
}

// IsOwner reports whether user is the student or the creator of the activity.
func (a *Activity) IsOwner(user domain.UserID) bool {
	return !user.IsNil() && (a.StudentID == user || a.CreatedBy == user)
}

// HasEvidence reports whether the activity may leave draft.
func (a *Activity) HasEvidence() bool {
	return len(a.ProofRefs) > 0 || a.ProofWaived
}

// CanAttachProof checks that proof refs are still mutable.
func (a *Activity) CanAttachProof() error {
	if a.Status != StatusDraft && a.Status != StatusPendingInfo {
		return dErrors.New(dErrors.CodeInvalidTransition, "proofs can only be attached to draft activities or after more information is requested")
	}
	return nil
}

// ApplyProof appends ref. Call CanAttachProof first.
func (a *Activity) ApplyProof(ref proof.Ref) {
	a.ProofRefs = append(a.ProofRefs, ref)
	a.Version++
}

// CanTransition validates action against the lifecycle and its evidence
// preconditions, returning the resulting status.
func (a *Activity) CanTransition(action Action) (Status, error) {
	to, err := Next(a.Status, action)
	if err != nil {
		return "", err
	}
	switch action {
	case ActionSubmit:
		if !a.HasEvidence() {
			return "", dErrors.New(dErrors.CodeInvalidTransition, "submit requires at least one proof or a waiver")
		}
	case ActionResubmit:
		if len(a.ProofRefs) <= a.ProofsAtInfoRequest {
			return "", dErrors.New(dErrors.CodeInvalidTransition, "resubmit requires a proof uploaded after information was requested")
		}
	}
	return to, nil
}

// ApplyTransition moves the activity to status `to` as ledger sequence seq.
// Call CanTransition first.
func (a *Activity) ApplyTransition(to Status, seq int64, now time.Time) {
	if to == StatusPendingInfo {
		a.ProofsAtInfoRequest = len(a.ProofRefs)
	}
	a.Status = to
	a.SequenceNo = seq
	a.LastTransitionAt = now
	a.Version++
}

// Clone returns a deep copy so stores never share slices with callers.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	c.ProofRefs = append([]proof.Ref(nil), a.ProofRefs...)
	return &c
}

// VisibleTo reports whether actor may read the activity. Actors of another
// tenant never can.
func (a *Activity) VisibleTo(actor domain.Actor) bool {
	if actor.TenantID != a.TenantID {
		return false
	}
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleIntegration:
		return true
	case domain.RoleVerifier:
		return (!a.AssignedVerifierID.IsNil() && a.AssignedVerifierID == actor.UserID) ||
			actor.InDepartment(a.Department)
	case domain.RoleStudent:
		return a.IsOwner(actor.UserID)
	default:
		return false
	}
}

// LockKey scopes units of work that mutate one activity.
func LockKey(id domain.ActivityID) string {
	return "activity:" + id.String()
}
