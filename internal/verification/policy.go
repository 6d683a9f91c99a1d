package verification

import (
	"fmt"

	actmodels "credence/internal/activity/models"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

// Subject carries the activity attributes authorization depends on.
type Subject struct {
	TenantID           domain.TenantID
	StudentID          domain.UserID
	CreatedBy          domain.UserID
	Department         string
	AssignedVerifierID domain.UserID
}

// SubjectOf projects an activity for Authorize.
func SubjectOf(a *actmodels.Activity) Subject {
	return Subject{
		TenantID:           a.TenantID,
		StudentID:          a.StudentID,
		CreatedBy:          a.CreatedBy,
		Department:         a.Department,
		AssignedVerifierID: a.AssignedVerifierID,
	}
}

func (s Subject) isOwner(user domain.UserID) bool {
	return !user.IsNil() && (s.StudentID == user || s.CreatedBy == user)
}

func (s Subject) isAssignedTo(actor domain.Actor) bool {
	if !s.AssignedVerifierID.IsNil() && s.AssignedVerifierID == actor.UserID {
		return true
	}
	return actor.InDepartment(s.Department)
}

// Authorize decides whether actor may perform action on subject.
// This is pure domain logic - no I/O, no side effects.
//
// Rule priority (fail-fast):
//  1. Tenant boundary - other tenants cannot see the activity at all
//  2. Role required by the action
//  3. Attribute checks (ownership, department or assignment)
//
// It does not check whether the action is legal from the current status; the
// lifecycle does that. Callers run Authorize first so an unauthorized actor
// learns nothing about the activity's state.
func Authorize(actor domain.Actor, subject Subject, action actmodels.Action) error {
	// Rule 1: Tenant boundary
	if actor.TenantID != subject.TenantID {
		return dErrors.New(dErrors.CodeNotFound, "activity not found")
	}

	switch action {
	case actmodels.ActionSubmit, actmodels.ActionResubmit:
		if !subject.isOwner(actor.UserID) {
			return denied(action, "only the owner may %s")
		}
		return nil

	case actmodels.ActionApprove:
		if actor.Role != domain.RoleVerifier {
			return denied(action, "only verifiers may %s")
		}
		if subject.isOwner(actor.UserID) {
			return denied(action, "verifiers may not %s their own activity")
		}
		if !subject.isAssignedTo(actor) {
			return denied(action, "verifier is not assigned to this activity's department; cannot %s")
		}
		return nil

	case actmodels.ActionReject, actmodels.ActionRequestInfo:
		if actor.Role != domain.RoleVerifier {
			return denied(action, "only verifiers may %s")
		}
		if subject.isOwner(actor.UserID) {
			return denied(action, "verifiers may not %s their own activity")
		}
		return nil

	case actmodels.ActionWithdraw:
		if actor.Role != domain.RoleAdmin {
			return denied(action, "only administrators may %s")
		}
		return nil

	default:
		return dErrors.New(dErrors.CodeValidation, "unknown action")
	}
}

func denied(action actmodels.Action, format string) error {
	return dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf(format, action))
}
