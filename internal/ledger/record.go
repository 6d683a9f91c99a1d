// Package ledger is the append-only audit trail of activity transitions.
package ledger

import (
	"strings"
	"time"

	actmodels "credence/internal/activity/models"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

// Record is one immutable transition fact, keyed by (TenantID, ActivityID, SequenceNo).
type Record struct {
	ID         domain.TransitionID `json:"id"`
	TenantID   domain.TenantID     `json:"tenant_id"`
	ActivityID domain.ActivityID   `json:"activity_id"`
	ActorID    domain.UserID       `json:"actor_id"`
	ActorRole  domain.Role         `json:"actor_role"`
	FromStatus actmodels.Status    `json:"from_status"`
	ToStatus   actmodels.Status    `json:"to_status"`
	Action     actmodels.Action    `json:"action"`
	Comment    string              `json:"comment,omitempty"`
	RecordedAt time.Time           `json:"recorded_at"`
	SequenceNo int64               `json:"sequence_no"`
}

// Validate checks the record is well formed before it is written.
func (r Record) Validate() error {
	if r.ID.IsNil() || r.TenantID.IsNil() || r.ActivityID.IsNil() || r.ActorID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "transition record requires id, tenant, activity and actor")
	}
	if r.SequenceNo < 1 {
		return dErrors.New(dErrors.CodeInvariantViolation, "transition record sequence must start at 1")
	}
	if r.Action == actmodels.ActionReject && strings.TrimSpace(r.Comment) == "" {
		return dErrors.New(dErrors.CodeValidation, "a comment is required when rejecting")
	}
	return nil
}

// Step projects the record for lifecycle replay.
func (r Record) Step() actmodels.Step {
	return actmodels.Step{
		SequenceNo: r.SequenceNo,
		From:       r.FromStatus,
		To:         r.ToStatus,
		Action:     r.Action,
	}
}

// Cursor resumes a history read after a sequence number.
type Cursor struct {
	AfterSeq int64
	Limit    int
}

// Page is one slice of an activity's history. NextCursor is nil on the last page.
type Page struct {
	Records    []Record `json:"records"`
	NextCursor *Cursor  `json:"next_cursor,omitempty"`
}

// NewRecord describes the transition just applied to a: from -> a.Status at
// a.SequenceNo, stamped with a.LastTransitionAt.
func NewRecord(a *actmodels.Activity, actor domain.Actor, from actmodels.Status, action actmodels.Action, comment string) Record {
	return Record{
		ID:         domain.NewTransitionID(),
		TenantID:   a.TenantID,
		ActivityID: a.ID,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		FromStatus: from,
		ToStatus:   a.Status,
		Action:     action,
		Comment:    comment,
		RecordedAt: a.LastTransitionAt,
		SequenceNo: a.SequenceNo,
	}
}
