// Package events defines the domain events exchanged between the activity
// registry and its downstream consumers.
//
// Delivery is at-least-once and ordered per activity. Consumers deduplicate on
// Envelope.IdempotencyKey.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	actmodels "credence/internal/activity/models"
	"credence/pkg/domain"
)

// Type names an event.
type Type string

const (
	TypeActivityCreated       Type = "activity.created"
	TypeActivitySubmitted     Type = "activity.submitted"
	TypeActivityVerified      Type = "activity.verified"
	TypeActivityRejected      Type = "activity.rejected"
	TypeActivityInfoRequested Type = "activity.info_requested"
	TypeActivityResubmitted   Type = "activity.resubmitted"
	TypeActivityWithdrawn     Type = "activity.withdrawn"
	TypeCredentialIssued      Type = "credential.issued"
	TypeCredentialRevoked     Type = "credential.revoked"
)

func (t Type) String() string { return string(t) }

var actionTypes = map[actmodels.Action]Type{
	actmodels.ActionSubmit:      TypeActivitySubmitted,
	actmodels.ActionApprove:     TypeActivityVerified,
	actmodels.ActionReject:      TypeActivityRejected,
	actmodels.ActionRequestInfo: TypeActivityInfoRequested,
	actmodels.ActionResubmit:    TypeActivityResubmitted,
	actmodels.ActionWithdraw:    TypeActivityWithdrawn,
}

// ForAction returns the event announcing a committed transition.
func ForAction(action actmodels.Action) (Type, bool) {
	t, ok := actionTypes[action]
	return t, ok
}

// Envelope is the unit published on the bus.
type Envelope struct {
	ID         uuid.UUID         `json:"id"`
	Type       Type              `json:"type"`
	TenantID   domain.TenantID   `json:"tenant_id"`
	ActivityID domain.ActivityID `json:"activity_id"`
	SequenceNo int64             `json:"sequence_no"`
	Timestamp  time.Time         `json:"timestamp"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

// New builds an envelope with payload marshalled to JSON.
func New(typ Type, tenantID domain.TenantID, activityID domain.ActivityID, seq int64, now time.Time, payload any) (Envelope, error) {
	env := Envelope{
		ID:         uuid.New(),
		Type:       typ,
		TenantID:   tenantID,
		ActivityID: activityID,
		SequenceNo: seq,
		Timestamp:  now.UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// IdempotencyKey is stable across redeliveries: activity_id:type:sequence_no.
func (e Envelope) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%d", e.ActivityID, e.Type, e.SequenceNo)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// ActivityPayload accompanies every activity.* event.
type ActivityPayload struct {
	StudentID          domain.UserID          `json:"student_id"`
	ActorID            domain.UserID          `json:"actor_id"`
	ActorRole          domain.Role            `json:"actor_role"`
	Type               actmodels.ActivityType `json:"activity_type"`
	Title              string                 `json:"title"`
	Department         string                 `json:"department,omitempty"`
	AssignedVerifierID domain.UserID          `json:"assigned_verifier_id,omitzero"`
	FromStatus         actmodels.Status       `json:"from_status,omitempty"`
	Status             actmodels.Status       `json:"status"`
	Comment            string                 `json:"comment,omitempty"`
}

// CredentialPayload accompanies credential.* events.
type CredentialPayload struct {
	CredentialID domain.CredentialID `json:"credential_id"`
	StudentID    domain.UserID       `json:"student_id"`
	KeyID        string              `json:"key_id"`
	PayloadHash  string              `json:"payload_hash,omitempty"`
	Reason       string              `json:"reason,omitempty"`
}

// Handler consumes one envelope. A nil return acknowledges it.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Publisher hands an envelope to the transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Subscriber runs handler for a consumer group until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, group string, handler Handler) error
}

// Outbox records envelopes in the caller's unit of work for later relay.
type Outbox interface {
	Add(ctx context.Context, env Envelope) error
}

// ForActivity builds an activity.* envelope describing a's current state.
// from is empty for activity.created.
func ForActivity(typ Type, a *actmodels.Activity, actor domain.Actor, from actmodels.Status, comment string, seq int64, now time.Time) (Envelope, error) {
	return New(typ, a.TenantID, a.ID, seq, now, ActivityPayload{
		StudentID:          a.StudentID,
		ActorID:            actor.UserID,
		ActorRole:          actor.Role,
		Type:               a.Type,
		Title:              a.Title,
		Department:         a.Department,
		AssignedVerifierID: a.AssignedVerifierID,
		FromStatus:         from,
		Status:             a.Status,
		Comment:            comment,
	})
}
