package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "credence/pkg/domain"
)

// EventCategory classifies audit facts by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers facts with regulatory or operator significance.
	// They are written fail-closed: the surrounding operation fails if they cannot be persisted.
	// Examples: revocations, dead-lettered events, ledger inconsistencies.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers facts relevant to security monitoring and forensics.
	// Examples: rejected inbound signatures, denied transitions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine operational facts.
	CategoryOperations EventCategory = "operations"
)

// AuditEvent names an operational fact. Transition records are kept by the
// ledger itself; these facts cover everything around them.
type AuditEvent string

const (
	// Credential facts
	EventCredentialIssued  AuditEvent = "credential_issued"
	EventCredentialRevoked AuditEvent = "credential_revoked"

	// Delivery facts
	EventDeadLettered       AuditEvent = "event_dead_lettered"
	EventDeadLetterReplayed AuditEvent = "dead_letter_replayed"
	EventRecordUndecodable  AuditEvent = "event_record_undecodable"

	// Integrity facts
	EventLedgerInconsistency    AuditEvent = "ledger_inconsistency_detected"
	EventProofTamperDetected    AuditEvent = "proof_tamper_detected"
	EventIntegrityScanCompleted AuditEvent = "integrity_scan_completed"

	// Access facts
	EventInboundSignatureRejected AuditEvent = "inbound_signature_rejected"
	EventTransitionDenied         AuditEvent = "transition_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCredentialRevoked:   CategoryCompliance,
	EventDeadLettered:        CategoryCompliance,
	EventDeadLetterReplayed:  CategoryCompliance,
	EventRecordUndecodable:   CategoryCompliance,
	EventLedgerInconsistency: CategoryCompliance,

	EventInboundSignatureRejected: CategorySecurity,
	EventTransitionDenied:         CategorySecurity,
	EventProofTamperDetected:      CategorySecurity,

	EventCredentialIssued:       CategoryOperations,
	EventIntegrityScanCompleted: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is the stored shape of every audit fact.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	TenantID  id.TenantID
	Subject   string // Entity involved (activity id, credential id, dead letter id)
	Action    string
	Decision  string
	Reason    string
	RequestID string
	ActorID   string
	IP        string
	Client    string
	Severity  Severity
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	TenantID id.TenantID
	Category EventCategory
	Action   string
	Limit    int
}

// Store persists audit facts. Append joins a unit of work carried in ctx when
// the implementation supports it.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// ComplianceEvent captures operator-significant facts requiring guaranteed persistence.
// Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp time.Time
	TenantID  id.TenantID
	Subject   string
	Action    AuditEvent
	Decision  string
	Reason    string
	RequestID string
	ActorID   string
}

func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		TenantID:  e.TenantID,
		Subject:   e.Subject,
		Action:    string(e.Action),
		Decision:  e.Decision,
		Reason:    e.Reason,
		RequestID: e.RequestID,
		ActorID:   e.ActorID,
	}
}

// SecurityEvent captures security-relevant facts for alerting.
// Events are buffered and persisted asynchronously.
type SecurityEvent struct {
	Timestamp time.Time
	TenantID  id.TenantID
	Subject   string
	Action    AuditEvent
	Reason    string
	IP        string
	Client    string
	RequestID string
	ActorID   string
	Severity  Severity
}

func (e SecurityEvent) Category() EventCategory { return CategorySecurity }

func (e SecurityEvent) ToEvent() Event {
	return Event{
		Category:  CategorySecurity,
		Timestamp: e.Timestamp,
		TenantID:  e.TenantID,
		Subject:   e.Subject,
		Action:    string(e.Action),
		Reason:    e.Reason,
		IP:        e.IP,
		Client:    e.Client,
		RequestID: e.RequestID,
		ActorID:   e.ActorID,
		Severity:  e.Severity,
	}
}
