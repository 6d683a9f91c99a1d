package domain

import (
	"github.com/google/uuid"

	dErrors "credence/pkg/domain-errors"
)

// Typed identifiers. Distinct named types keep a tenant ID from being passed
// where an activity ID is expected; the compiler enforces it.
type (
	TenantID     uuid.UUID
	UserID       uuid.UUID
	ActivityID   uuid.UUID
	CredentialID uuid.UUID
	TransitionID uuid.UUID
)

// ParseTenantID parses a tenant identifier at a trust boundary.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant_id")
	return TenantID(u), err
}

// ParseUserID parses a user identifier at a trust boundary.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// ParseActivityID parses an activity identifier at a trust boundary.
func ParseActivityID(s string) (ActivityID, error) {
	u, err := parseUUID(s, "activity_id")
	return ActivityID(u), err
}

// ParseCredentialID parses a credential identifier at a trust boundary.
func ParseCredentialID(s string) (CredentialID, error) {
	u, err := parseUUID(s, "credential_id")
	return CredentialID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}

func NewActivityID() ActivityID     { return ActivityID(uuid.New()) }
func NewCredentialID() CredentialID { return CredentialID(uuid.New()) }
func NewTransitionID() TransitionID { return TransitionID(uuid.New()) }

func (id TenantID) String() string     { return uuid.UUID(id).String() }
func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id ActivityID) String() string   { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return uuid.UUID(id).String() }
func (id TransitionID) String() string { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ActivityID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TransitionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps IDs as canonical UUID strings in JSON and logs.

func (id TenantID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id ActivityID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id CredentialID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id TransitionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *TenantID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ActivityID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CredentialID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TransitionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
