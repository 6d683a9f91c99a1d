// Package store persists credentials.
package store

import (
	"context"
	"time"

	"credence/internal/credential/models"
	"credence/pkg/domain"
)

// Store holds credentials. Create fails with sentinel.ErrAlreadyExists when
// the activity already has an unrevoked credential.
type Store interface {
	Create(ctx context.Context, c *models.Credential) error
	// FindByActivity returns the most recently issued credential for the activity.
	FindByActivity(ctx context.Context, tenantID domain.TenantID, activityID domain.ActivityID) (*models.Credential, error)
	Revoke(ctx context.Context, tenantID domain.TenantID, id domain.CredentialID, at time.Time) error
}
