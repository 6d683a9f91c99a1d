// Package store persists activities.
package store

import (
	"credence/internal/activity/models"
	"credence/pkg/domain"
)

// ListFilter selects a tenant's activities, ordered by id. AfterID resumes
// after the last id of the previous page.
type ListFilter struct {
	TenantID  domain.TenantID
	Status    models.Status
	StudentID domain.UserID
	AfterID   domain.ActivityID
	Limit     int
}

// Key identifies an activity across tenants, used by integrity scans.
type Key struct {
	TenantID   domain.TenantID
	ActivityID domain.ActivityID
}

const defaultListLimit = 50
