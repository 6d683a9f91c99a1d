package jwttoken

import (
	authmw "credence/pkg/platform/middleware/auth"
)

// MiddlewareValidator exposes a JWTService to the auth middleware, which only
// knows its own claim shape.
type MiddlewareValidator struct {
	service *JWTService
}

func NewMiddlewareValidator(service *JWTService) MiddlewareValidator {
	return MiddlewareValidator{service: service}
}

func (v MiddlewareValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	c, err := v.service.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{
		UserID:      c.Subject,
		TenantID:    c.TenantID,
		Role:        c.Role,
		Departments: c.Departments,
		JTI:         c.ID,
	}, nil
}
