package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/httputil"
	strutil "credence/pkg/platform/strings"
	"credence/pkg/requestcontext"
)

// JWTValidator turns a bearer token into claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is the validator-neutral claim set.
type JWTClaims struct {
	UserID      string
	TenantID    string
	Role        string
	Departments []string
	JTI         string
}

// Actor converts validated claims into the caller identity.
func (c *JWTClaims) Actor() (domain.Actor, error) {
	tenantID, err := domain.ParseTenantID(c.TenantID)
	if err != nil {
		return domain.Actor{}, err
	}
	userID, err := domain.ParseUserID(c.UserID)
	if err != nil {
		return domain.Actor{}, err
	}
	role, err := domain.ParseRole(c.Role)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{
		TenantID:    tenantID,
		UserID:      userID,
		Role:        role,
		Departments: strutil.DedupeAndTrimLower(c.Departments),
	}, nil
}

func reject(w http.ResponseWriter, code dErrors.Code, description string) {
	httputil.WriteError(w, dErrors.New(code, description))
}

// RequireAuth validates the bearer token and injects the resulting Actor.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				reject(w, dErrors.CodeUnauthenticated, "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				reject(w, dErrors.CodeUnauthenticated, "invalid or expired token")
				return
			}

			actor, err := claims.Actor()
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed identity claims",
					"error", err,
					"jti", claims.JTI,
					"request_id", requestID,
				)
				reject(w, dErrors.CodeUnauthenticated, "invalid identity claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}

// RequireRole rejects callers whose role is not in roles. It must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := requestcontext.Actor(ctx)
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			logger.WarnContext(ctx, "forbidden - role not permitted",
				"role", actor.Role.String(),
				"user_id", actor.UserID.String(),
				"request_id", requestcontext.RequestID(ctx),
			)
			reject(w, dErrors.CodeUnauthorized, "role not permitted")
		})
	}
}

// WithActor sets the caller without a token, for handler tests.
func WithActor(ctx context.Context, tenantID, userID uuid.UUID, role domain.Role, departments ...string) context.Context {
	return requestcontext.WithActor(ctx, domain.Actor{
		TenantID:    domain.TenantID(tenantID),
		UserID:      domain.UserID(userID),
		Role:        role,
		Departments: departments,
	})
}
