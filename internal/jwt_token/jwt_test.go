package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)

var actor = domain.Actor{
	TenantID:    domain.TenantID(uuid.New()),
	UserID:      domain.UserID(uuid.New()),
	Role:        domain.RoleVerifier,
	Departments: []string{"physics"},
}

const expiresIn = time.Hour

func Test_GenerateToken(t *testing.T) {
	token, err := jwtService.GenerateToken(actor, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor.UserID.String(), claims.Subject)
	assert.Equal(t, actor.TenantID.String(), claims.TenantID)
	assert.Equal(t, "verifier", claims.Role)
	assert.Equal(t, []string{"physics"}, claims.Departments)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateToken(actor, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "another-audience")
	token, err := other.GenerateToken(actor, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func Test_ValidateToken_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		TenantID:         actor.TenantID.String(),
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: actor.UserID.String(), Issuer: "test-issuer", Audience: []string{"test-audience"}},
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func Test_MiddlewareValidator_MapsClaims(t *testing.T) {
	token, err := jwtService.GenerateToken(actor, expiresIn)
	require.NoError(t, err)

	claims, err := NewMiddlewareValidator(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor.UserID.String(), claims.UserID)
	assert.Equal(t, actor.TenantID.String(), claims.TenantID)
	assert.Equal(t, "verifier", claims.Role)
	assert.Equal(t, []string{"physics"}, claims.Departments)
	assert.NotEmpty(t, claims.JTI)

	_, err = NewMiddlewareValidator(jwtService).ValidateToken(token + "x")
	assert.Error(t, err)
}
