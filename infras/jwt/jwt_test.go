package jwt_test

import (
	"context"
	"testing"

	"vfast/config"
	"vfast/infras/jwt"
	"vfast/shared/constant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() jwt.JWT {
	cfg := &config.Config{}
	cfg.App.Name = "vfast"
	cfg.JWT.AccessSecret = "access-secret"
	cfg.JWT.RefreshSecret = "refresh-secret"
	cfg.JWT.AccessExpireMin = 15
	cfg.JWT.RefreshExpireMin = 60

	return jwt.New(cfg)
}

func TestService_TokenPairCarriesDepartment(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	subject := jwt.Subject{UserID: "u-1", Email: "hod@example.com", Role: constant.RoleDepartment, Department: "Physics"}

	pair, err := svc.GenerateTokenPair(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.EqualValues(t, 15*60, pair.ExpiresIn)

	claims, err := svc.ValidateToken(ctx, pair.AccessToken, jwt.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject())
	assert.Equal(t, "vfast", claims.Issuer)

	refreshed, err := svc.RefreshTokens(ctx, pair.RefreshToken)
	require.NoError(t, err)

	claims, err = svc.ValidateToken(ctx, refreshed.AccessToken, jwt.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "Physics", claims.Department)
}

func TestService_ValidateTokenRejects(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	pair, err := svc.GenerateTokenPair(ctx, jwt.Subject{UserID: "u-1", Email: "a@b.c", Role: constant.RoleVFast})
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, pair.RefreshToken, jwt.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)

	_, err = svc.ValidateToken(ctx, "not-a-token", jwt.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)

	_, err = svc.RefreshTokens(ctx, pair.AccessToken)
	assert.Error(t, err)

	noRole, err := svc.GenerateTokenPair(ctx, jwt.Subject{UserID: "u-1", Email: "a@b.c"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, noRole.AccessToken, jwt.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrInvalidClaim)
}

func TestExtractTokenFromHeader(t *testing.T) {
	token, err := jwt.ExtractTokenFromHeader("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Basic abc", "Bearer "} {
		_, err := jwt.ExtractTokenFromHeader(header)
		assert.Error(t, err, header)
	}
}
