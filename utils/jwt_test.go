package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-site-director/config"
)

func TestParseTokenAndInjectClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.EnvConfig{}
	cfg.JWT.SecretKey = "test-secret"

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":      float64(12),
		"is_superuser": true,
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	token, err := ParseToken(signed, cfg)
	require.NoError(t, err)
	require.True(t, token.Valid)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.NoError(t, InjectClaimsToContext(c, token.Claims.(jwt.MapClaims)))

	id, err := GetUserIDFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, uint(12), id)
	assert.True(t, c.GetBool("is_superuser"))
}

func TestInjectClaimsRejectsBadUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Error(t, InjectClaimsToContext(c, jwt.MapClaims{"user_id": "abc"}))
	assert.Error(t, InjectClaimsToContext(c, jwt.MapClaims{"user_id": float64(1.5)}))
	assert.Error(t, InjectClaimsToContext(c, jwt.MapClaims{}))

	_, err := GetUserIDFromContext(c)
	assert.Error(t, err)
}

func TestParseTokenWrongSecret(t *testing.T) {
	cfg := &config.EnvConfig{}
	cfg.JWT.SecretKey = "right"

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": float64(1)}).SignedString([]byte("wrong"))
	require.NoError(t, err)

	_, err = ParseToken(signed, cfg)
	assert.Error(t, err)
}

func TestGeneratePassword(t *testing.T) {
	a, err := GeneratePassword(24)
	require.NoError(t, err)
	b, err := GeneratePassword(24)
	require.NoError(t, err)

	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.Contains(t, passwordAlphabet, string(r))
	}
}
