package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-site-director/config"
)

func testConfig() *config.EnvConfig {
	cfg := &config.EnvConfig{}
	cfg.JWT.SecretKey = "middleware-secret"
	cfg.CORS.AllowDomains = "https://panel.example.org, https://admin.example.org"
	cfg.CORS.GlobalDomain = "example.net"
	return cfg
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newRouter(cfg *config.EnvConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/me", AuthMiddleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint("user_id"), "is_superuser": c.GetBool("is_superuser")})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	r := newRouter(cfg)

	valid := sign(t, cfg.JWT.SecretKey, jwt.MapClaims{"user_id": float64(7), "exp": time.Now().Add(time.Hour).Unix()})
	expired := sign(t, cfg.JWT.SecretKey, jwt.MapClaims{"user_id": float64(7), "exp": time.Now().Add(-time.Hour).Unix()})
	foreign := sign(t, "other-secret", jwt.MapClaims{"user_id": float64(7)})
	noUser := sign(t, cfg.JWT.SecretKey, jwt.MapClaims{"sub": "7"})

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		want   int
	}{
		{"missing token", func(*http.Request) {}, "/me", http.StatusUnauthorized},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, "/me", http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: valid}) }, "/me", http.StatusOK},
		{"query parameter", func(*http.Request) {}, "/me?access_token=" + valid, http.StatusOK},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, "/me", http.StatusUnauthorized},
		{"wrong secret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+foreign) }, "/me", http.StatusUnauthorized},
		{"no user id", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+noUser) }, "/me", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := newRouter(testConfig())

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/me", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := preflight("https://admin.example.org")
	assert.Equal(t, "https://admin.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	w = preflight("https://eu.example.net")
	assert.Equal(t, "https://eu.example.net", w.Header().Get("Access-Control-Allow-Origin"))

	w = preflight("https://evil.example.com")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAllowedOriginsTrimsEntries(t *testing.T) {
	assert.Equal(t, []string{"https://panel.example.org", "https://admin.example.org"}, AllowedOrigins(testConfig()))
	assert.Nil(t, AllowedOrigins(&config.EnvConfig{}))
}
