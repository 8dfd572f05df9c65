package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aistudio/backend/internal/infrastructure/auth"
	"github.com/aistudio/backend/internal/infrastructure/config"
	"github.com/aistudio/backend/internal/interfaces/http/dto"
)

func newAuthTestRouter(t *testing.T, expiration time.Duration) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:     "test-secret-key-for-unit-tests-only",
		Expiration: expiration,
		Issuer:     "aistudio-backend",
	})

	router := gin.New()
	router.Use(JWTAuth(jwtService))
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  GetJWTUserID(c),
			"username": GetJWTUsername(c),
		})
	})
	return router, jwtService
}

func authErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestJWTAuth(t *testing.T) {
	t.Run("valid token passes identity to the handler", func(t *testing.T) {
		router, jwtService := newAuthTestRouter(t, time.Hour)
		userID := uuid.New()
		token, err := jwtService.Generate(userID, "alice")
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token.Value)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, userID.String(), body["user_id"])
		assert.Equal(t, "alice", body["username"])
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		router, _ := newAuthTestRouter(t, time.Hour)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenInvalid, authErrorCode(t, w))
	})

	t.Run("non-bearer header is rejected", func(t *testing.T) {
		router, _ := newAuthTestRouter(t, time.Hour)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(AuthHeaderKey, "Basic dXNlcjpwYXNz")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token reports a dedicated code", func(t *testing.T) {
		router, _ := newAuthTestRouter(t, time.Hour)
		expired := auth.NewJWTService(config.JWTConfig{
			Secret:     "test-secret-key-for-unit-tests-only",
			Expiration: -time.Minute,
			Issuer:     "aistudio-backend",
		})
		token, err := expired.Generate(uuid.New(), "alice")
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token.Value)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenExpired, authErrorCode(t, w))
	})

	t.Run("health endpoint skips authentication", func(t *testing.T) {
		router, _ := newAuthTestRouter(t, time.Hour)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("skip path prefixes bypass authentication", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		jwtService := auth.NewJWTService(config.JWTConfig{
			Secret:     "test-secret-key-for-unit-tests-only",
			Expiration: time.Hour,
		})
		cfg := DefaultJWTConfig(jwtService)
		cfg.SkipPathPrefixes = []string{"/public/"}

		router := gin.New()
		router.Use(JWTAuthWithConfig(cfg))
		router.GET("/public/docs", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public/docs", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
