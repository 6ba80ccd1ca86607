package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"auth-api/internal/auth"
	"auth-api/internal/repository/sqlite"
	"auth-api/internal/service"
)

const testSecret = "test-signing-secret"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := sqlite.NewUserRepository(db)
	require.NoError(t, repo.Init(context.Background()))

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)

	router := gin.New()
	NewHandler(service.NewAuthService(repo, hasher, tokens)).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	}
	return rec, parsed
}

func registerBody() map[string]string {
	return map[string]string{
		"name":                  "John",
		"email":                 "john@gmail.com",
		"password":              "123456",
		"password_confirmation": "123456",
	}
}

func TestAuthFlow(t *testing.T) {
	router := newTestRouter(t)

	rec, body := doJSON(t, router, http.MethodPost, "/register", registerBody(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 200, body["status"])

	rec, body = doJSON(t, router, http.MethodPost, "/login", map[string]string{
		"email":    "john@gmail.com",
		"password": "123456",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["status"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	rec, body = doJSON(t, router, http.MethodGet, "/show", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["status"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "john@gmail.com", data["email"])
	assert.Equal(t, "John", data["name"])
	assert.NotEmpty(t, data["id"])
	assert.NotContains(t, data, "password_hash")

	rec, body = doJSON(t, router, http.MethodGet, "/logout", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["status"])
}

func TestRegisterValidationErrors(t *testing.T) {
	router := newTestRouter(t)

	body := registerBody()
	body["password_confirmation"] = "different"
	rec, parsed := doJSON(t, router, http.MethodPost, "/register", body, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs, ok := parsed["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errs, "password_confirmation")

	body = registerBody()
	body["email"] = "not-an-email"
	rec, parsed = doJSON(t, router, http.MethodPost, "/register", body, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs, ok = parsed["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errs, "email")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/register", registerBody(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := registerBody()
	body["email"] = "JOHN@GMAIL.COM"
	rec, parsed := doJSON(t, router, http.MethodPost, "/register", body, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs, ok := parsed["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errs, "email")
}

func TestLoginFailures(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/register", registerBody(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	// wrong password and unknown email come back identical
	rec1, body1 := doJSON(t, router, http.MethodPost, "/login", map[string]string{
		"email":    "john@gmail.com",
		"password": "wrong",
	}, "")
	rec2, body2 := doJSON(t, router, http.MethodPost, "/login", map[string]string{
		"email":    "nobody@gmail.com",
		"password": "123456",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec1.Code)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)
	assert.Equal(t, body1, body2)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/show", "/logout"} {
		rec, body := doJSON(t, router, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, false, body["status"], path)
	}

	req := httptest.NewRequest(http.MethodGet, "/show", nil)
	req.Header.Set("Authorization", "NotBearer abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	router := newTestRouter(t)

	claims := jwt.RegisteredClaims{
		Subject:   "some-user",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec, body := doJSON(t, router, http.MethodGet, "/show", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["status"])
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
