package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"calorie-coach/internal/auth"
	"calorie-coach/internal/calllog"
	"calorie-coach/internal/config"
	"calorie-coach/internal/pin"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := calllog.NewMemoryStore(pin.NewVerifier())
	store.PutCallLog(calllog.CallLog{ID: "abc123", UserID: "u1", Status: calllog.StatusCompleted, TranscriptID: "conv-1"})

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	require.NoError(t, err)

	h := Handlers{Store: store}
	r := gin.New()
	r.GET("/v1/call-logs/:id", auth.RequireAccessToken(m), h.GetCallLog)
	return r, m
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetCallLog_Owner(t *testing.T) {
	r, m := newRouter(t)
	tok, _ := m.Issue(time.Now(), "u1")

	w := get(r, "/v1/call-logs/abc123", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transcript_id":"conv-1"`)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
}

func TestGetCallLog_OtherUserSeesNotFound(t *testing.T) {
	r, m := newRouter(t)
	tok, _ := m.Issue(time.Now(), "u2")

	assert.Equal(t, http.StatusNotFound, get(r, "/v1/call-logs/abc123", tok).Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/v1/call-logs/missing", tok).Code)
}

func TestGetCallLog_RequiresToken(t *testing.T) {
	r, _ := newRouter(t)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/v1/call-logs/abc123", "").Code)
}

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("refused") }

	r := gin.New()
	r.GET("/healthz", Handlers{}.Healthz)
	r.GET("/ready-ok", Handlers{Readiness: map[string]func(context.Context) error{"db": ok, "redis": ok}}.Readyz)
	r.GET("/ready-down", Handlers{Readiness: map[string]func(context.Context) error{"db": ok, "redis": down}}.Readyz)

	assert.Equal(t, http.StatusOK, get(r, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/ready-ok", "").Code)

	w := get(r, "/ready-down", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"checks":{"db":"ok","redis":"down"}}`, w.Body.String())
}
