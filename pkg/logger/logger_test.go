package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestForCall_AddsOnlyPresentIDs(t *testing.T) {
	var buf bytes.Buffer
	l := ForCall(NewWithWriter("production", &buf), "CA123", "")
	l.Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"call_sid":"CA123"`) {
		t.Fatalf("expected call_sid in %s", out)
	}
	if strings.Contains(out, "call_log_id") {
		t.Fatalf("did not expect empty call_log_id in %s", out)
	}
}

func TestMiddleware_PropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(Middleware(NewWithWriter("production", &buf)))
	r.GET("/x", func(c *gin.Context) {
		FromGin(c).Info("inside")
		From(c.Request.Context()).Info("inside-ctx")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "rid-1")
	r.ServeHTTP(w, req)

	if w.Header().Get(headerRequestID) != "rid-1" {
		t.Fatalf("expected request id echoed")
	}
	if got := strings.Count(buf.String(), `"request_id":"rid-1"`); got != 3 {
		t.Fatalf("expected 3 log lines tagged with request id, got %d: %s", got, buf.String())
	}
}
