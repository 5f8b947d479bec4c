package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"calorie-coach/internal/audit"
	"calorie-coach/internal/auth"
	"calorie-coach/internal/calllog"
	"calorie-coach/internal/config"
	"calorie-coach/internal/metrics"
	"calorie-coach/internal/pin"
	"calorie-coach/internal/ratelimit"
	"calorie-coach/internal/transcript"
	"calorie-coach/internal/workflow"

	"github.com/gin-gonic/gin"
)

const twilioEgressAddr = "54.172.60.1:443"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := calllog.NewMemoryStore(pin.NewVerifier())
	store.PutUser(calllog.User{ID: "u1", Phone: "+15550000001", PIN: "111111", MaxRetries: 3})
	store.PutUser(calllog.User{ID: "u2", Phone: "+15550000002", PIN: "222222", MaxRetries: 3})
	store.PutCallLog(calllog.CallLog{ID: "cl1", UserID: "u1", Status: calllog.StatusScheduled})
	store.PutCallLog(calllog.CallLog{ID: "cl2", UserID: "u2", Status: calllog.StatusScheduled})

	authManager, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret"})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	d := deps{
		cfg: config.Config{
			App:   config.AppConfig{PublicBaseURL: "https://coach.example"},
			Agent: config.AgentConfig{StreamURL: "wss://agent.example/convai", AgentID: "agent-1", APIKey: "key"},
		},
		auth:           authManager,
		store:          store,
		lifecycle:      calllog.NewLifecycle(store),
		audit:          audit.NewService(audit.NewMemoryRepo()),
		metrics:        metrics.New(),
		forwarder:      workflow.NewHTTPForwarder("http://workflow.invalid/process-transcript", time.Second),
		dedup:          transcript.NewMemoryDeduper(),
		attempts:       pin.NewAttemptLimiter(3),
		webhookLimiter: ratelimit.NewIPLimiter(ratelimit.Config{Rate: 1, Burst: 1}),
	}

	r := gin.New()
	registerRoutes(r, d)
	return r
}

func postForm(r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = twilioEgressAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTwilioRoutes_SharedEgressIPDoesNotThrottleOtherCallers(t *testing.T) {
	r := newTestRouter(t)

	calls := []struct{ callLogID, from string }{
		{"cl1", "+15550000001"},
		{"cl2", "+15550000002"},
	}
	for i, c := range calls {
		w := postForm(r, "/webhooks/twilio/voice?call_log_id="+c.callLogID, url.Values{
			"CallSid": {"CA" + c.callLogID},
			"From":    {c.from},
			"To":      {"+15559999999"},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("caller %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
			t.Fatalf("caller %d: expected text/xml, got %q", i, ct)
		}
		if !strings.Contains(w.Body.String(), "<Connect>") {
			t.Fatalf("caller %d: expected handoff, got %s", i, w.Body.String())
		}
	}
}

func TestAgentRoutes_AreRateLimitedPerIP(t *testing.T) {
	r := newTestRouter(t)

	body := `{"event_type":"agent.ping"}`
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/agent/completion", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = twilioEgressAddr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := send(); w.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", w.Code)
	}
	if w := send(); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}
