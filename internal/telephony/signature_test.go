package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSignatureValidator_Expected(t *testing.T) {
	v := SignatureValidator{AuthToken: "12345"}
	form := map[string][]string{
		"To":      {"+18005551212"},
		"CallSid": {"CA1234567890ABCDE"},
		"Digits":  {"1234"},
		"From":    {"+14158675310"},
	}
	rawURL := "https://mycompany.com/myapp?foo=1&bar=2"

	// keys sorted, each key immediately followed by its value
	signed := rawURL + "CallSidCA1234567890ABCDE" + "Digits1234" + "From+14158675310" + "To+18005551212"
	mac := hmac.New(sha1.New, []byte("12345"))
	mac.Write([]byte(signed))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if got := v.Expected(rawURL, form); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	form["Digits"] = []string{"4321"}
	if got := v.Expected(rawURL, form); got == want {
		t.Fatalf("signature must cover form values")
	}
}

func TestSignatureMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := SignatureValidator{AuthToken: "tok", BaseURL: "https://coach.example/"}

	r := gin.New()
	r.POST("/webhooks/twilio/voice", SignatureMiddleware(v), func(c *gin.Context) { c.Status(http.StatusOK) })

	form := url.Values{"CallSid": {"CA1"}, "From": {"+15551234567"}}
	send := func(sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/voice?call_log_id=abc123", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sig != "" {
			req.Header.Set(headerTwilioSignature, sig)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	good := v.Expected("https://coach.example/webhooks/twilio/voice?call_log_id=abc123", form)
	if code := send(good); code != http.StatusOK {
		t.Fatalf("expected 200 for valid signature, got %d", code)
	}
	if code := send("bogus"); code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad signature, got %d", code)
	}
	if code := send(""); code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing signature, got %d", code)
	}
}
