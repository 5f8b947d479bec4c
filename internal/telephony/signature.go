package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"sort"
	"strings"

	"calorie-coach/pkg/logger"

	"github.com/gin-gonic/gin"
)

const headerTwilioSignature = "X-Twilio-Signature"

// SignatureValidator checks X-Twilio-Signature:
// base64(HMAC-SHA1(auth_token, full_url + sorted(form key+value)...)).
type SignatureValidator struct {
	AuthToken string
	// BaseURL is the public scheme+host Twilio was configured with. The
	// request's own Host is not trusted behind a proxy.
	BaseURL string
}

// Expected computes the signature Twilio would send for rawURL and form.
func (v SignatureValidator) Expected(rawURL string, form map[string][]string) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(rawURL)
	for _, k := range keys {
		vals := append([]string(nil), form[k]...)
		sort.Strings(vals)
		for _, val := range vals {
			b.WriteString(k)
			b.WriteString(val)
		}
	}

	mac := hmac.New(sha1.New, []byte(v.AuthToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (v SignatureValidator) Valid(r *http.Request) bool {
	got := r.Header.Get(headerTwilioSignature)
	if got == "" || v.AuthToken == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	want := v.Expected(strings.TrimRight(v.BaseURL, "/")+r.URL.RequestURI(), r.PostForm)
	return hmac.Equal([]byte(got), []byte(want))
}

// SignatureMiddleware rejects telephony webhooks that Twilio did not sign.
func SignatureMiddleware(v SignatureValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Valid(c.Request) {
			logger.FromGin(c).Warn("twilio signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
