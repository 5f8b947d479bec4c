package telephony

import (
	"net/http"

	"calorie-coach/pkg/logger"

	"github.com/gin-gonic/gin"
)

const contentTypeTwiML = "text/xml"

// TwiMLRecovery turns a panic in a telephony route into an apology and hangup.
// Twilio must always get a parseable document; a raw 500 leaves the call in an
// undefined state.
func TwiMLRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				logger.FromGin(c).Error("telephony handler panic", "panic", p)
				c.Abort()
				c.Data(http.StatusOK, contentTypeTwiML, []byte(apologyTwiML))
			}
		}()
		c.Next()
	}
}
