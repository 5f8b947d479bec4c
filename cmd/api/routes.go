package main

import (
	"calorie-coach/internal/auth"
	"calorie-coach/internal/httpapi"
	"calorie-coach/internal/ratelimit"
	"calorie-coach/internal/telephony"
	"calorie-coach/internal/transcript"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	api := httpapi.Handlers{Store: d.store, Readiness: d.readiness}

	// public
	r.GET("/healthz", api.Healthz)
	r.GET("/readyz", api.Readyz)
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	// Twilio voice webhooks. Every response is TwiML, including panics.
	// No per-IP limiter here: Twilio posts every user's calls from a shared pool of
	// egress addresses. Signatures and the per-number PIN limiter guard these routes.
	{
		voice := telephony.VoiceHandler{
			Store:     d.store,
			Lifecycle: d.lifecycle,
			Handoff:   d.handoffBuilder(),
			Attempts:  d.attempts,
			Audit:     d.audit,
			Metrics:   d.metrics,
		}

		twilio := r.Group("/webhooks/twilio")
		twilio.Use(telephony.TwiMLRecovery())
		if d.cfg.Twilio.ValidateSignature {
			twilio.Use(telephony.SignatureMiddleware(telephony.SignatureValidator{
				AuthToken: d.cfg.Twilio.AuthToken,
				BaseURL:   d.cfg.App.PublicBaseURL,
			}))
		}
		twilio.POST("/voice", voice.HandleInboundCall)
		twilio.POST("/verify-pin", voice.HandleVerifyPIN)
	}

	// Agent completion webhook; this is the webhook_url handed to the agent.
	{
		relay := transcript.Relay{
			Store:     d.store,
			Lifecycle: d.lifecycle,
			Forwarder: d.forwarder,
			Dedup:     d.dedup,
			Audit:     d.audit,
			Metrics:   d.metrics,
		}
		agent := r.Group("/webhooks/agent")
		agent.Use(ratelimit.Middleware(d.webhookLimiter))
		agent.POST("/completion", relay.HandleCompletion)
	}

	// dashboard API
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		v1.GET("/call-logs/:id", api.GetCallLog)
	}
}
