package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"calorie-coach/internal/auth"
	"calorie-coach/internal/calllog"
	"calorie-coach/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Store calllog.Store

	// Readiness checks by dependency name (db, redis, ...).
	Readiness    map[string]func(ctx context.Context) error
	ReadyTimeout time.Duration
}

// --- Call logs ---

// GetCallLog returns one call log to its owner.
// A call log owned by someone else is reported as not found.
func (h Handlers) GetCallLog(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}

	cl, err := h.Store.GetCallLog(c.Request.Context(), id)
	switch {
	case errors.Is(err, calllog.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	case err != nil:
		logger.FromGin(c).Error("call log lookup failed", "call_log_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if cl.UserID != userID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, cl)
}

// --- Health ---

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports 503 if any dependency check fails.
func (h Handlers) Readyz(c *gin.Context) {
	timeout := h.ReadyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	names := make([]string, 0, len(h.Readiness))
	for name := range h.Readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := gin.H{}
	for _, name := range names {
		if err := h.Readiness[name](ctx); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "dependency", name, "err", err)
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	c.JSON(status, gin.H{"checks": checks})
}
