package transcript

import (
	"errors"
	"io"
	"net/http"

	"calorie-coach/internal/audit"
	"calorie-coach/internal/calllog"
	"calorie-coach/internal/metrics"
	"calorie-coach/internal/workflow"
	"calorie-coach/pkg/logger"
	"calorie-coach/pkg/utils"

	"github.com/gin-gonic/gin"
)

const maxEventBytes = 4 << 20

// Relay outcomes recorded in metrics.
const (
	outcomeAcknowledged = "acknowledged"
	outcomeForwarded    = "forwarded"
	outcomeDuplicate    = "duplicate"
	outcomeRejected     = "rejected"
	outcomeFailed       = "failed"
)

// Relay receives the agent's completion webhook and hands the transcript to the
// workflow processor. It never retries: a non-2xx makes the agent resend, and
// Dedup turns resends of a delivered event into plain acknowledgements.
type Relay struct {
	Store     calllog.Store
	Lifecycle *calllog.Lifecycle
	Forwarder workflow.Forwarder

	// Optional collaborators.
	Dedup   Deduper
	Audit   *audit.Service
	Metrics *metrics.Metrics
}

func (r Relay) HandleCompletion(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	if r.Store == nil || r.Lifecycle == nil || r.Forwarder == nil {
		log.Error("transcript relay not configured")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBytes))
	if err != nil {
		r.reject(c, audit.TypeMalformedEvent, "unreadable body", nil)
		return
	}

	parsed, err := ParseEvent(body)
	switch {
	case errors.Is(err, ErrMalformed):
		log.Warn("malformed completion event", "err", err)
		r.reject(c, audit.TypeMalformedEvent, "invalid payload", nil)
		return
	case errors.Is(err, ErrMissingCorrelation):
		ev, _ := parsed.(Completed)
		fields := map[string]string{"conversation_id": ev.ConversationID}
		if ev.CallLogID != "" {
			fields["call_log_id"] = ev.CallLogID
			if _, ferr := r.Lifecycle.Fail(ctx, ev.CallLogID, "completion event missing metadata"); ferr != nil {
				log.Warn("mark call failed", "call_log_id", ev.CallLogID, "err", ferr)
			}
		}
		r.reject(c, audit.TypeCorrelation, "missing metadata", fields)
		return
	case err != nil:
		log.Warn("completion event parse failed", "err", err)
		r.reject(c, audit.TypeMalformedEvent, "invalid payload", nil)
		return
	}

	ev, ok := parsed.(Completed)
	if !ok {
		log.Debug("agent event acknowledged", "event_type", parsed.Kind())
		r.Metrics.RelayEvent(outcomeAcknowledged)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	log = logger.ForCall(log, "", ev.CallLogID).With("conversation_id", ev.ConversationID)
	ctx = logger.With(ctx, log)
	fields := map[string]string{"call_log_id": ev.CallLogID, "conversation_id": ev.ConversationID}

	cl, err := r.Store.GetCallLog(ctx, ev.CallLogID)
	switch {
	case errors.Is(err, calllog.ErrNotFound):
		r.reject(c, audit.TypeCorrelation, "unknown call_log_id", fields)
		return
	case err != nil:
		log.Error("call log lookup failed", "err", err)
		r.Audit.Record(ctx, audit.WorkflowTranscript, audit.TypeStore, err.Error(), fields)
		r.Metrics.RelayEvent(outcomeFailed)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if cl.UserID != ev.UserID {
		r.reject(c, audit.TypeCorrelation, "metadata mismatch", fields)
		return
	}

	key := DeliveryKey(ev.CallLogID, ev.ConversationID)
	if r.Dedup != nil {
		state, err := r.Dedup.Claim(ctx, key)
		if err != nil {
			log.Error("delivery claim failed", "err", err)
			r.Metrics.RelayEvent(outcomeFailed)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
			return
		}
		switch state {
		case utils.ClaimDelivered:
			log.Info("duplicate completion event acknowledged")
			r.complete(c, ev)
			r.Metrics.RelayEvent(outcomeDuplicate)
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		case utils.ClaimInFlight:
			r.Metrics.RelayEvent(outcomeDuplicate)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "delivery in progress"})
			return
		}
	}

	err = r.Forwarder.Forward(ctx, workflow.ForwardRequest{
		Transcript:     ev.Transcript,
		CallLogID:      ev.CallLogID,
		UserID:         ev.UserID,
		ConversationID: ev.ConversationID,
	})
	if err != nil {
		log.Error("transcript forward failed", "err", err)
		if r.Dedup != nil {
			if rerr := r.Dedup.Release(ctx, key); rerr != nil {
				log.Warn("delivery release failed", "err", rerr)
			}
		}
		if _, ferr := r.Lifecycle.Fail(ctx, ev.CallLogID, "transcript forward failed"); ferr != nil {
			log.Warn("mark call failed", "err", ferr)
		}
		r.Audit.Record(ctx, audit.WorkflowTranscript, audit.TypeForwardFailed, err.Error(), fields)
		r.Metrics.RelayEvent(outcomeFailed)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "failed to process transcript"})
		return
	}

	if r.Dedup != nil {
		if err := r.Dedup.Done(ctx, key); err != nil {
			log.Warn("delivery mark failed", "err", err)
		}
	}
	r.complete(c, ev)
	log.Info("transcript forwarded")
	r.Metrics.RelayEvent(outcomeForwarded)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// complete records the delivery on the call log. The transcript is already with
// the processor, so a failure here is logged and does not change the response.
func (r Relay) complete(c *gin.Context, ev Completed) {
	ctx := c.Request.Context()
	if _, err := r.Lifecycle.Complete(ctx, ev.CallLogID, ev.UserID, ev.ConversationID); err != nil {
		logger.FromGin(c).Warn("mark call completed", "call_log_id", ev.CallLogID, "err", err)
		r.Audit.Record(ctx, audit.WorkflowTranscript, audit.TypeStore, "mark completed: "+err.Error(),
			map[string]string{"call_log_id": ev.CallLogID, "conversation_id": ev.ConversationID})
	}
}

func (r Relay) reject(c *gin.Context, errType, message string, fields map[string]string) {
	logger.FromGin(c).Warn("completion event rejected", "reason", message)
	r.Audit.Record(c.Request.Context(), audit.WorkflowTranscript, errType, message, fields)
	r.Metrics.RelayEvent(outcomeRejected)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}
