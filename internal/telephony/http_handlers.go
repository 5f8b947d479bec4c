package telephony

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"calorie-coach/internal/audit"
	"calorie-coach/internal/calllog"
	"calorie-coach/internal/metrics"
	"calorie-coach/internal/pin"
	"calorie-coach/pkg/logger"

	"github.com/gin-gonic/gin"
)

// PIN check results recorded in metrics.
const (
	pinResultOK        = "ok"
	pinResultInvalid   = "invalid"
	pinResultThrottled = "throttled"
	pinResultError     = "error"
)

// VoiceHandler serves the two Twilio voice webhooks.
//
// The handlers keep no state between requests: the caller's number is the only
// identity continuity and call_log_id (query parameter) the only call continuity.
// Every failure answers with TwiML that speaks and hangs up; Twilio never sees a
// non-200 from these routes.
type VoiceHandler struct {
	Store     calllog.Store
	Lifecycle *calllog.Lifecycle
	Handoff   HandoffBuilder

	// Optional collaborators.
	Attempts *pin.AttemptLimiter
	Audit    *audit.Service
	Metrics  *metrics.Metrics
}

// flow carries per-request values through the helpers.
type flow struct {
	ctx  context.Context
	log  *slog.Logger
	wf   audit.Workflow
	form TwilioVoiceForm
}

func (f flow) fields() map[string]string {
	out := map[string]string{}
	if f.form.CallLogID != "" {
		out["call_log_id"] = f.form.CallLogID
	}
	if f.form.CallSid != "" {
		out["call_sid"] = f.form.CallSid
	}
	return out
}

// HandleInboundCall answers a new call: known numbers go straight to the agent,
// unknown numbers get a PIN challenge.
func (h VoiceHandler) HandleInboundCall(c *gin.Context) {
	f, ok := h.begin(c, audit.WorkflowInboundCall)
	if !ok {
		h.Metrics.InboundCall(metrics.OutcomeError)
		return
	}

	if _, ok := h.admit(c, f); !ok {
		h.Metrics.InboundCall(metrics.OutcomeTerminated)
		return
	}

	user, err := h.Store.FindUserByPhone(f.ctx, f.form.From)
	switch {
	case errors.Is(err, calllog.ErrNotFound):
		f.log.Info("unknown caller, challenging for pin")
		h.Metrics.InboundCall(metrics.OutcomeChallenge)
		h.reply(c, f, PINChallenge(f.form.CallLogID))
	case err != nil:
		h.fail(f, audit.TypeStore, "caller lookup failed", err)
		h.Metrics.InboundCall(metrics.OutcomeError)
		h.reply(c, f, Terminate(MsgError))
	default:
		if h.handoff(c, f, user, "") {
			h.Metrics.InboundCall(metrics.OutcomeHandoff)
		} else {
			h.Metrics.InboundCall(metrics.OutcomeTerminated)
		}
	}
}

// HandleVerifyPIN checks the gathered digits against the caller's number.
// A mismatch ends the call; the caller retries by calling back.
func (h VoiceHandler) HandleVerifyPIN(c *gin.Context) {
	f, ok := h.begin(c, audit.WorkflowPINVerify)
	if !ok {
		h.Metrics.PINCheck(pinResultError)
		return
	}

	owner, ok := h.admit(c, f)
	if !ok {
		h.Metrics.PINCheck(pinResultError)
		return
	}

	if h.Attempts != nil && !h.Attempts.Allow(f.form.From) {
		h.failPIN(f, owner, audit.TypeAttemptsExceeded, "pin attempts exceeded")
		h.Metrics.PINCheck(pinResultThrottled)
		h.reply(c, f, Terminate(MsgTooManyTries))
		return
	}

	var (
		user calllog.User
		err  = calllog.ErrNotFound
	)
	if pin.ValidFormat(f.form.Digits) {
		user, err = h.Store.FindUserByPhoneAndPIN(f.ctx, f.form.From, f.form.Digits)
	}
	switch {
	case errors.Is(err, calllog.ErrNotFound):
		h.failPIN(f, owner, audit.TypeInvalidPIN, "invalid pin")
		h.Metrics.PINCheck(pinResultInvalid)
		h.reply(c, f, Terminate(MsgPINInvalid))
	case err != nil:
		h.fail(f, audit.TypeStore, "pin lookup failed", err)
		h.Metrics.PINCheck(pinResultError)
		h.reply(c, f, Terminate(MsgError))
	default:
		h.Metrics.PINCheck(pinResultOK)
		h.handoff(c, f, user, MsgPINVerified)
	}
}

func (h VoiceHandler) begin(c *gin.Context, wf audit.Workflow) (flow, bool) {
	form, err := ParseTwilioVoice(c.Request)
	log := logger.ForCall(logger.FromGin(c), form.CallSid, form.CallLogID)
	f := flow{ctx: logger.With(c.Request.Context(), log), log: log, wf: wf, form: form}

	if h.Store == nil || h.Lifecycle == nil {
		log.Error("voice handler not configured")
		h.reply(c, f, Terminate(MsgError))
		return f, false
	}
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		h.reply(c, f, Terminate(MsgError))
		return f, false
	}
	return f, true
}

// admit gates the call on its CallLog and returns the log's owner.
// On refusal it has already replied.
func (h VoiceHandler) admit(c *gin.Context, f flow) (calllog.User, bool) {
	_, owner, err := h.Lifecycle.Admit(f.ctx, f.form.CallLogID)
	if err == nil {
		return owner, true
	}
	h.refuse(c, f, err)
	return calllog.User{}, false
}

// refuse maps a lifecycle error to a spoken goodbye.
func (h VoiceHandler) refuse(c *gin.Context, f flow, err error) {
	switch {
	case errors.Is(err, calllog.ErrCallClosed):
		f.log.Info("call log already completed")
		h.reply(c, f, Terminate(MsgCallClosed))
	case errors.Is(err, calllog.ErrRetriesExhausted):
		f.log.Info("call log retries exhausted")
		h.record(f, audit.TypeAttemptsExceeded, "retries exhausted")
		h.reply(c, f, Terminate(MsgRetriesReached))
	case errors.Is(err, calllog.ErrInvalidArgument),
		errors.Is(err, calllog.ErrNotFound),
		errors.Is(err, calllog.ErrOwnerMismatch):
		f.log.Warn("call correlation rejected", "err", err)
		h.record(f, audit.TypeCorrelation, err.Error())
		h.reply(c, f, Terminate(MsgError))
	default:
		f.log.Error("call log lookup failed", "err", err)
		h.record(f, audit.TypeStore, err.Error())
		h.reply(c, f, Terminate(MsgError))
	}
}

// handoff marks the call in progress and bridges it to the agent.
func (h VoiceHandler) handoff(c *gin.Context, f flow, user calllog.User, intro string) bool {
	if _, err := h.Lifecycle.Start(f.ctx, f.form.CallLogID, user); err != nil {
		if errors.Is(err, calllog.ErrCallClosed) ||
			errors.Is(err, calllog.ErrRetriesExhausted) ||
			errors.Is(err, calllog.ErrOwnerMismatch) {
			h.refuse(c, f, err)
			return false
		}
		h.fail(f, audit.TypeStore, "mark in progress failed", err)
		h.reply(c, f, Terminate(MsgError))
		return false
	}

	f.log.Info("handing off to agent", "user_id", user.ID)
	h.Metrics.Handoff()
	h.reply(c, f, h.Handoff.Build(user, f.form.CallLogID, f.form.CallSid, intro))
	return true
}

// fail marks the call failed (one retry consumed) and records why.
// Both writes are best-effort; the caller still gets a spoken goodbye.
func (h VoiceHandler) fail(f flow, errType, reason string, cause error) {
	if cause != nil {
		f.log.Error(reason, "err", cause)
	} else {
		f.log.Info(reason)
	}
	if _, err := h.Lifecycle.Fail(f.ctx, f.form.CallLogID, reason); err != nil {
		f.log.Warn("mark call failed", "err", err)
	}
	msg := reason
	if cause != nil {
		msg = reason + ": " + cause.Error()
	}
	h.record(f, errType, msg)
}

// failPIN fails the call log only when the caller dials from the owner's number.
// A rejected PIN from any other number leaves the owner's retries alone.
func (h VoiceHandler) failPIN(f flow, owner calllog.User, errType, reason string) {
	if f.form.From == owner.Phone {
		h.fail(f, errType, reason, nil)
		return
	}
	f.log.Warn(reason+" from a number that does not own the call log", "error_type", errType)
	h.record(f, audit.TypeCorrelation, reason+": caller does not own the call log")
}

func (h VoiceHandler) record(f flow, errType, message string) {
	h.Audit.Record(f.ctx, f.wf, errType, message, f.fields())
}

func (h VoiceHandler) reply(c *gin.Context, f flow, r *Response) {
	body, err := r.Render()
	if err != nil {
		f.log.Error("twiml render failed", "err", err)
		body = apologyTwiML
	}
	c.Data(http.StatusOK, contentTypeTwiML, []byte(body))
}
