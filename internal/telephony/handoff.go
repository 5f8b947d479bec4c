package telephony

import (
	"net/url"

	"calorie-coach/internal/calllog"
	"calorie-coach/internal/pin"
)

// Spoken copy.
const (
	MsgPINPrompt      = "Welcome to Calorie Coach. Please enter your 6-digit PIN."
	MsgPINTimeout     = "We didn't receive your PIN. Please try again."
	MsgPINInvalid     = "Invalid PIN. Please try again."
	MsgPINVerified    = "PIN verified. Connecting you now."
	MsgTooManyTries   = "Too many attempts. Please try again later."
	MsgCallClosed     = "This call has already been completed. Goodbye."
	MsgRetriesReached = "You have reached the maximum number of attempts for this call. Goodbye."
	MsgError          = "Sorry, we encountered an error. Please try again later."
)

const (
	// VerifyPINPath is where the provider posts the gathered digits.
	VerifyPINPath = "/webhooks/twilio/verify-pin"

	pinGatherTimeoutSeconds = 10
)

// Stream parameter names echoed back by the agent in the completion event.
const (
	ParamAgentID         = "agent_id"
	ParamAgentCredential = "agent_credential"
	ParamCallLogID       = "call_log_id"
	ParamUserID          = "user_id"
	ParamWebhookURL      = "webhook_url"
)

// HandoffBuilder bridges a call to the conversational agent.
// Building is pure: the same user, call log and call sid always give the same TwiML.
type HandoffBuilder struct {
	StreamURL       string
	AgentID         string
	AgentCredential string
	// WebhookURL is this service's completion-event address.
	WebhookURL string
}

// Build returns a handoff response. intro, when set, is spoken before the stream opens.
func (b HandoffBuilder) Build(user calllog.User, callLogID, callSID, intro string) *Response {
	r := NewResponse()
	if intro != "" {
		r.Say(intro)
	}
	name := ""
	if callSID != "" {
		name = "handoff-" + callSID
	}
	return r.Connect(Stream{
		Name: name,
		URL:  b.StreamURL,
		Params: []StreamParam{
			{Name: ParamAgentID, Value: b.AgentID},
			{Name: ParamAgentCredential, Value: b.AgentCredential},
			{Name: ParamCallLogID, Value: callLogID},
			{Name: ParamUserID, Value: user.ID},
			{Name: ParamWebhookURL, Value: b.WebhookURL},
		},
	})
}

// PINChallenge prompts for the PIN and routes the digits to VerifyPINPath with
// call_log_id carried in the action URL. If the gather times out the provider
// falls through to the goodbye and hangs up.
func PINChallenge(callLogID string) *Response {
	action := VerifyPINPath + "?" + url.Values{ParamCallLogID: {callLogID}}.Encode()
	return NewResponse().
		Gather(Gather{
			Action:    action,
			NumDigits: pin.Length,
			Timeout:   pinGatherTimeoutSeconds,
			Prompt:    MsgPINPrompt,
		}).
		Say(MsgPINTimeout).
		Hangup()
}

// Terminate speaks message and hangs up.
func Terminate(message string) *Response {
	return NewResponse().Say(message).Hangup()
}
