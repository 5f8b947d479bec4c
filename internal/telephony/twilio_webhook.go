package telephony

import (
	"net/http"
	"strings"
)

// TwilioVoiceForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
//
// Keep it minimal and provider-adapter-only.
// Business logic (who the caller is) is not decided here.
type TwilioVoiceForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus string
	// Digits is only present on the Gather action callback.
	Digits string

	// CallLogID is not a Twilio field: the scheduler puts it on the webhook URL
	// and PINChallenge carries it to the gather action.
	CallLogID string
}

func ParseTwilioVoice(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	return TwilioVoiceForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: strings.TrimSpace(r.PostFormValue("AccountSid")),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		CallStatus: r.PostFormValue("CallStatus"),
		Digits:     strings.TrimSpace(r.PostFormValue("Digits")),
		CallLogID:  strings.TrimSpace(r.URL.Query().Get(ParamCallLogID)),
	}, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}
