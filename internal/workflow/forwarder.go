package workflow

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrForwardFailed = errors.New("workflow: forward failed")

// ForwardRequest is the transcript hand-off to the workflow processor.
// Transcript is passed through untouched.
type ForwardRequest struct {
	Transcript     json.RawMessage `json:"transcript"`
	CallLogID      string          `json:"call_log_id"`
	UserID         string          `json:"user_id"`
	ConversationID string          `json:"conversation_id"`
}

// Body encodes the request. Equal requests always give equal bytes, so a
// resend is indistinguishable from the first delivery downstream.
func (r ForwardRequest) Body() ([]byte, error) {
	if len(r.Transcript) == 0 {
		r.Transcript = json.RawMessage("null")
	}
	return json.Marshal(r)
}

// IdempotencyKey is stable across resends of the same completion event.
func (r ForwardRequest) IdempotencyKey() string {
	return r.CallLogID + ":" + r.ConversationID
}

// Forwarder delivers a transcript to the workflow processor exactly once per call;
// it never retries internally.
type Forwarder interface {
	Forward(ctx context.Context, req ForwardRequest) error
}
