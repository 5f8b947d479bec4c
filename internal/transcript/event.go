package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventConversationCompleted is the only event kind the relay acts on.
const EventConversationCompleted = "conversation.completed"

var (
	ErrMalformed          = errors.New("transcript: malformed event")
	ErrMissingCorrelation = errors.New("transcript: missing call_log_id or user_id")
)

// Event is either Completed or Other.
type Event interface {
	Kind() string
}

// Completed is a validated conversation.completed event.
type Completed struct {
	ConversationID string
	CallLogID      string
	UserID         string
	// Transcript is kept as received so it can be forwarded byte for byte.
	Transcript json.RawMessage
}

func (Completed) Kind() string { return EventConversationCompleted }

// Other is any event kind the relay only acknowledges.
type Other struct {
	Type string
}

func (o Other) Kind() string { return o.Type }

type envelope struct {
	EventType json.RawMessage `json:"event_type"`
}

// kind returns the event type. A missing or non-string event_type is kept as
// its raw JSON text so it is acknowledged as Other rather than rejected.
func (e envelope) kind() string {
	var s string
	if err := json.Unmarshal(e.EventType, &s); err == nil {
		return s
	}
	return string(e.EventType)
}

type completedPayload struct {
	ConversationID string          `json:"conversation_id"`
	Transcript     json.RawMessage `json:"transcript"`
	Metadata       *struct {
		CallLogID string `json:"call_log_id"`
		UserID    string `json:"user_id"`
	} `json:"metadata"`
}

// ParseEvent validates body once and returns a typed event.
//
// Unknown kinds are not decoded further, so new agent events never fail here.
// On ErrMissingCorrelation the returned Completed carries whatever ids were present.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if kind := env.kind(); kind != EventConversationCompleted {
		return Other{Type: kind}, nil
	}

	var p completedPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev := Completed{
		ConversationID: strings.TrimSpace(p.ConversationID),
		Transcript:     p.Transcript,
	}
	if p.Metadata != nil {
		ev.CallLogID = strings.TrimSpace(p.Metadata.CallLogID)
		ev.UserID = strings.TrimSpace(p.Metadata.UserID)
	}
	if ev.CallLogID == "" || ev.UserID == "" {
		return ev, ErrMissingCorrelation
	}
	return ev, nil
}
