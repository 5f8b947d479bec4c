package transcript

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		kind    string
		wantErr error
	}{
		{"completed", `{"event_type":"conversation.completed","conversation_id":"c1","transcript":"hi","metadata":{"call_log_id":"abc123","user_id":"u1"}}`, EventConversationCompleted, nil},
		{"other kind is not decoded further", `{"event_type":"conversation.started","metadata":42}`, "conversation.started", nil},
		{"missing metadata", `{"event_type":"conversation.completed","conversation_id":"c1"}`, EventConversationCompleted, ErrMissingCorrelation},
		{"missing user_id", `{"event_type":"conversation.completed","metadata":{"call_log_id":"abc123"}}`, EventConversationCompleted, ErrMissingCorrelation},
		{"blank call_log_id", `{"event_type":"conversation.completed","metadata":{"call_log_id":"  ","user_id":"u1"}}`, EventConversationCompleted, ErrMissingCorrelation},
		{"non-string event type", `{"event_type":42}`, "42", nil},
		{"object event type", `{"event_type":{"name":"conversation.completed"}}`, `{"name":"conversation.completed"}`, nil},
		{"not json", `event_type=conversation.completed`, "", ErrMalformed},
		{"wrong metadata type", `{"event_type":"conversation.completed","metadata":{"call_log_id":7,"user_id":"u1"}}`, "", ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tc.body))
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
			}
			if tc.kind != "" {
				require.NotNil(t, ev)
				assert.Equal(t, tc.kind, ev.Kind())
			}
		})
	}
}

func TestParseEvent_KeepsTranscriptBytes(t *testing.T) {
	body := `{"event_type":"conversation.completed","conversation_id":"c1","transcript":[{"role":"agent","message":"What did you eat?"}],"metadata":{"call_log_id":"abc123","user_id":"u1"}}`

	ev, err := ParseEvent([]byte(body))
	require.NoError(t, err)

	done := ev.(Completed)
	assert.Equal(t, `[{"role":"agent","message":"What did you eat?"}]`, string(done.Transcript))
	assert.Equal(t, "abc123", done.CallLogID)
	assert.Equal(t, "u1", done.UserID)
	assert.Equal(t, "c1", done.ConversationID)
}

func TestParseEvent_MissingCorrelationKeepsCallLogID(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event_type":"conversation.completed","metadata":{"call_log_id":"abc123"}}`))
	require.ErrorIs(t, err, ErrMissingCorrelation)
	assert.Equal(t, "abc123", ev.(Completed).CallLogID)
}
