package audit

import (
	"context"
	"errors"
	"testing"
)

func TestService_AppendRequiresWorkflowAndMessage(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Message: "x"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{Workflow: WorkflowPINVerify}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
}

func TestService_RecordFillsIDsAndContext(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	svc.Record(context.Background(), WorkflowPINVerify, TypeInvalidPIN, "pin rejected", map[string]string{"call_log_id": "abc123"})

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp filled: %+v", evs[0])
	}
	if evs[0].Context != `{"call_log_id":"abc123"}` {
		t.Fatalf("unexpected context %q", evs[0].Context)
	}
}

func TestService_RecordOnNilServiceIsNoop(t *testing.T) {
	var svc *Service
	svc.Record(context.Background(), WorkflowTranscript, TypeForwardFailed, "x", nil)
}
