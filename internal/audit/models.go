package audit

import "time"

// Event is an immutable, append-only record of a fail-closed decision or an
// integration failure. It backs the shared `errors` table the workflow engine
// also writes to, so operators see call-flow and transcript failures in one place.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; call flows never block on it.
type Event struct {
	ID string `json:"id" db:"id"`

	// Workflow names the entry point that produced the event.
	Workflow Workflow `json:"workflow" db:"workflow"`
	// ErrorType is a stable machine-readable category.
	ErrorType string `json:"error_type,omitempty" db:"error_type"`
	Message   string `json:"message" db:"message"`

	// Context is optional JSON with correlation details (call_log_id, call_sid, ...).
	// Never put PIN digits or agent credentials here.
	Context string `json:"context,omitempty" db:"context"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Workflow string

const (
	WorkflowInboundCall Workflow = "inbound_call"
	WorkflowPINVerify   Workflow = "pin_verify"
	WorkflowTranscript  Workflow = "transcript_relay"
)

// Error types recorded by this service.
const (
	TypeUnknownCaller      = "unknown_caller"
	TypeInvalidPIN         = "invalid_pin"
	TypeAttemptsExceeded   = "attempts_exceeded"
	TypeCorrelation        = "correlation_error"
	TypeStore              = "store_error"
	TypeForwardFailed      = "forward_failed"
	TypeMalformedEvent     = "malformed_event"
	TypeUnexpectedFault    = "unexpected_fault"
)
