package calllog

import "time"

// User is the caller identity and call configuration.
// Rows are created by signup/onboarding; this service only reads them.
//
// PIN is either a plaintext 6-digit string or an argon2id encoded hash (see internal/pin).
// Never log it.
type User struct {
	ID    string `json:"id" db:"id"`
	Phone string `json:"phone" db:"phone"` // E.164, unique
	PIN   string `json:"-" db:"pin"`

	CallWindowStart string `json:"call_window_start" db:"call_window_start"` // local HH:MM
	CallWindowEnd   string `json:"call_window_end" db:"call_window_end"`
	Timezone        string `json:"timezone" db:"timezone"`

	MaxRetries int `json:"max_retries" db:"max_retries"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CallLog is one scheduled call attempt.
//
// Invariants (enforced by Lifecycle):
// - status never moves back to scheduled; completed is terminal
// - retries <= owner's MaxRetries
// - StartedAt is set no later than the first successful handoff
// - EndedAt is set exactly when status is completed or failed
type CallLog struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	ScheduledAt time.Time  `json:"scheduled_at" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	Status  Status `json:"status" db:"status"`
	Retries int    `json:"retries" db:"retries"`

	TranscriptID string `json:"transcript_id,omitempty" db:"transcript_id"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Patch is a partial CallLog update. Nil fields are left untouched.
type Patch struct {
	Status       *Status
	StartedAt    *time.Time
	EndedAt      *time.Time
	ClearEndedAt bool
	Retries      *int
	TranscriptID *string
	ErrorMessage *string
}

// Empty reports whether applying p would change nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.StartedAt == nil && p.EndedAt == nil && !p.ClearEndedAt &&
		p.Retries == nil && p.TranscriptID == nil && p.ErrorMessage == nil
}

// Apply returns a copy of l with p applied and UpdatedAt set to now.
func (p Patch) Apply(l CallLog, now time.Time) CallLog {
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		l.StartedAt = &t
	}
	if p.ClearEndedAt {
		l.EndedAt = nil
	}
	if p.EndedAt != nil {
		t := *p.EndedAt
		l.EndedAt = &t
	}
	if p.Retries != nil {
		l.Retries = *p.Retries
	}
	if p.TranscriptID != nil {
		l.TranscriptID = *p.TranscriptID
	}
	if p.ErrorMessage != nil {
		l.ErrorMessage = *p.ErrorMessage
	}
	l.UpdatedAt = now
	return l
}
