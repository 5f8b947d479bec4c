package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"calorie-coach/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Workflow == "" || e.Message == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event and only logs if that fails. fields become the JSON context.
func (s *Service) Record(ctx context.Context, wf Workflow, errType, message string, fields map[string]string) {
	if s == nil {
		return
	}
	e := Event{Workflow: wf, ErrorType: errType, Message: message}
	if len(fields) > 0 {
		if raw, err := json.Marshal(fields); err == nil {
			e.Context = string(raw)
		}
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "workflow", wf, "error_type", errType, "err", err)
	}
}
