package calllog

import (
	"context"
	"fmt"
	"time"
)

// Lifecycle drives CallLog status transitions:
//
//	scheduled -> in_progress -> completed
//	          \-> failed <-/        ^
//	failed -> in_progress (while retries < owner.MaxRetries)
//	failed -> completed (late transcript delivery)
//
// completed is terminal and nothing ever returns to scheduled.
// Every transition runs through Store.UpdateCallLog so it is applied under a row lock.
type Lifecycle struct {
	store Store
	clock func() time.Time
}

func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store, clock: time.Now}
}

// WithClock replaces the time source; used by tests.
func (l *Lifecycle) WithClock(clock func() time.Time) *Lifecycle {
	l.clock = clock
	return l
}

// Admit loads a call log and its owner and decides whether the call may continue.
// It does not write.
func (l *Lifecycle) Admit(ctx context.Context, id string) (CallLog, User, error) {
	if id == "" {
		return CallLog{}, User{}, ErrInvalidArgument
	}
	cl, err := l.store.GetCallLog(ctx, id)
	if err != nil {
		return CallLog{}, User{}, err
	}
	owner, err := l.store.FindUserByID(ctx, cl.UserID)
	if err != nil {
		return CallLog{}, User{}, fmt.Errorf("calllog: owner of %s: %w", id, err)
	}
	switch {
	case cl.Status == StatusCompleted:
		return cl, owner, ErrCallClosed
	case cl.Status == StatusFailed && cl.Retries >= owner.MaxRetries:
		return cl, owner, ErrRetriesExhausted
	}
	return cl, owner, nil
}

// Start marks the call in_progress at handoff time.
func (l *Lifecycle) Start(ctx context.Context, id string, owner User) (CallLog, error) {
	now := l.clock().UTC()
	return l.store.UpdateCallLog(ctx, id, func(cur CallLog) (Patch, error) {
		if cur.UserID != owner.ID {
			return Patch{}, ErrOwnerMismatch
		}
		return PlanStart(cur, owner, now)
	})
}

// Fail marks the call failed, records reason and counts one retry.
func (l *Lifecycle) Fail(ctx context.Context, id, reason string) (CallLog, error) {
	if id == "" {
		return CallLog{}, ErrInvalidArgument
	}
	cl, err := l.store.GetCallLog(ctx, id)
	if err != nil {
		return CallLog{}, err
	}
	owner, err := l.store.FindUserByID(ctx, cl.UserID)
	if err != nil {
		return CallLog{}, fmt.Errorf("calllog: owner of %s: %w", id, err)
	}
	now := l.clock().UTC()
	return l.store.UpdateCallLog(ctx, id, func(cur CallLog) (Patch, error) {
		return PlanFail(cur, owner, reason, now)
	})
}

// Complete marks the call completed once its transcript has been handed on.
// Completing twice with the same transcript id is a no-op.
func (l *Lifecycle) Complete(ctx context.Context, id, userID, transcriptID string) (CallLog, error) {
	now := l.clock().UTC()
	return l.store.UpdateCallLog(ctx, id, func(cur CallLog) (Patch, error) {
		if cur.UserID != userID {
			return Patch{}, ErrOwnerMismatch
		}
		return PlanComplete(cur, transcriptID, now)
	})
}

func PlanStart(cur CallLog, owner User, now time.Time) (Patch, error) {
	var p Patch
	switch cur.Status {
	case StatusCompleted:
		return Patch{}, ErrCallClosed
	case StatusFailed:
		if cur.Retries >= owner.MaxRetries {
			return Patch{}, ErrRetriesExhausted
		}
		p.Status = statusPtr(StatusInProgress)
		p.ClearEndedAt = true
	case StatusScheduled:
		p.Status = statusPtr(StatusInProgress)
	case StatusInProgress:
	default:
		return Patch{}, fmt.Errorf("%w: from %q", ErrInvalidTransition, cur.Status)
	}
	if cur.StartedAt == nil {
		p.StartedAt = &now
	}
	return p, nil
}

func PlanFail(cur CallLog, owner User, reason string, now time.Time) (Patch, error) {
	if cur.Status == StatusCompleted {
		return Patch{}, ErrCallClosed
	}
	if !cur.Status.Valid() {
		return Patch{}, fmt.Errorf("%w: from %q", ErrInvalidTransition, cur.Status)
	}
	retries := cur.Retries + 1
	if retries > owner.MaxRetries {
		retries = max(owner.MaxRetries, 0)
	}
	return Patch{
		Status:       statusPtr(StatusFailed),
		EndedAt:      &now,
		Retries:      &retries,
		ErrorMessage: &reason,
	}, nil
}

func PlanComplete(cur CallLog, transcriptID string, now time.Time) (Patch, error) {
	switch cur.Status {
	case StatusCompleted:
		if cur.TranscriptID == transcriptID {
			return Patch{}, nil
		}
		return Patch{}, ErrCallClosed
	case StatusScheduled, StatusInProgress, StatusFailed:
	default:
		return Patch{}, fmt.Errorf("%w: from %q", ErrInvalidTransition, cur.Status)
	}
	p := Patch{
		Status:       statusPtr(StatusCompleted),
		EndedAt:      &now,
		TranscriptID: &transcriptID,
	}
	if cur.StartedAt == nil {
		p.StartedAt = &now
	}
	return p, nil
}

func statusPtr(s Status) *Status { return &s }
