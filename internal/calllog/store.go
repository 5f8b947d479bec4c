package calllog

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("calllog: not found")
	ErrInvalidArgument   = errors.New("calllog: invalid argument")
	ErrInvalidTransition = errors.New("calllog: invalid status transition")
	ErrRetriesExhausted  = errors.New("calllog: retries exhausted")
	ErrCallClosed        = errors.New("calllog: call already completed")
	ErrOwnerMismatch     = errors.New("calllog: call log belongs to another user")
)

// PINMatcher compares a submitted PIN against the stored value.
// Implemented by pin.Verifier; stores use it so the comparison never happens in SQL.
type PINMatcher interface {
	Match(submitted, stored string) bool
}

// UpdateFunc computes a patch from the current, row-locked CallLog.
// Returning an error aborts the update and leaves the row untouched.
type UpdateFunc func(current CallLog) (Patch, error)

// Store is the persistence contract for users and call logs.
//
// Every method is keyed by phone number or id; implementations must not keep
// per-call state outside the backing store.
type Store interface {
	FindUserByPhone(ctx context.Context, phone string) (User, error)
	// FindUserByPhoneAndPIN authenticates phone+pin as one lookup: a PIN only
	// authenticates the number that owns it.
	FindUserByPhoneAndPIN(ctx context.Context, phone, pin string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)

	GetCallLog(ctx context.Context, id string) (CallLog, error)
	// UpdateCallLog applies fn's patch atomically with respect to other updates of the same id.
	UpdateCallLog(ctx context.Context, id string, fn UpdateFunc) (CallLog, error)

	Ping(ctx context.Context) error
}
