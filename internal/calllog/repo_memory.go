package calllog

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local runs.
// It is not intended for production use.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User
	logs  map[string]CallLog

	pins  PINMatcher
	clock func() time.Time
}

func NewMemoryStore(pins PINMatcher) *MemoryStore {
	return &MemoryStore{
		users: map[string]User{},
		logs:  map[string]CallLog{},
		pins:  pins,
		clock: time.Now,
	}
}

func (s *MemoryStore) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *MemoryStore) PutCallLog(l CallLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[l.ID] = l
}

func (s *MemoryStore) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	if phone == "" {
		return User{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) FindUserByPhoneAndPIN(ctx context.Context, phone, pin string) (User, error) {
	u, err := s.FindUserByPhone(ctx, phone)
	if err != nil {
		return User{}, err
	}
	if s.pins == nil || !s.pins.Match(pin, u.PIN) {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetCallLog(ctx context.Context, id string) (CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return CallLog{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) UpdateCallLog(ctx context.Context, id string, fn UpdateFunc) (CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.logs[id]
	if !ok {
		return CallLog{}, ErrNotFound
	}
	p, err := fn(cur)
	if err != nil {
		return cur, err
	}
	if p.Empty() {
		return cur, nil
	}
	next := p.Apply(cur, s.clock().UTC())
	s.logs[id] = next
	return next, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
