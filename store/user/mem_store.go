package user

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-process Store used by the memory driver and tests.
type MemStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]*User), byEmail: make(map[string]string)}
}

// Create stores u, assigning a random id when u.ID is empty.
func (s *MemStore) Create(ctx context.Context, u *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := s.byEmail[email]; ok && email != "" {
		return ErrDuplicateEmail
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = email
	cp := *u
	s.byID[u.ID] = &cp
	if email != "" {
		s.byEmail[email] = u.ID
	}
	return nil
}

func (s *MemStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemStore) GetProfiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Profile, len(ids))
	for _, id := range ids {
		if u, ok := s.byID[id]; ok {
			out[id] = u.Profile()
		}
	}
	return out, nil
}
