package message

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-process Store used by the memory driver and tests.
type MemStore struct {
	mu    sync.RWMutex
	seq   int64
	byID  map[string]*Message
	order []*Message

	// Clock stamps CreatedAt; defaults to time.Now.
	Clock func() time.Time
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]*Message), Clock: time.Now}
}

func (s *MemStore) Create(ctx context.Context, m *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	now := s.Clock()
	m.Seq = s.seq
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Read = false
	m.Deleted = false

	cp := *m
	s.byID[m.ID] = &cp
	s.order = append(s.order, &cp)
	return nil
}

func (s *MemStore) Find(ctx context.Context, id string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// visible returns live messages matching keep, newest first. Callers hold mu.
func (s *MemStore) visible(keep func(*Message) bool) []*Message {
	var out []*Message
	for _, m := range s.order {
		if m.Deleted || !keep(m) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

func (s *MemStore) ListConversation(ctx context.Context, key string, offset, limit int) ([]*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit < 0 {
		return nil, ErrInvalidRange
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.visible(func(m *Message) bool { return m.ConversationKey == key })
	if offset >= len(all) {
		return []*Message{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]*Message, 0, end-offset)
	for _, m := range all[offset:end] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) MarkRead(ctx context.Context, key, receiverID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := s.Clock()
	for _, m := range s.order {
		if m.ConversationKey == key && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			m.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemStore) SoftDelete(ctx context.Context, id, senderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || m.SenderID != senderID {
		return ErrNotFound
	}
	m.Deleted = true
	m.UpdatedAt = s.Clock()
	return nil
}

func (s *MemStore) Conversations(ctx context.Context, userID string) ([]*ConversationRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	mine := s.visible(func(m *Message) bool { return m.SenderID == userID || m.ReceiverID == userID })

	rows := make(map[string]*ConversationRow)
	var keys []string
	for _, m := range mine {
		row, ok := rows[m.ConversationKey]
		if !ok {
			row = &ConversationRow{Key: m.ConversationKey}
			rows[m.ConversationKey] = row
			keys = append(keys, m.ConversationKey)
		}
		// mine is newest first with ties on highest seq; equal timestamps
		// resolve to the earliest created message.
		if row.Last == nil || (m.CreatedAt.Equal(row.Last.CreatedAt) && m.Seq < row.Last.Seq) {
			cp := *m
			row.Last = &cp
		}
		if m.ReceiverID == userID && !m.Read {
			row.UnreadCount++
		}
	}

	out := make([]*ConversationRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, rows[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Last, out[j].Last
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})
	return out, nil
}
