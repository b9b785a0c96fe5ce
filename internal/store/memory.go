package store

import (
	"context"
	"sort"
	"sync"

	"eventpass/internal/registry"
)

// Memory is a mutex-guarded in-process Store for dev and tests. Every
// operation holds the lock for its whole critical section, which gives the
// same atomicity the SQL backends get from their constraints and
// conditional updates.
type Memory struct {
	mu      sync.Mutex
	byEmail map[string]*registry.Attendee
	byToken map[string]*registry.Attendee
	order   []*registry.Attendee
	scans   []registry.ScanEvent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byEmail: make(map[string]*registry.Attendee),
		byToken: make(map[string]*registry.Attendee),
	}
}

// Insert persists a new attendee, enforcing email and token uniqueness
// under the lock.
func (m *Memory) Insert(ctx context.Context, att registry.Attendee) (registry.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[att.Email]; ok {
		return registry.Attendee{}, registry.ErrDuplicateEmail
	}
	if _, ok := m.byToken[att.Token]; ok {
		return registry.Attendee{}, registry.ErrDuplicateToken
	}
	stored := att
	m.byEmail[stored.Email] = &stored
	m.byToken[stored.Token] = &stored
	m.order = append(m.order, &stored)
	return att, nil
}

// FindByEmail returns a copy of the attendee for an email, nil when absent.
func (m *Memory) FindByEmail(ctx context.Context, email string) (*registry.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if att, ok := m.byEmail[email]; ok {
		cp := *att
		return &cp, nil
	}
	return nil, nil
}

// FindByToken returns a copy of the attendee holding a token, nil when absent.
func (m *Memory) FindByToken(ctx context.Context, token string) (*registry.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if att, ok := m.byToken[token]; ok {
		cp := *att
		return &cp, nil
	}
	return nil, nil
}

// CheckIn flips checked_in under the lock; exactly one concurrent caller
// observes the transition.
func (m *Memory) CheckIn(ctx context.Context, token string) (registry.Attendee, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.byToken[token]
	if !ok {
		return registry.Attendee{}, false, registry.ErrNotFound
	}
	if att.CheckedIn {
		return *att, false, nil
	}
	att.CheckedIn = true
	return *att, true, nil
}

// ListAll returns copies of every attendee, newest registration first.
func (m *Memory) ListAll(ctx context.Context) ([]registry.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]registry.Attendee, 0, len(m.order))
	for _, att := range m.order {
		res = append(res, *att)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].RegisteredAt.After(res[j].RegisteredAt)
	})
	return res, nil
}

// Stats returns aggregate attendance counts.
func (m *Memory) Stats(ctx context.Context) (registry.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := registry.Stats{Total: len(m.order)}
	for _, att := range m.order {
		if att.CheckedIn {
			st.CheckedIn++
		}
	}
	st.Pending = st.Total - st.CheckedIn
	return st, nil
}

// RecordScan appends one audit entry.
func (m *Memory) RecordScan(ctx context.Context, ev registry.ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans = append(m.scans, ev)
	return nil
}

// ListScans returns the most recent audit entries, newest first.
func (m *Memory) ListScans(ctx context.Context, limit int) ([]registry.ScanEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []registry.ScanEvent
	for i := len(m.scans) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, m.scans[i])
	}
	return res, nil
}

// ResetAll drops every record.
func (m *Memory) ResetAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEmail = make(map[string]*registry.Attendee)
	m.byToken = make(map[string]*registry.Attendee)
	m.order = nil
	m.scans = nil
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
