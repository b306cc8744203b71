package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

// MemoryStore is an in-memory EventStore for tests and dry runs. Unit
// transactions stage clones and publish them atomically on commit, so a
// failed unit leaves no partial mutation behind.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[string]map[string]*model.CanonicalEvent   // entity -> id -> event
	mentions map[string]map[string]*model.DailyEventMention // entity -> id -> mention
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]map[string]*model.CanonicalEvent),
		mentions: make(map[string]map[string]*model.DailyEventMention),
	}
}

// Begin opens a unit transaction for one origin entity.
func (s *MemoryStore) Begin(_ context.Context, entity string) (Unit, error) {
	return &memoryUnit{
		store:    s,
		entity:   entity,
		events:   make(map[string]*model.CanonicalEvent),
		mentions: make(map[string]*model.DailyEventMention),
	}, nil
}

// GetEvent returns one canonical event by ID.
func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.CanonicalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, byID := range s.events {
		if ev, ok := byID[id]; ok {
			return ev.Clone(), nil
		}
	}
	return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
}

// ListEvents returns committed canonical events matching the query.
func (s *MemoryStore) ListEvents(_ context.Context, q EventQuery) ([]*model.CanonicalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.CanonicalEvent
	for entity, byID := range s.events {
		if q.Entity != "" && entity != q.Entity {
			continue
		}
		for _, ev := range byID {
			if q.Phase != "" && ev.Phase != q.Phase {
				continue
			}
			if !q.From.IsZero() && ev.LastMentionDate.Before(model.Day(q.From)) {
				continue
			}
			if !q.To.IsZero() && ev.LastMentionDate.After(model.Day(q.To)) {
				continue
			}
			out = append(out, ev.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstMentionDate.Before(out[j].FirstMentionDate) })
	return out, nil
}

// ListMentions returns committed daily mentions matching the query.
func (s *MemoryStore) ListMentions(_ context.Context, q MentionQuery) ([]*model.DailyEventMention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.DailyEventMention
	for entity, byID := range s.mentions {
		if q.Entity != "" && entity != q.Entity {
			continue
		}
		for _, m := range byID {
			if !q.From.IsZero() && m.MentionDate.Before(model.Day(q.From)) {
				continue
			}
			if !q.To.IsZero() && m.MentionDate.After(model.Day(q.To)) {
				continue
			}
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MentionDate.Equal(out[j].MentionDate) {
			return out[i].MentionDate.Before(out[j].MentionDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SweepStale forces dormant on events silent beyond stalenessDays.
func (s *MemoryStore) SweepStale(_ context.Context, entity string, date time.Time, stalenessDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, ev := range s.events[entity] {
		if ev.Phase != model.PhaseDormant && ev.DaysSinceLastMention(date) > stalenessDays {
			ev.Phase = model.PhaseDormant
			swept++
		}
	}
	return swept, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// memoryUnit overlays staged writes on the committed state.
type memoryUnit struct {
	store    *MemoryStore
	entity   string
	events   map[string]*model.CanonicalEvent
	mentions map[string]*model.DailyEventMention
	done     bool
}

// Candidates merges staged events over committed ones.
func (u *memoryUnit) Candidates(entity string, since, until time.Time) ([]*model.CanonicalEvent, error) {
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()

	merged := make(map[string]*model.CanonicalEvent)
	for id, ev := range u.store.events[entity] {
		merged[id] = ev
	}
	for id, ev := range u.events {
		merged[id] = ev
	}

	var out []*model.CanonicalEvent
	for _, ev := range merged {
		if ev.Phase == model.PhaseDormant {
			continue
		}
		last := model.Day(ev.LastMentionDate)
		if last.Before(model.Day(since)) || last.After(model.Day(until)) {
			continue
		}
		out = append(out, ev.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (u *memoryUnit) UpsertEvent(event *model.CanonicalEvent) error {
	if u.done {
		return fmt.Errorf("unit transaction already finished")
	}
	u.events[event.ID] = event.Clone()
	return nil
}

func (u *memoryUnit) SaveMention(m *model.DailyEventMention) error {
	if u.done {
		return fmt.Errorf("unit transaction already finished")
	}
	cp := *m
	u.mentions[m.ID] = &cp
	return nil
}

// FindMention checks staged writes first, then the committed state.
func (u *memoryUnit) FindMention(id string) (*model.DailyEventMention, error) {
	if m, ok := u.mentions[id]; ok {
		cp := *m
		return &cp, nil
	}

	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	if m, ok := u.store.mentions[u.entity][id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

// Commit publishes all staged writes atomically.
func (u *memoryUnit) Commit() error {
	if u.done {
		return fmt.Errorf("unit transaction already finished")
	}
	u.done = true

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	if u.store.events[u.entity] == nil {
		u.store.events[u.entity] = make(map[string]*model.CanonicalEvent)
	}
	if u.store.mentions[u.entity] == nil {
		u.store.mentions[u.entity] = make(map[string]*model.DailyEventMention)
	}
	for id, ev := range u.events {
		u.store.events[u.entity][id] = ev
	}
	for id, m := range u.mentions {
		u.store.mentions[u.entity][id] = m
	}
	return nil
}

// Rollback discards all staged writes.
func (u *memoryUnit) Rollback() error {
	u.done = true
	u.events = nil
	u.mentions = nil
	return nil
}
