// Package store is the persistent registry of canonical events and daily
// mentions. The Temporal Linker is the only writer; all writes for one
// (date, origin entity) unit happen inside one Unit transaction that commits
// entirely or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// EventQuery filters canonical events for downstream consumers.
type EventQuery struct {
	Entity string
	Phase  model.StoryPhase // empty: any phase
	From   time.Time        // zero: unbounded
	To     time.Time        // zero: unbounded; matches LastMentionDate
}

// MentionQuery filters daily mentions for downstream consumers.
type MentionQuery struct {
	Entity string
	From   time.Time
	To     time.Time
}

// Unit is a transaction scoped to one origin entity's processing unit.
// Reads inside the unit observe its own uncommitted writes, so a second
// mention processed in the same unit can link to an event the first one
// just updated.
type Unit interface {
	// Candidates returns events for the entity whose last mention date
	// lies in [since, until], excluding dormant events.
	Candidates(entity string, since, until time.Time) ([]*model.CanonicalEvent, error)

	// UpsertEvent stages a created or updated canonical event.
	UpsertEvent(event *model.CanonicalEvent) error

	// SaveMention stages a daily mention. Saving a mention whose ID
	// already exists replaces it: replaying a unit is idempotent.
	SaveMention(m *model.DailyEventMention) error

	// FindMention returns the mention with the given ID, observing the
	// unit's own staged writes, or nil when no such mention exists.
	FindMention(id string) (*model.DailyEventMention, error)

	Commit() error
	Rollback() error
}

// EventStore is the canonical event registry.
type EventStore interface {
	// Begin opens a unit transaction for one origin entity.
	Begin(ctx context.Context, entity string) (Unit, error)

	// GetEvent returns one canonical event by ID.
	GetEvent(ctx context.Context, id string) (*model.CanonicalEvent, error)

	// ListEvents returns committed canonical events matching the query.
	ListEvents(ctx context.Context, q EventQuery) ([]*model.CanonicalEvent, error)

	// ListMentions returns committed daily mentions matching the query.
	ListMentions(ctx context.Context, q MentionQuery) ([]*model.DailyEventMention, error)

	// SweepStale forces phase dormant on every event of the entity whose
	// last mention is more than stalenessDays before date. Returns how
	// many events were swept. Dormant is absorbing: swept events are
	// never retrieved as candidates again.
	SweepStale(ctx context.Context, entity string, date time.Time, stalenessDays int) (int, error)

	Close() error
}

// NewStore creates a store backend from configuration.
func NewStore(cfg model.StoreConfig) (EventStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return NewMemoryStore(), nil
	}
}
