// Package actionlog defines the immutable audit record of a domain event.
// The original platform modelled one log subtype per source entity; here
// a single entity carries a variant tag plus a reference id, which keeps
// filtering by origin type without an inheritance tree.
package actionlog

import (
	"time"

	"github.com/google/uuid"

	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
)

// EntityType tags the kind of entity a log entry originates from.
type EntityType string

const (
	EntityGroup     EntityType = "GROUP"
	EntityUser      EntityType = "USER"
	EntityTask      EntityType = "TASK"
	EntityEvent     EntityType = "EVENT"
	EntityBroadcast EntityType = "BROADCAST"
)

// Entry is an immutable record of a domain event. Entries are written
// once by the bundle broker and never updated or deleted.
type Entry struct {
	ID        string     `db:"id" json:"id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Entity    EntityType `db:"entity_type" json:"entity_type"`

	// EntityID references the originating group, user, task, etc.
	EntityID string `db:"entity_id" json:"entity_id"`

	// ActorID is the user who performed the action.
	ActorID string `db:"actor_id" json:"actor_id"`

	Description string `db:"description" json:"description"`
}

// New creates a log entry for the given origin and actor.
func New(entity EntityType, entityID, actorID, description string) *Entry {
	return &Entry{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		Entity:      entity,
		EntityID:    entityID,
		ActorID:     actorID,
		Description: description,
	}
}

// Validate checks the fields the pipeline depends on.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return errors.New(errors.ErrNilEntry, "action log id must not be empty")
	}
	if e.Entity == "" || e.EntityID == "" {
		return errors.Newf(errors.ErrNilEntry, "action log %s missing entity reference", e.ID)
	}
	if e.Description == "" {
		return errors.Newf(errors.ErrNilEntry, "action log %s missing description", e.ID)
	}
	return nil
}
