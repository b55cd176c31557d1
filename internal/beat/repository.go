package beat

import (
	"context"
	"errors"
)

// ErrBeatNotFound is returned when a beat cannot be found by ID.
var ErrBeatNotFound = errors.New("beat not found")

// ErrStaleUpdate is returned by Update when the stored status is no longer
// the one the caller read.
var ErrStaleUpdate = errors.New("beat changed since it was read")

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	ProducerID string
	Genre      string
	Status     Status
	Limit      int
	Offset     int
}

// Repository defines the interface for beat persistence.
type Repository interface {
	// Save persists a beat. If the beat already exists, it is updated.
	Save(ctx context.Context, b *Beat) error

	// Update overwrites an existing beat only while its stored status is still
	// from. Returns ErrBeatNotFound if the beat is gone and ErrStaleUpdate if
	// its status changed. It never inserts.
	Update(ctx context.Context, b *Beat, from Status) error

	// FindByID retrieves a beat by its unique identifier.
	// Returns ErrBeatNotFound if the beat does not exist.
	FindByID(ctx context.Context, id string) (*Beat, error)

	// List returns beats matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*Beat, error)

	// Delete removes a beat.
	// Returns ErrBeatNotFound if the beat does not exist.
	Delete(ctx context.Context, id string) error
}
