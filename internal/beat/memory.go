package beat

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// Suitable for development and testing; use GormRepository in production.
type MemoryRepository struct {
	mu    sync.RWMutex
	beats map[string]*Beat
}

// NewMemoryRepository creates a new in-memory beat repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		beats: make(map[string]*Beat),
	}
}

// Save stores a clone of b.
func (r *MemoryRepository) Save(_ context.Context, b *Beat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beats[b.ID] = b.Clone()
	return nil
}

// Update replaces the stored beat when its status is still from.
func (r *MemoryRepository) Update(_ context.Context, b *Beat, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.beats[b.ID]
	if !ok {
		return ErrBeatNotFound
	}
	if cur.GetStatus() != from {
		return ErrStaleUpdate
	}
	r.beats[b.ID] = b.Clone()
	return nil
}

// FindByID returns a clone of the stored beat.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Beat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.beats[id]
	if !ok {
		return nil, ErrBeatNotFound
	}
	return b.Clone(), nil
}

// List returns clones of matching beats, newest first.
func (r *MemoryRepository) List(_ context.Context, f Filter) ([]*Beat, error) {
	r.mu.RLock()
	result := make([]*Beat, 0, len(r.beats))
	for _, b := range r.beats {
		if matches(b, f) {
			result = append(result, b.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return []*Beat{}, nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result, nil
}

func matches(b *Beat, f Filter) bool {
	if f.ProducerID != "" && b.ProducerID != f.ProducerID {
		return false
	}
	if f.Genre != "" && !strings.EqualFold(b.Genre, f.Genre) {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

// Delete removes a beat from storage.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.beats[id]; !ok {
		return ErrBeatNotFound
	}
	delete(r.beats, id)
	return nil
}
