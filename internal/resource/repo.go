package resource

import (
	"context"
	"sort"
	"sync"
)

// Repository persists resource records.
type Repository interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// Update stores rec if the stored version is still prev.
	Update(ctx context.Context, rec Record, prev int) error
	// Delete removes the record if the stored version is still prev.
	Delete(ctx context.Context, id string, prev int) error
	// List returns matching records, oldest first.
	List(ctx context.Context, f ListFilter) ([]Record, error)
}

// MemoryRepository keeps resources in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	recs map[string]Record
	seq  map[string]int
	next int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{recs: make(map[string]Record), seq: make(map[string]int)}
}

func (r *MemoryRepository) Create(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[rec.ID]; ok {
		return ErrExists
	}
	r.next++
	r.seq[rec.ID] = r.next
	r.recs[rec.ID] = rec
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) Update(_ context.Context, rec Record, prev int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.recs[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != prev {
		return ErrVersionConflict
	}
	r.recs[rec.ID] = rec
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string, prev int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.recs[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != prev {
		return ErrVersionConflict
	}
	delete(r.recs, id)
	delete(r.seq, id)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, f ListFilter) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.recs {
		if f.ClassID != "" && rec.ClassID != f.ClassID {
			continue
		}
		if f.PublicOnly && !rec.IsPublic {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out, nil
}
