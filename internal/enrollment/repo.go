package enrollment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists enrollments.
type Repository interface {
	// Enroll stores each candidate unless the student already holds an open
	// enrollment in the class, and returns the candidates as stored.
	Enroll(ctx context.Context, cands []Candidate) ([]Candidate, error)
	Get(ctx context.Context, key Key) (Candidate, error)
	// SetStatus moves the enrollment from one status to another. It fails
	// with ErrTransition when the stored status is no longer from.
	SetStatus(ctx context.Context, key Key, from, to Status, by string, at time.Time) (Candidate, error)
	ListByClass(ctx context.Context, classID string) ([]Candidate, error)
}

// MemoryRepository keeps enrollments in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	cands map[Key]Candidate
	seq   map[Key]int
	next  int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{cands: make(map[Key]Candidate), seq: make(map[Key]int)}
}

func (r *MemoryRepository) Enroll(_ context.Context, cands []Candidate) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		k := c.Key()
		if cur, ok := r.cands[k]; ok && cur.Status.Open() {
			out = append(out, cur)
			continue
		}
		if _, ok := r.seq[k]; !ok {
			r.next++
			r.seq[k] = r.next
		}
		r.cands[k] = c
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, key Key) (Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cands[key]
	if !ok {
		return Candidate{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, key Key, from, to Status, by string, at time.Time) (Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cands[key]
	if !ok {
		return Candidate{}, ErrNotFound
	}
	if c.Status != from {
		return Candidate{}, ErrTransition
	}
	c.Status, c.DecidedBy, c.UpdatedAt = to, by, at
	r.cands[key] = c
	return c, nil
}

// ListByClass returns a class's enrollments in the order they were first
// requested.
func (r *MemoryRepository) ListByClass(_ context.Context, classID string) ([]Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Candidate
	for k, c := range r.cands {
		if k.ClassID == classID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].Key()] < r.seq[out[j].Key()] })
	return out, nil
}
