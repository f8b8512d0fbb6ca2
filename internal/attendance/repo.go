package attendance

import (
	"context"
	"sort"
	"sync"
)

// Repository persists attendance records.
type Repository interface {
	// Upsert stores recs, replacing any record with the same key, and
	// returns them as stored.
	Upsert(ctx context.Context, recs []Record) ([]Record, error)
	ListBySchedule(ctx context.Context, scheduleID string) ([]Record, error)
}

// MemoryRepository keeps records in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[Key]Record
	seq     map[Key]int
	next    int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[Key]Record), seq: make(map[Key]int)}
}

func (r *MemoryRepository) Upsert(_ context.Context, recs []Record) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		k := rec.Key()
		if _, ok := r.seq[k]; !ok {
			r.next++
			r.seq[k] = r.next
		}
		r.records[k] = rec
		out = append(out, rec)
	}
	return out, nil
}

// ListBySchedule returns records in first-marked order.
func (r *MemoryRepository) ListBySchedule(_ context.Context, scheduleID string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for k, rec := range r.records {
		if k.ScheduleID == scheduleID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].Key()] < r.seq[out[j].Key()] })
	return out, nil
}
