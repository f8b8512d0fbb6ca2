package notification

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultListLimit is how many items List returns when no positive limit
// is given.
const DefaultListLimit = 100

// Repository persists notifications.
type Repository interface {
	Create(ctx context.Context, it Item) error
	Get(ctx context.Context, id string) (Item, error)
	// MarkRead marks the user's unread items as read, limited to ids when
	// any are given, and returns how many changed.
	MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error)
	// List returns up to limit of the user's items, newest first. A limit
	// of zero or less means DefaultListLimit.
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Item, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	// PurgeRead deletes read items created before the cutoff.
	PurgeRead(ctx context.Context, before time.Time) (int, error)
}

// MemoryRepository keeps notifications in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Item
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Item)}
}

func (r *MemoryRepository) Create(_ context.Context, it Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[it.ID] = it
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (r *MemoryRepository) MarkRead(_ context.Context, userID string, ids []string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	only := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		only[id] = struct{}{}
	}
	n := 0
	for id, it := range r.items {
		if it.UserID != userID || it.IsRead {
			continue
		}
		if _, ok := only[id]; len(ids) > 0 && !ok {
			continue
		}
		readAt := at
		it.IsRead, it.ReadAt = true, &readAt
		r.items[id] = it
		n++
	}
	return n, nil
}

func (r *MemoryRepository) List(_ context.Context, userID string, unreadOnly bool, limit int) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Item
	for _, it := range r.items {
		if it.UserID != userID || (unreadOnly && it.IsRead) {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) UnreadCount(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, it := range r.items {
		if it.UserID == userID && !it.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) PurgeRead(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, it := range r.items {
		if it.IsRead && it.CreatedAt.Before(before) {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}
