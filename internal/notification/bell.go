package notification

import (
	"context"
	"time"

	"madrasah/internal/optimistic"
)

// Bell is a user's notification list with read state flipped ahead of the
// server.
type Bell struct {
	userID string
	mut    *optimistic.Mutator[string, Item]
	now    func() time.Time
}

// NewBell mirrors items, newest first, for userID.
func NewBell(userID string, items []Item, d optimistic.Dispatcher, opts ...optimistic.Option) *Bell {
	return &Bell{
		userID: userID,
		mut:    optimistic.NewMutator(Entity, optimistic.NewMirror(items, itemKey), d, opts...),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (b *Bell) Items() []Item { return b.mut.Mirror().Items() }

func (b *Bell) Item(id string) (Item, bool) { return b.mut.Mirror().Get(id) }

// UnreadCount counts the mirrored unread items.
func (b *Bell) UnreadCount() int {
	n := 0
	for _, it := range b.Items() {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// Receive shows a pushed item at the top of the list. Items of other users
// and items already shown are ignored.
func (b *Bell) Receive(it Item) bool {
	if it.UserID != b.userID {
		return false
	}
	if _, ok := b.mut.Mirror().Get(it.ID); ok {
		return false
	}
	b.mut.Mirror().Prepend(it)
	return true
}

// MarkRead flips one item to read.
func (b *Bell) MarkRead(ctx context.Context, id string) optimistic.Result {
	mut := optimistic.Mutation[string, Item]{
		Action:  ActionMarkRead,
		Data:    MarkReadInput{ID: id},
		Success: "Notification marked as read",
		Failure: "Failed to mark notification as read",
	}
	it, ok := b.Item(id)
	if !ok {
		return b.mut.Reject(mut, ErrNotFound)
	}
	if it.IsRead {
		return optimistic.Result{State: optimistic.Committed}
	}
	mut.Changes = []optimistic.Change[string, Item]{b.mut.Put(b.read(it))}
	return b.mut.Apply(ctx, mut)
}

// MarkAllRead flips every unread item with one remote call.
func (b *Bell) MarkAllRead(ctx context.Context) optimistic.Result {
	var (
		ids     []string
		changes []optimistic.Change[string, Item]
	)
	for _, it := range b.Items() {
		if it.IsRead {
			continue
		}
		ids = append(ids, it.ID)
		changes = append(changes, b.mut.Put(b.read(it)))
	}
	if len(ids) == 0 {
		return optimistic.Result{State: optimistic.Committed}
	}
	return b.mut.Apply(ctx, optimistic.Mutation[string, Item]{
		Action:  ActionMarkAllRead,
		Data:    MarkAllReadInput{IDs: ids},
		Changes: changes,
		Success: "All notifications marked as read",
		Failure: "Failed to mark notifications as read",
	})
}

func (b *Bell) read(it Item) Item {
	now := b.now()
	it.IsRead, it.ReadAt = true, &now
	return it
}
