// Package feedback holds the toasts produced by mutations until they
// expire.
package feedback

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"madrasah/internal/optimistic"
)

// Tray collects toasts and drops them once their TTL has passed. It
// implements optimistic.Notifier.
type Tray struct {
	ttl      time.Duration
	capacity int
	log      *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	toasts []optimistic.Toast
	subs   []func(optimistic.Toast)
}

var _ optimistic.Notifier = (*Tray)(nil)

// NewTray creates a tray keeping at most capacity toasts for ttl each.
func NewTray(ttl time.Duration, capacity int, log *zap.Logger) *Tray {
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	if capacity <= 0 {
		capacity = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tray{ttl: ttl, capacity: capacity, log: log, now: time.Now}
}

// Subscribe registers fn to be called with every new toast.
func (t *Tray) Subscribe(fn func(optimistic.Toast)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

// Notify adds a toast, evicting the oldest one when the tray is full.
func (t *Tray) Notify(toast optimistic.Toast) {
	if toast.At.IsZero() {
		toast.At = t.now()
	}
	t.log.Info("toast",
		zap.String("level", string(toast.Level)),
		zap.String("message", toast.Message),
		zap.String("description", toast.Description),
		zap.String("kind", string(toast.Kind)),
	)

	t.mu.Lock()
	t.prune(t.now())
	t.toasts = append(t.toasts, toast)
	if over := len(t.toasts) - t.capacity; over > 0 {
		t.toasts = append(t.toasts[:0], t.toasts[over:]...)
	}
	subs := append([]func(optimistic.Toast){}, t.subs...)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(toast)
	}
}

// Active returns the toasts that have not expired yet, oldest first.
func (t *Tray) Active() []optimistic.Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(t.now())
	return append([]optimistic.Toast(nil), t.toasts...)
}

// Clear dismisses every toast.
func (t *Tray) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toasts = nil
}

func (t *Tray) prune(now time.Time) {
	kept := t.toasts[:0]
	for _, toast := range t.toasts {
		if now.Sub(toast.At) < t.ttl {
			kept = append(kept, toast)
		}
	}
	t.toasts = kept
}
