package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"madrasah/internal/queue"
	"madrasah/internal/validation"
)

// Service stores notifications and queues them for delivery.
type Service struct {
	repo  Repository
	queue queue.Queue
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// NewService creates a service. A nil queue disables delivery.
func NewService(repo Repository, q queue.Queue, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:  repo,
		queue: q,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Create stores an unread item and queues it for push delivery. A failed
// publish is logged; the item stays visible on the next fetch.
func (s *Service) Create(ctx context.Context, in CreateInput) (Item, error) {
	if err := validation.Struct(in); err != nil {
		return Item{}, err
	}
	it := Item{
		ID:        s.newID(),
		UserID:    in.UserID,
		Title:     in.Title,
		Message:   in.Message,
		Type:      in.Type,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, it); err != nil {
		return Item{}, fmt.Errorf("create notification: %w", err)
	}
	if s.queue != nil {
		body, err := json.Marshal(it)
		if err == nil {
			err = s.queue.Publish(ctx, queue.Message{Type: MessageType, Body: body})
		}
		if err != nil {
			s.log.Warn("notification publish failed", zap.String("id", it.ID), zap.Error(err))
		}
	}
	return it, nil
}

// MarkRead marks one of the user's items as read. Marking a read item
// again is a no-op.
func (s *Service) MarkRead(ctx context.Context, userID string, in MarkReadInput) (Item, error) {
	if err := validation.Struct(in); err != nil {
		return Item{}, err
	}
	it, err := s.repo.Get(ctx, in.ID)
	if err != nil {
		return Item{}, err
	}
	if it.UserID != userID {
		return Item{}, ErrForbidden
	}
	if it.IsRead {
		return it, nil
	}
	now := s.now()
	if _, err := s.repo.MarkRead(ctx, userID, []string{in.ID}, now); err != nil {
		return Item{}, fmt.Errorf("mark notification read: %w", err)
	}
	it.IsRead, it.ReadAt = true, &now
	return it, nil
}

// MarkAllRead marks the user's unread items as read and returns how many
// changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string, in MarkAllReadInput) (int, error) {
	if err := validation.Struct(in); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkRead(ctx, userID, in.IDs, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	s.log.Info("notifications marked read", zap.String("user_id", userID), zap.Int("count", n))
	return n, nil
}

// List returns up to limit of the user's items, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Item, error) {
	return s.repo.List(ctx, userID, unreadOnly, limit)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// PurgeRead deletes read items older than retention.
func (s *Service) PurgeRead(ctx context.Context, retention time.Duration) (int, error) {
	n, err := s.repo.PurgeRead(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	s.log.Info("read notifications purged", zap.Int("count", n), zap.Duration("retention", retention))
	return n, nil
}
