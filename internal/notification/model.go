package notification

import (
	"time"

	"madrasah/internal/optimistic"
)

// Entity names notifications in routes, metrics and dispatch.
const Entity = "notifications"

// Remote actions accepted by the notifications endpoint.
const (
	ActionMarkRead    = "mark_read"
	ActionMarkAllRead = "mark_all_read"
)

// MessageType tags queue messages carrying a new item.
const MessageType = "notification"

// Type is the visual category of a notification.
type Type string

const (
	TypeInfo         Type = "INFO"
	TypeSuccess      Type = "SUCCESS"
	TypeWarning      Type = "WARNING"
	TypeError        Type = "ERROR"
	TypeAnnouncement Type = "ANNOUNCEMENT"
)

var (
	ErrNotFound  = optimistic.NewError(optimistic.KindNotFound, "notification not found")
	ErrForbidden = optimistic.NewError(optimistic.KindForbidden, "notification belongs to another user")
)

// Item is one notification shown in a user's bell.
type Item struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      Type       `json:"type"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

func itemKey(it Item) string { return it.ID }

// CreateInput describes a notification to send to one user.
type CreateInput struct {
	UserID  string `json:"user_id" validate:"required"`
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=2000"`
	Type    Type   `json:"type" validate:"required,oneof=INFO SUCCESS WARNING ERROR ANNOUNCEMENT"`
}

// MarkReadInput is the payload of ActionMarkRead.
type MarkReadInput struct {
	ID string `json:"id" validate:"required"`
}

// MarkAllReadInput is the payload of ActionMarkAllRead. With no IDs every
// unread item of the user is marked.
type MarkAllReadInput struct {
	IDs []string `json:"ids,omitempty" validate:"dive,required"`
}

// Push is the frame sent to connected clients when an item is delivered.
type Push struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}
