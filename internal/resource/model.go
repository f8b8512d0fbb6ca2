package resource

import (
	"path/filepath"
	"strings"
	"time"

	"madrasah/internal/optimistic"
)

// Entity names resources in routes, metrics and dispatch.
const Entity = "resources"

// Remote actions accepted by the resources endpoint.
const (
	ActionCreate       = "create"
	ActionTogglePublic = "toggle_public"
	ActionRename       = "rename"
	ActionDelete       = "delete"
)

// Type is the kind of material a resource points at.
type Type string

const (
	TypePDF      Type = "PDF"
	TypeVideo    Type = "VIDEO"
	TypeAudio    Type = "AUDIO"
	TypeLink     Type = "LINK"
	TypeDocument Type = "DOCUMENT"
	TypeImage    Type = "IMAGE"
)

// MaxUploadBytes caps a single uploaded file.
const MaxUploadBytes = 25 << 20

var (
	ErrNotFound        = optimistic.NewError(optimistic.KindNotFound, "resource not found")
	ErrExists          = optimistic.NewError(optimistic.KindConflict, "resource already exists")
	ErrVersionConflict = optimistic.NewError(optimistic.KindConflict, "resource was changed by someone else")
	ErrNoStorage       = optimistic.NewError(optimistic.KindBusiness, "file storage is not configured")
)

// Record is an entry of the resource library.
type Record struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Type       Type      `json:"type"`
	FileURL    string    `json:"file_url"`
	StorageID  string    `json:"storage_id,omitempty"`
	IsPublic   bool      `json:"is_public"`
	ClassID    string    `json:"class_id,omitempty"`
	Version    int       `json:"version"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func recordKey(r Record) string { return r.ID }

// CreateInput is the payload of ActionCreate. ID may be chosen by the
// caller so the record can be shown before the server answers.
type CreateInput struct {
	ID       string `json:"id,omitempty" validate:"omitempty,uuid"`
	Title    string `json:"title" validate:"required,max=200"`
	Type     Type   `json:"type" validate:"required,oneof=PDF VIDEO AUDIO LINK DOCUMENT IMAGE"`
	FileURL  string `json:"file_url" validate:"required,url"`
	IsPublic bool   `json:"is_public"`
	ClassID  string `json:"class_id,omitempty"`
}

// UploadInput describes a file to store and register.
type UploadInput struct {
	Title    string `validate:"required,max=200"`
	Filename string `validate:"required"`
	ClassID  string
	IsPublic bool
	Data     []byte `validate:"min=1"`
}

// TogglePublicInput is the payload of ActionTogglePublic. It carries the
// wanted visibility, so replaying it cannot flip the flag back.
type TogglePublicInput struct {
	ID              string `json:"id" validate:"required"`
	IsPublic        bool   `json:"is_public"`
	ExpectedVersion int    `json:"expected_version,omitempty" validate:"min=0"`
}

// RenameInput is the payload of ActionRename.
type RenameInput struct {
	ID              string `json:"id" validate:"required"`
	Title           string `json:"title" validate:"required,max=200"`
	ExpectedVersion int    `json:"expected_version,omitempty" validate:"min=0"`
}

// DeleteInput is the payload of ActionDelete.
type DeleteInput struct {
	ID              string `json:"id" validate:"required"`
	ExpectedVersion int    `json:"expected_version,omitempty" validate:"min=0"`
}

// ListFilter narrows List. Empty ClassID lists every class.
type ListFilter struct {
	ClassID    string
	PublicOnly bool
}

// TypeFor guesses the resource type from a file name.
func TypeFor(filename string) Type {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return TypePDF
	case ".mp4", ".mov", ".webm", ".mkv":
		return TypeVideo
	case ".mp3", ".wav", ".m4a", ".ogg":
		return TypeAudio
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return TypeImage
	}
	return TypeDocument
}
