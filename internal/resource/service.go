package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"madrasah/internal/optimistic"
	"madrasah/internal/validation"
)

// Storage keeps uploaded files.
type Storage interface {
	Save(ctx context.Context, filename string, data []byte) (url, storageID string, err error)
	Destroy(ctx context.Context, storageID string) error
}

// Service manages the resource library. Every change bumps the record's
// version; a change carrying an expected version fails with
// ErrVersionConflict when the record has moved on.
type Service struct {
	repo    Repository
	storage Storage
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewService creates a service. A nil storage disables uploads.
func NewService(repo Repository, storage Storage, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		storage: storage,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Create registers a resource at an existing URL.
func (s *Service) Create(ctx context.Context, in CreateInput, uploadedBy string) (Record, error) {
	if err := validation.Struct(in); err != nil {
		return Record{}, err
	}
	return s.create(ctx, in, "", uploadedBy)
}

func (s *Service) create(ctx context.Context, in CreateInput, storageID, uploadedBy string) (Record, error) {
	id := in.ID
	if id == "" {
		id = s.newID()
	}
	now := s.now()
	rec := Record{
		ID:         id,
		Title:      in.Title,
		Type:       in.Type,
		FileURL:    in.FileURL,
		StorageID:  storageID,
		IsPublic:   in.IsPublic,
		ClassID:    in.ClassID,
		Version:    1,
		UploadedBy: uploadedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("create resource: %w", err)
	}
	s.log.Info("resource created",
		zap.String("id", rec.ID),
		zap.String("type", string(rec.Type)),
		zap.String("class_id", rec.ClassID),
		zap.String("uploaded_by", uploadedBy),
	)
	return rec, nil
}

// Upload stores the file and registers it. The stored file is removed
// again when registration fails.
func (s *Service) Upload(ctx context.Context, in UploadInput, uploadedBy string) (Record, error) {
	if err := validation.Struct(in); err != nil {
		return Record{}, err
	}
	if len(in.Data) > MaxUploadBytes {
		return Record{}, optimistic.Errorf(optimistic.KindValidation, "file is larger than %d MB", MaxUploadBytes>>20)
	}
	if s.storage == nil {
		return Record{}, ErrNoStorage
	}
	url, storageID, err := s.storage.Save(ctx, in.Filename, in.Data)
	if err != nil {
		return Record{}, optimistic.Wrap(optimistic.KindTransport, fmt.Errorf("store file: %w", err))
	}
	rec, err := s.create(ctx, CreateInput{
		Title:    in.Title,
		Type:     TypeFor(in.Filename),
		FileURL:  url,
		IsPublic: in.IsPublic,
		ClassID:  in.ClassID,
	}, storageID, uploadedBy)
	if err != nil {
		s.destroy(ctx, storageID)
		return Record{}, err
	}
	return rec, nil
}

// TogglePublic sets the record's visibility.
func (s *Service) TogglePublic(ctx context.Context, in TogglePublicInput) (Record, error) {
	if err := validation.Struct(in); err != nil {
		return Record{}, err
	}
	return s.update(ctx, in.ID, in.ExpectedVersion, func(rec *Record) { rec.IsPublic = in.IsPublic })
}

// Rename changes the record's title.
func (s *Service) Rename(ctx context.Context, in RenameInput) (Record, error) {
	if err := validation.Struct(in); err != nil {
		return Record{}, err
	}
	return s.update(ctx, in.ID, in.ExpectedVersion, func(rec *Record) { rec.Title = in.Title })
}

func (s *Service) update(ctx context.Context, id string, expected int, apply func(*Record)) (Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if expected != 0 && rec.Version != expected {
		return Record{}, ErrVersionConflict
	}
	prev := rec.Version
	apply(&rec)
	rec.Version++
	rec.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, rec, prev); err != nil {
		return Record{}, fmt.Errorf("update resource: %w", err)
	}
	s.log.Info("resource updated", zap.String("id", rec.ID), zap.Int("version", rec.Version))
	return rec, nil
}

// Delete removes the record and its stored file.
func (s *Service) Delete(ctx context.Context, in DeleteInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	rec, err := s.repo.Get(ctx, in.ID)
	if err != nil {
		return err
	}
	if in.ExpectedVersion != 0 && rec.Version != in.ExpectedVersion {
		return ErrVersionConflict
	}
	if err := s.repo.Delete(ctx, rec.ID, rec.Version); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	s.destroy(ctx, rec.StorageID)
	s.log.Info("resource deleted", zap.String("id", rec.ID))
	return nil
}

// destroy removes a stored file; failures only leave an orphan behind.
func (s *Service) destroy(ctx context.Context, storageID string) {
	if storageID == "" || s.storage == nil {
		return
	}
	if err := s.storage.Destroy(ctx, storageID); err != nil {
		s.log.Warn("stored file not removed", zap.String("storage_id", storageID), zap.Error(err))
	}
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.repo.Get(ctx, id)
}

// List returns the records matching f, oldest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Record, error) {
	return s.repo.List(ctx, f)
}
