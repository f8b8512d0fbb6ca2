package attendance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"madrasah/internal/validation"
)

// Service records attendance. Marking the same student twice for a schedule
// updates the existing record.
type Service struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Mark records one student's status.
func (s *Service) Mark(ctx context.Context, in MarkInput, markedBy string) (Record, error) {
	if err := validation.Struct(in); err != nil {
		return Record{}, err
	}
	now := s.now()
	rec := Record{
		StudentID:   in.StudentID,
		ScheduleID:  in.ScheduleID,
		Status:      in.Status,
		ArrivalTime: arrival(in.Status, in.ArrivalTime, now),
		MarkedBy:    markedBy,
		UpdatedAt:   now,
	}
	out, err := s.repo.Upsert(ctx, []Record{rec})
	if err != nil {
		return Record{}, fmt.Errorf("mark attendance: %w", err)
	}
	s.log.Info("attendance marked",
		zap.String("student_id", rec.StudentID),
		zap.String("schedule_id", rec.ScheduleID),
		zap.String("status", string(rec.Status)),
		zap.String("marked_by", markedBy),
	)
	return out[0], nil
}

// BulkMark records the same status for every listed student, once each.
func (s *Service) BulkMark(ctx context.Context, in BulkMarkInput, markedBy string) ([]Record, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	now := s.now()
	ids := uniq(in.StudentIDs)
	recs := make([]Record, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, Record{
			StudentID:   id,
			ScheduleID:  in.ScheduleID,
			Status:      in.Status,
			ArrivalTime: arrival(in.Status, nil, now),
			MarkedBy:    markedBy,
			UpdatedAt:   now,
		})
	}
	out, err := s.repo.Upsert(ctx, recs)
	if err != nil {
		return nil, fmt.Errorf("bulk mark attendance: %w", err)
	}
	s.log.Info("attendance bulk marked",
		zap.String("schedule_id", in.ScheduleID),
		zap.String("status", string(in.Status)),
		zap.Int("count", len(out)),
	)
	return out, nil
}

// List returns the records of a schedule.
func (s *Service) List(ctx context.Context, scheduleID string) ([]Record, error) {
	return s.repo.ListBySchedule(ctx, scheduleID)
}

// Summary counts a schedule's records by status.
func (s *Service) Summary(ctx context.Context, scheduleID string) (Summary, error) {
	recs, err := s.repo.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(scheduleID, recs), nil
}
