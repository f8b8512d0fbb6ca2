package enrollment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"madrasah/internal/validation"
)

// Service handles enrollment requests and decisions.
type Service struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Enroll requests a seat for every listed student. New requests start
// PENDING; students already holding an open enrollment are returned as
// stored.
func (s *Service) Enroll(ctx context.Context, in EnrollInput, requestedBy string) ([]Candidate, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	now := s.now()
	ids := uniq(in.StudentIDs)
	cands := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		cands = append(cands, Candidate{
			StudentID:   id,
			ClassID:     in.ClassID,
			Type:        in.Type,
			Status:      StatusPending,
			RequestedBy: requestedBy,
			UpdatedAt:   now,
		})
	}
	out, err := s.repo.Enroll(ctx, cands)
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	s.log.Info("enrollment requested",
		zap.String("class_id", in.ClassID),
		zap.String("type", string(in.Type)),
		zap.Int("count", len(out)),
		zap.String("requested_by", requestedBy),
	)
	return out, nil
}

// Approve activates a pending enrollment.
func (s *Service) Approve(ctx context.Context, in DecisionInput, by string) (Candidate, error) {
	return s.decide(ctx, ActionApprove, in, by)
}

// Reject turns down a pending enrollment.
func (s *Service) Reject(ctx context.Context, in DecisionInput, by string) (Candidate, error) {
	return s.decide(ctx, ActionReject, in, by)
}

// Withdraw closes a pending or active enrollment.
func (s *Service) Withdraw(ctx context.Context, in DecisionInput, by string) (Candidate, error) {
	return s.decide(ctx, ActionWithdraw, in, by)
}

func (s *Service) decide(ctx context.Context, action string, in DecisionInput, by string) (Candidate, error) {
	if err := validation.Struct(in); err != nil {
		return Candidate{}, err
	}
	key := Key{StudentID: in.StudentID, ClassID: in.ClassID}
	cur, err := s.repo.Get(ctx, key)
	if err != nil {
		return Candidate{}, err
	}
	to, err := next(action, cur.Status)
	if err != nil {
		return Candidate{}, err
	}
	c, err := s.repo.SetStatus(ctx, key, cur.Status, to, by, s.now())
	if err != nil {
		return Candidate{}, fmt.Errorf("%s enrollment: %w", action, err)
	}
	s.log.Info("enrollment decided",
		zap.String("action", action),
		zap.String("student_id", key.StudentID),
		zap.String("class_id", key.ClassID),
		zap.String("status", string(c.Status)),
		zap.String("by", by),
	)
	return c, nil
}

// List returns the enrollments of a class.
func (s *Service) List(ctx context.Context, classID string) ([]Candidate, error) {
	return s.repo.ListByClass(ctx, classID)
}
