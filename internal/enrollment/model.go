package enrollment

import (
	"time"

	"madrasah/internal/optimistic"
)

// Entity names enrollment in routes, metrics and dispatch.
const Entity = "enrollment"

// Remote actions accepted by the enrollment endpoint.
const (
	ActionEnroll   = "enroll"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionWithdraw = "withdraw"
)

// Type is how a student joins a class.
type Type string

const (
	TypeRegular  Type = "REGULAR"
	TypeTransfer Type = "TRANSFER"
	TypeTrial    Type = "TRIAL"
)

// Status is the lifecycle position of an enrollment.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusRejected  Status = "REJECTED"
	StatusWithdrawn Status = "WITHDRAWN"
)

// Open reports whether the enrollment still holds a seat in the class.
func (s Status) Open() bool { return s == StatusPending || s == StatusActive }

var (
	ErrNotFound   = optimistic.NewError(optimistic.KindNotFound, "enrollment not found")
	ErrTransition = optimistic.NewError(optimistic.KindBusiness, "enrollment cannot change to that status")
)

// Key identifies a candidate: one per student per class.
type Key struct {
	StudentID string
	ClassID   string
}

// Candidate is a student's enrollment in a class.
type Candidate struct {
	StudentID   string    `json:"student_id"`
	ClassID     string    `json:"class_id"`
	Type        Type      `json:"enrollment_type"`
	Status      Status    `json:"status"`
	RequestedBy string    `json:"requested_by,omitempty"`
	DecidedBy   string    `json:"decided_by,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key returns the candidate's identity.
func (c Candidate) Key() Key { return Key{StudentID: c.StudentID, ClassID: c.ClassID} }

// EnrollInput is the payload of ActionEnroll.
type EnrollInput struct {
	ClassID    string   `json:"class_id" validate:"required"`
	StudentIDs []string `json:"student_ids" validate:"min=1,dive,required"`
	Type       Type     `json:"enrollment_type" validate:"required,oneof=REGULAR TRANSFER TRIAL"`
}

// DecisionInput is the payload of ActionApprove, ActionReject and
// ActionWithdraw.
type DecisionInput struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// transitions lists the statuses each action may leave from.
var transitions = map[string]struct {
	from []Status
	to   Status
}{
	ActionApprove:  {from: []Status{StatusPending}, to: StatusActive},
	ActionReject:   {from: []Status{StatusPending}, to: StatusRejected},
	ActionWithdraw: {from: []Status{StatusPending, StatusActive}, to: StatusWithdrawn},
}

// next returns the status action moves an enrollment in status from to.
func next(action string, from Status) (Status, error) {
	t, ok := transitions[action]
	if !ok {
		return "", optimistic.Errorf(optimistic.KindValidation, "unknown action %q", action)
	}
	for _, s := range t.from {
		if s == from {
			return t.to, nil
		}
	}
	return "", optimistic.Errorf(optimistic.KindBusiness, "cannot %s an enrollment that is %s", action, from)
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
