package enrollment

import (
	"context"
	"fmt"
	"time"

	"madrasah/internal/optimistic"
	"madrasah/internal/validation"
)

// Terminal is the enrollment screen of one class: the class's candidates
// plus the pool of students picked for the next batch.
type Terminal struct {
	classID string
	pool    Pool
	mut     *optimistic.Mutator[Key, Candidate]
	now     func() time.Time
}

func NewTerminal(classID string, cands []Candidate, d optimistic.Dispatcher, opts ...optimistic.Option) *Terminal {
	return &Terminal{
		classID: classID,
		mut:     optimistic.NewMutator(Entity, optimistic.NewMirror(cands, Candidate.Key), d, opts...),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Pool returns the selection for the next SubmitPool.
func (t *Terminal) Pool() *Pool { return &t.pool }

// Candidates returns the mirrored enrollments.
func (t *Terminal) Candidates() []Candidate { return t.mut.Mirror().Items() }

// Candidate returns the mirrored enrollment of a student.
func (t *Terminal) Candidate(studentID string) (Candidate, bool) {
	return t.mut.Mirror().Get(Key{StudentID: studentID, ClassID: t.classID})
}

// SubmitPool enrolls every pooled student with one remote call. Students
// already holding an open enrollment are left out. The submitted students
// leave the pool only once the server accepts the batch.
func (t *Terminal) SubmitPool(ctx context.Context, typ Type) optimistic.Result {
	var ids []string
	for _, id := range t.pool.IDs() {
		if c, ok := t.Candidate(id); ok && c.Status.Open() {
			continue
		}
		ids = append(ids, id)
	}
	in := EnrollInput{ClassID: t.classID, StudentIDs: ids, Type: typ}
	now := t.now()
	mut := optimistic.Mutation[Key, Candidate]{
		Action:  ActionEnroll,
		Data:    in,
		Success: fmt.Sprintf("Enrolled %d students", len(ids)),
		Failure: "Failed to enroll students",
	}
	for _, id := range ids {
		mut.Changes = append(mut.Changes, t.mut.Put(Candidate{
			StudentID: id,
			ClassID:   t.classID,
			Type:      typ,
			Status:    StatusPending,
			UpdatedAt: now,
		}))
	}
	if err := validation.Struct(in); err != nil {
		return t.mut.Reject(mut, err)
	}
	res := t.mut.Apply(ctx, mut)
	if res.OK() {
		t.pool.drop(ids)
	}
	return res
}

// Approve activates a student's pending enrollment.
func (t *Terminal) Approve(ctx context.Context, studentID string) optimistic.Result {
	return t.decide(ctx, ActionApprove, studentID, "Enrollment approved", "Failed to approve enrollment")
}

// Reject turns down a student's pending enrollment.
func (t *Terminal) Reject(ctx context.Context, studentID string) optimistic.Result {
	return t.decide(ctx, ActionReject, studentID, "Enrollment rejected", "Failed to reject enrollment")
}

// Withdraw closes a student's enrollment.
func (t *Terminal) Withdraw(ctx context.Context, studentID string) optimistic.Result {
	return t.decide(ctx, ActionWithdraw, studentID, "Student withdrawn", "Failed to withdraw student")
}

func (t *Terminal) decide(ctx context.Context, action, studentID, success, failure string) optimistic.Result {
	mut := optimistic.Mutation[Key, Candidate]{
		Action:  action,
		Data:    DecisionInput{StudentID: studentID, ClassID: t.classID},
		Success: success,
		Failure: failure,
	}
	cur, ok := t.Candidate(studentID)
	if !ok {
		return t.mut.Reject(mut, ErrNotFound)
	}
	to, err := next(action, cur.Status)
	if err != nil {
		return t.mut.Reject(mut, err)
	}
	cur.Status, cur.UpdatedAt = to, t.now()
	mut.Changes = []optimistic.Change[Key, Candidate]{t.mut.Put(cur)}
	return t.mut.Apply(ctx, mut)
}
