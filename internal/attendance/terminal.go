package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"madrasah/internal/optimistic"
	"madrasah/internal/validation"
)

// Terminal is the attendance-taking screen for one schedule: a mirror of
// the schedule's records, updated ahead of the server.
type Terminal struct {
	scheduleID string
	mut        *optimistic.Mutator[Key, Record]
	now        func() time.Time
}

// NewTerminal mirrors records of scheduleID and sends marks through d.
func NewTerminal(scheduleID string, records []Record, d optimistic.Dispatcher, opts ...optimistic.Option) *Terminal {
	mirror := optimistic.NewMirror(records, Record.Key)
	return &Terminal{
		scheduleID: scheduleID,
		mut:        optimistic.NewMutator(Entity, mirror, d, opts...),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Records returns the mirrored records.
func (t *Terminal) Records() []Record { return t.mut.Mirror().Items() }

// Record returns the mirrored record of a student.
func (t *Terminal) Record(studentID string) (Record, bool) {
	return t.mut.Mirror().Get(Key{StudentID: studentID, ScheduleID: t.scheduleID})
}

// Summary counts the mirrored records by status.
func (t *Terminal) Summary() Summary { return Summarize(t.scheduleID, t.Records()) }

// Mark sets a student's status.
func (t *Terminal) Mark(ctx context.Context, studentID string, status Status) optimistic.Result {
	in := MarkInput{StudentID: studentID, ScheduleID: t.scheduleID, Status: status}
	now := t.now()
	rec := Record{
		StudentID:   studentID,
		ScheduleID:  t.scheduleID,
		Status:      status,
		ArrivalTime: arrival(status, nil, now),
		UpdatedAt:   now,
	}
	mut := optimistic.Mutation[Key, Record]{
		Action:  ActionMark,
		Data:    in,
		Changes: []optimistic.Change[Key, Record]{t.mut.Put(rec)},
		Success: fmt.Sprintf("Marked %s", strings.ToLower(string(status))),
		Failure: "Failed to mark attendance",
	}
	if err := validation.Struct(in); err != nil {
		return t.mut.Reject(mut, err)
	}
	return t.mut.Apply(ctx, mut)
}

// MarkAll sets the same status for every student of the roster with a
// single remote call. Repeated roster entries are marked once.
func (t *Terminal) MarkAll(ctx context.Context, roster []string, status Status) optimistic.Result {
	ids := uniq(roster)
	in := BulkMarkInput{ScheduleID: t.scheduleID, StudentIDs: ids, Status: status}
	now := t.now()
	mut := optimistic.Mutation[Key, Record]{
		Action:  ActionBulkMark,
		Data:    in,
		Success: fmt.Sprintf("Marked %d students %s", len(ids), strings.ToLower(string(status))),
		Failure: "Failed to mark attendance",
	}
	for _, id := range ids {
		mut.Changes = append(mut.Changes, t.mut.Put(Record{
			StudentID:   id,
			ScheduleID:  t.scheduleID,
			Status:      status,
			ArrivalTime: arrival(status, nil, now),
			UpdatedAt:   now,
		}))
	}
	if err := validation.Struct(in); err != nil {
		return t.mut.Reject(mut, err)
	}
	return t.mut.Apply(ctx, mut)
}
