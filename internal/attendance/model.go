package attendance

import "time"

// Entity names attendance in routes, metrics and dispatch.
const Entity = "attendance"

// Remote actions accepted by the attendance endpoint.
const (
	ActionMark     = "mark"
	ActionBulkMark = "bulk_mark"
)

// Status is a student's attendance for one scheduled session.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusLate    Status = "LATE"
	StatusAbsent  Status = "ABSENT"
	StatusExcused Status = "EXCUSED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent, StatusExcused:
		return true
	}
	return false
}

// Arrived reports whether the status implies the student showed up.
func (s Status) Arrived() bool { return s == StatusPresent || s == StatusLate }

// Key identifies a record: one per student per schedule.
type Key struct {
	StudentID  string
	ScheduleID string
}

// Record is a student's attendance for a schedule.
type Record struct {
	StudentID   string     `json:"student_id"`
	ScheduleID  string     `json:"schedule_id"`
	Status      Status     `json:"status"`
	ArrivalTime *time.Time `json:"arrival_time,omitempty"`
	MarkedBy    string     `json:"marked_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Key returns the record's identity.
func (r Record) Key() Key { return Key{StudentID: r.StudentID, ScheduleID: r.ScheduleID} }

// MarkInput is the payload of ActionMark.
type MarkInput struct {
	StudentID   string     `json:"student_id" validate:"required"`
	ScheduleID  string     `json:"schedule_id" validate:"required"`
	Status      Status     `json:"status" validate:"required,oneof=PRESENT LATE ABSENT EXCUSED"`
	ArrivalTime *time.Time `json:"arrival_time,omitempty"`
}

// BulkMarkInput is the payload of ActionBulkMark.
type BulkMarkInput struct {
	ScheduleID string   `json:"schedule_id" validate:"required"`
	StudentIDs []string `json:"student_ids" validate:"min=1,dive,required"`
	Status     Status   `json:"status" validate:"required,oneof=PRESENT LATE ABSENT EXCUSED"`
}

// Summary counts records per status for a schedule.
type Summary struct {
	ScheduleID string `json:"schedule_id"`
	Present    int    `json:"present"`
	Late       int    `json:"late"`
	Absent     int    `json:"absent"`
	Excused    int    `json:"excused"`
	Total      int    `json:"total"`
}

// Summarize counts recs by status.
func Summarize(scheduleID string, recs []Record) Summary {
	s := Summary{ScheduleID: scheduleID}
	for _, r := range recs {
		switch r.Status {
		case StatusPresent:
			s.Present++
		case StatusLate:
			s.Late++
		case StatusAbsent:
			s.Absent++
		case StatusExcused:
			s.Excused++
		}
		s.Total++
	}
	return s
}

// arrival returns the arrival time to store for status: kept or defaulted
// to now for arrivals, cleared otherwise.
func arrival(status Status, given *time.Time, now time.Time) *time.Time {
	if !status.Arrived() {
		return nil
	}
	if given != nil {
		t := given.UTC()
		return &t
	}
	return &now
}

// uniq drops repeated and empty ids, keeping the first occurrence.
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
