package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madrasah/internal/optimistic"
)

func newTestService() (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil)
	fixed := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc, repo
}

func TestMarkUpdatesExistingRecord(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Mark(ctx, MarkInput{StudentID: "s1", ScheduleID: "fajr-1", Status: StatusAbsent}, "ustadh-1")
	require.NoError(t, err)
	rec, err := svc.Mark(ctx, MarkInput{StudentID: "s1", ScheduleID: "fajr-1", Status: StatusLate}, "ustadh-1")
	require.NoError(t, err)

	assert.Equal(t, StatusLate, rec.Status)
	require.NotNil(t, rec.ArrivalTime)

	recs, err := svc.List(ctx, "fajr-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, StatusLate, recs[0].Status)
}

func TestMarkArrivalTime(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	given := time.Date(2026, 3, 2, 7, 45, 0, 0, time.FixedZone("WIB", 7*3600))

	tests := []struct {
		name    string
		status  Status
		given   *time.Time
		wantNil bool
		want    time.Time
	}{
		{name: "present defaults to now", status: StatusPresent, want: svc.now()},
		{name: "late keeps given time", status: StatusLate, given: &given, want: given.UTC()},
		{name: "absent clears time", status: StatusAbsent, given: &given, wantNil: true},
		{name: "excused clears time", status: StatusExcused, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := svc.Mark(ctx, MarkInput{StudentID: "s1", ScheduleID: "dhuhr", Status: tt.status, ArrivalTime: tt.given}, "")
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, rec.ArrivalTime)
				return
			}
			require.NotNil(t, rec.ArrivalTime)
			assert.True(t, tt.want.Equal(*rec.ArrivalTime))
		})
	}
}

func TestMarkValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Mark(context.Background(), MarkInput{StudentID: "s1", ScheduleID: "x", Status: "SLEEPING"}, "")

	assert.Equal(t, optimistic.KindValidation, optimistic.KindOf(err))
}

func TestBulkMarkMarksEachStudentOnce(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	recs, err := svc.BulkMark(ctx, BulkMarkInput{
		ScheduleID: "asr-3",
		StudentIDs: []string{"s1", "s2", "s1", "s3"},
		Status:     StatusPresent,
	}, "ustadhah-2")
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	sum, err := svc.Summary(ctx, "asr-3")
	require.NoError(t, err)
	assert.Equal(t, Summary{ScheduleID: "asr-3", Present: 3, Total: 3}, sum)
}

func TestBulkMarkRequiresStudents(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.BulkMark(context.Background(), BulkMarkInput{ScheduleID: "asr-3", Status: StatusPresent}, "")

	assert.Equal(t, optimistic.KindValidation, optimistic.KindOf(err))
}

func TestListKeepsFirstMarkedOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for _, id := range []string{"s3", "s1", "s2"} {
		_, err := svc.Mark(ctx, MarkInput{StudentID: id, ScheduleID: "maghrib", Status: StatusPresent}, "")
		require.NoError(t, err)
	}
	_, err := svc.Mark(ctx, MarkInput{StudentID: "s3", ScheduleID: "maghrib", Status: StatusExcused}, "")
	require.NoError(t, err)

	recs, err := svc.List(ctx, "maghrib")
	require.NoError(t, err)
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.StudentID)
	}
	assert.Equal(t, []string{"s3", "s1", "s2"}, ids)
}
