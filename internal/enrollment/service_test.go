package enrollment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madrasah/internal/optimistic"
)

func TestEnrollStartsPending(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)

	out, err := svc.Enroll(context.Background(), EnrollInput{
		ClassID:    "tahfidz-a",
		StudentIDs: []string{"s1", "s2", "s1"},
		Type:       TypeRegular,
	}, "admin-1")
	require.NoError(t, err)

	require.Len(t, out, 2)
	for _, c := range out {
		assert.Equal(t, StatusPending, c.Status)
		assert.Equal(t, "admin-1", c.RequestedBy)
	}
}

func TestEnrollKeepsOpenEnrollments(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()
	_, err := svc.Enroll(ctx, EnrollInput{ClassID: "c1", StudentIDs: []string{"s1"}, Type: TypeRegular}, "")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, DecisionInput{StudentID: "s1", ClassID: "c1"}, "admin")
	require.NoError(t, err)

	out, err := svc.Enroll(ctx, EnrollInput{ClassID: "c1", StudentIDs: []string{"s1"}, Type: TypeTrial}, "")
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, StatusActive, out[0].Status)
	assert.Equal(t, TypeRegular, out[0].Type)
}

func TestEnrollReopensClosedEnrollment(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()
	_, err := svc.Enroll(ctx, EnrollInput{ClassID: "c1", StudentIDs: []string{"s1"}, Type: TypeTrial}, "")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, DecisionInput{StudentID: "s1", ClassID: "c1"}, "admin")
	require.NoError(t, err)

	out, err := svc.Enroll(ctx, EnrollInput{ClassID: "c1", StudentIDs: []string{"s1"}, Type: TypeTransfer}, "")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, out[0].Status)
	assert.Equal(t, TypeTransfer, out[0].Type)
}

func TestDecisionTransitions(t *testing.T) {
	tests := []struct {
		name    string
		steps   []string
		want    Status
		wantErr optimistic.ErrorKind
	}{
		{name: "approve pending", steps: []string{ActionApprove}, want: StatusActive},
		{name: "reject pending", steps: []string{ActionReject}, want: StatusRejected},
		{name: "withdraw active", steps: []string{ActionApprove, ActionWithdraw}, want: StatusWithdrawn},
		{name: "approve twice", steps: []string{ActionApprove, ActionApprove}, wantErr: optimistic.KindBusiness},
		{name: "reject active", steps: []string{ActionApprove, ActionReject}, wantErr: optimistic.KindBusiness},
		{name: "approve withdrawn", steps: []string{ActionWithdraw, ActionApprove}, wantErr: optimistic.KindBusiness},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(NewMemoryRepository(), nil)
			ctx := context.Background()
			_, err := svc.Enroll(ctx, EnrollInput{ClassID: "c1", StudentIDs: []string{"s1"}, Type: TypeRegular}, "")
			require.NoError(t, err)

			in := DecisionInput{StudentID: "s1", ClassID: "c1"}
			var c Candidate
			for _, step := range tt.steps {
				c, err = svc.decide(ctx, step, in, "admin")
			}
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, optimistic.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Status)
			assert.Equal(t, "admin", c.DecidedBy)
		})
	}
}

func TestDecideUnknownStudent(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)

	_, err := svc.Approve(context.Background(), DecisionInput{StudentID: "ghost", ClassID: "c1"}, "admin")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, optimistic.KindNotFound, optimistic.KindOf(err))
}

func TestEnrollValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)

	_, err := svc.Enroll(context.Background(), EnrollInput{ClassID: "c1", StudentIDs: []string{"s1"}, Type: "GUEST"}, "")

	assert.Equal(t, optimistic.KindValidation, optimistic.KindOf(err))
}
