package leads

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-pipeline/internal/apperr"
	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/internal/model"
)

func TestUpdateStatus_RequestValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tooMany := make([]string, MaxStatusIDs+1)
	for i := range tooMany {
		tooMany[i] = "id"
	}

	tests := []struct {
		name string
		req  StatusRequest
		msg  string
	}{
		{"missing ids", StatusRequest{Status: model.StatusSent}, "ids array is required"},
		{"empty ids", StatusRequest{IDs: []string{}, Status: model.StatusSent}, "ids array is required"},
		{"too many ids", StatusRequest{IDs: tooMany, Status: model.StatusSent}, "Max 500 ids per call"},
		{"missing status", StatusRequest{IDs: []string{"a"}}, "status is required"},
		{"unknown status", StatusRequest{IDs: []string{"a"}, Status: "archived"}, `unknown status "archived"`},
		{"bad sentAt", StatusRequest{IDs: []string{"a"}, Status: model.StatusSent, OutreachSentAt: "yesterday"}, "outreachSentAt must be RFC3339"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateStatus(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
			assert.Equal(t, tt.msg, apperr.MessageOf(err))
		})
	}
}

func TestUpdateStatus_SideEffects(t *testing.T) {
	svc, st, clock := newTestService(t)
	ctx := context.Background()
	saved := seed(t, st, clock, manyLeads(4, model.SourceAngi)...)

	sentAt := "2026-02-27T09:15:00Z"
	res, err := svc.UpdateStatus(ctx, StatusRequest{IDs: []string{saved[0].ID}, Status: model.StatusSent, OutreachSentAt: sentAt})
	require.NoError(t, err)
	assert.Equal(t, &StatusResult{Updated: 1}, res)

	_, err = svc.UpdateStatus(ctx, StatusRequest{IDs: []string{saved[1].ID}, Status: model.StatusSent})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, StatusRequest{IDs: []string{saved[2].ID}, Status: model.StatusBounced})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, StatusRequest{IDs: []string{saved[3].ID}, Status: model.StatusConverted})
	require.NoError(t, err)

	got, err := st.GetLead(ctx, saved[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	require.NotNil(t, got.OutreachSentAt)
	assert.True(t, got.OutreachSentAt.Equal(time.Date(2026, 2, 27, 9, 15, 0, 0, time.UTC)))

	got, err = st.GetLead(ctx, saved[1].ID)
	require.NoError(t, err)
	assert.Nil(t, got.OutreachSentAt)

	got, err = st.GetLead(ctx, saved[2].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBounced, got.Status)
	assert.True(t, got.OutreachBounced)
	assert.Nil(t, got.ConvertedAt)

	got, err = st.GetLead(ctx, saved[3].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConverted, got.Status)
	require.NotNil(t, got.ConvertedAt)
	assert.True(t, got.ConvertedAt.Equal(clock.Now()))
	assert.False(t, got.OutreachBounced)
}

func TestUpdateStatus_TransitionsAreUnrestricted(t *testing.T) {
	svc, st, clock := newTestService(t)
	ctx := context.Background()
	saved := seed(t, st, clock, newLead("a@x.com", model.SourceAngi))

	for _, s := range []model.Status{model.StatusConverted, model.StatusNew, model.StatusSuppressed} {
		res, err := svc.UpdateStatus(ctx, StatusRequest{IDs: []string{saved[0].ID}, Status: s})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Updated)

		got, err := st.GetLead(ctx, saved[0].ID)
		require.NoError(t, err)
		assert.Equal(t, s, got.Status)
	}
}

func TestUpdateStatus_PartialFailure(t *testing.T) {
	m := metrics.New()
	clock := &testClock{t: epoch}
	base := newTestStore(t, clock)
	saved := seed(t, base, clock, manyLeads(3, model.SourceAngi)...)
	fs := &flakyStore{Store: base, updateFails: map[string]bool{saved[1].ID: true}}
	svc := NewService(fs, WithClock(clock.Now), WithMetrics(m))
	ctx := context.Background()

	res, err := svc.UpdateStatus(ctx, StatusRequest{
		IDs:    []string{saved[0].ID, saved[1].ID, "missing-id", saved[2].ID},
		Status: model.StatusBounced,
	})
	require.NoError(t, err)
	assert.Equal(t, &StatusResult{Updated: 2, Errors: 2}, res)

	failed, err := base.GetLead(ctx, saved[1].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, failed.Status)
	assert.False(t, failed.OutreachBounced)

	assert.InDelta(t, 2, testutil.ToFloat64(m.StatusUpdates.WithLabelValues("updated")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.StatusUpdates.WithLabelValues("error")), 0)
}

func TestUpdateStatus_ConcurrentWritesOnFileStore(t *testing.T) {
	clock := &testClock{t: epoch}
	st := newTestStore(t, clock)
	saved, err := st.InsertLeads(context.Background(), manyLeads(300, model.SourceAngi))
	require.NoError(t, err)
	svc := NewService(st, WithClock(clock.Now))

	ids := make([]string, len(saved))
	for i, l := range saved {
		ids[i] = l.ID
	}
	for _, status := range []model.Status{model.StatusConverted, model.StatusSent} {
		res, err := svc.UpdateStatus(context.Background(), StatusRequest{IDs: ids, Status: status})
		require.NoError(t, err)
		assert.Equal(t, &StatusResult{Updated: 300}, res, status)
	}
}
