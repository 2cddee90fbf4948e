package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-pipeline/internal/model"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, now: func() time.Time { return fixedNow }}
	return s, mock
}

func leadRow(id, email string, created time.Time) []any {
	return []any{
		id, email, "", "Acme", "", "", "https://acme.com",
		"plumbing", "", "UT", "Provo", "84601", "angi", "",
		"", "new", nil, nil,
		"", false, nil, nil,
		created, created,
	}
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS leads`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`SELECT 1`).WillReturnError(errors.New("connection refused"))

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLeads_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectCopyFrom(pgx.Identifier{"leads"}, leadColumns).WillReturnResult(2)

	out, err := s.InsertLeads(context.Background(), []model.Lead{
		lead("a@x.com", model.SourceAngi),
		lead("b@x.com", model.SourceAngi),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, l := range out {
		assert.NotEmpty(t, l.ID)
		assert.Equal(t, fixedNow, l.CreatedAt)
		assert.Equal(t, fixedNow, l.UpdatedAt)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLeads_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectCopyFrom(pgx.Identifier{"leads"}, leadColumns).WillReturnError(errors.New("unique violation"))

	_, err := s.InsertLeads(context.Background(), []model.Lead{lead("a@x.com", model.SourceAngi)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert leads")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLeads_BatchLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	_, err := s.InsertLeads(context.Background(), make([]model.Lead, MaxBatchWrites+1))
	assert.ErrorIs(t, err, ErrBatchLimit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindExistingEmails(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	emails := []string{"a@x.com", "b@x.com"}
	mock.ExpectQuery(`SELECT DISTINCT email FROM leads WHERE email = ANY\(\$1\)`).
		WithArgs(emails).
		WillReturnRows(pgxmock.NewRows([]string{"email"}).AddRow("b@x.com"))

	found, err := s.FindExistingEmails(context.Background(), emails)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.com"}, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindExistingEmails_InLimit(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	_, err := s.FindExistingEmails(context.Background(), make([]string, MaxInValues+1))
	assert.ErrorIs(t, err, ErrInLimit)
}

func TestPostgresStore_GetLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM leads WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetLead(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := fixedNow.Add(-time.Hour)
	mock.ExpectQuery(`FROM leads WHERE id = \$1`).
		WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows(leadColumns).AddRow(leadRow("lead-1", "a@x.com", created)...))

	got, err := s.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, model.SourceAngi, got.Source)
	assert.Equal(t, model.StatusNew, got.Status)
	assert.Equal(t, "Provo", got.City)
	assert.Nil(t, got.EmailVerified)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLeads_FiltersAndCursor(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cursorAt := fixedNow.Add(-time.Minute)
	from := fixedNow.Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT created_at FROM leads WHERE id = \$1`).
		WithArgs("cursor-id").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(cursorAt))
	mock.ExpectQuery(`WHERE true AND status = \$1 AND state = \$2 AND created_at >= \$3 AND email_verified IS NULL AND \(created_at, id\) < \(\$4, \$5\) ORDER BY created_at DESC, id DESC LIMIT \$6`).
		WithArgs("new", "UT", from, cursorAt, "cursor-id", 51).
		WillReturnRows(pgxmock.NewRows(leadColumns).
			AddRow(leadRow("lead-2", "b@x.com", cursorAt.Add(-time.Second))...).
			AddRow(leadRow("lead-3", "c@x.com", cursorAt.Add(-2*time.Second))...))

	got, err := s.ListLeads(context.Background(), LeadFilter{
		Status:          model.StatusNew,
		State:           "UT",
		CreatedFrom:     &from,
		EmailUnverified: true,
		Order:           Descending,
		StartAfter:      "cursor-id",
		Limit:           51,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"lead-2", "lead-3"}, leadIDs(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLeads_UnknownCursorIgnored(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT created_at FROM leads WHERE id = \$1`).
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`WHERE true ORDER BY created_at ASC, id ASC$`).
		WillReturnRows(pgxmock.NewRows(leadColumns))

	got, err := s.ListLeads(context.Background(), LeadFilter{StartAfter: "gone"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`UPDATE leads SET updated_at = \$1, status = \$2, outreach_bounced = \$3 WHERE id = \$4`).
		WithArgs(fixedNow, "bounced", true, "lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateLead(context.Background(), "lead-1", model.LeadPatch{
		Status:          model.Ptr(model.StatusBounced),
		OutreachBounced: model.Ptr(true),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`UPDATE leads SET updated_at = \$1 WHERE id = \$2`).
		WithArgs(fixedNow, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateLead(context.Background(), "missing", model.LeadPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLeads_RollsBackOnMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads SET updated_at = \$1, status = \$2 WHERE id = \$3`).
		WithArgs(fixedNow, "queued", "lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE leads SET updated_at = \$1, status = \$2 WHERE id = \$3`).
		WithArgs(fixedNow, "queued", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	queued := model.LeadPatch{Status: model.Ptr(model.StatusQueued)}
	err := s.UpdateLeads(context.Background(), []LeadUpdate{
		{ID: "lead-1", Patch: queued},
		{ID: "missing", Patch: queued},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLeads_Commit(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads`).WithArgs(fixedNow, "queued", "lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE leads`).WithArgs(fixedNow, "queued", "lead-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	queued := model.LeadPatch{Status: model.Ptr(model.StatusQueued)}
	require.NoError(t, s.UpdateLeads(context.Background(), []LeadUpdate{
		{ID: "lead-1", Patch: queued},
		{ID: "lead-2", Patch: queued},
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteLeads(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ids := []string{"a", "b", "c"}
	mock.ExpectExec(`DELETE FROM leads WHERE id = ANY\(\$1\)`).
		WithArgs(ids).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.DeleteLeads(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Operators(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`(?s)INSERT INTO operators .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("uid-1", "dev@x.com", true, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT id, email, is_dev, created_at FROM operators WHERE id = \$1`).
		WithArgs("uid-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "is_dev", "created_at"}).
			AddRow("uid-1", "dev@x.com", true, fixedNow))
	mock.ExpectQuery(`FROM operators WHERE id = \$1`).
		WithArgs("uid-2").
		WillReturnError(pgx.ErrNoRows)

	ctx := context.Background()
	require.NoError(t, s.UpsertOperator(ctx, model.Operator{ID: "uid-1", Email: "dev@x.com", IsDev: true}))

	op, err := s.GetOperator(ctx, "uid-1")
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.True(t, op.IsDev)

	op, err = s.GetOperator(ctx, "uid-2")
	require.NoError(t, err)
	assert.Nil(t, op)
	assert.NoError(t, mock.ExpectationsWereMet())
}
