package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix nanoseconds so ORDER BY created_at is chronological.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// sqlitePragmas are applied by the driver to every pooled connection.
// Immediate transactions take the write lock at BEGIN so concurrent writers
// wait on busy_timeout instead of failing on lock upgrade.
var sqlitePragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_txlock=immediate",
}

// sqliteDSN appends the connection pragmas to path.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(sqlitePragmas, "&")
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: connect")
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// SetClock replaces the server clock used for createdAt/updatedAt.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                TEXT PRIMARY KEY,
	email             TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	business_name     TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	phone_e164        TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	niche             TEXT NOT NULL DEFAULT '',
	industry          TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	zip               TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL,
	source_url        TEXT NOT NULL DEFAULT '',
	source_detail     TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'new',
	email_verified    INTEGER,
	email_verified_at INTEGER,
	whois_email       TEXT NOT NULL DEFAULT '',
	outreach_bounced  INTEGER NOT NULL DEFAULT 0,
	outreach_sent_at  INTEGER,
	converted_at      INTEGER,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at, id);
CREATE INDEX IF NOT EXISTS idx_leads_status_created ON leads(status, created_at);

CREATE TABLE IF NOT EXISTS operators (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	is_dev     INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) ([]model.Lead, error) {
	if err := checkBatch(len(leads)); err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin insert leads")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (`+strings.Join(leadColumns, ", ")+`) VALUES (`+placeholders(len(leadColumns))+`)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert lead")
	}
	defer stmt.Close() //nolint:errcheck

	now := serverTime(s.now)
	out := make([]model.Lead, len(leads))
	for i, l := range leads {
		l.ID = uuid.New().String()
		l.CreatedAt = now
		l.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, sqliteLeadValues(l)...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert lead %s", l.Email)
		}
		out[i] = l
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit insert leads")
	}
	return out, nil
}

func (s *SQLiteStore) FindExistingEmails(ctx context.Context, emails []string) ([]string, error) {
	if err := checkIn(len(emails)); err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, nil
	}

	args := make([]any, len(emails))
	for i, e := range emails {
		args[i] = e
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT email FROM leads WHERE email IN (`+placeholders(len(emails))+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find existing emails")
	}
	defer rows.Close() //nolint:errcheck

	var found []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan email")
		}
		found = append(found, e)
	}
	return found, eris.Wrap(rows.Err(), "sqlite: iterate emails")
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(leadColumns, ", ")+` FROM leads WHERE id = ?`, id)
	l, err := scanSQLiteLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + strings.Join(leadColumns, ", ") + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.Niche != "" {
		query += ` AND niche = ?`
		args = append(args, filter.Niche)
	}
	if filter.CreatedFrom != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedFrom.UTC().UnixNano())
	}
	if filter.CreatedTo != nil {
		query += ` AND created_at <= ?`
		args = append(args, filter.CreatedTo.UTC().UnixNano())
	}
	if filter.EmailUnverified {
		query += ` AND email_verified IS NULL`
	}

	cmp, dir := ">", "ASC"
	if filter.Order == Descending {
		cmp, dir = "<", "DESC"
	}

	if filter.StartAfter != "" {
		var cursorCreated int64
		err := s.db.QueryRowContext(ctx,
			`SELECT created_at FROM leads WHERE id = ?`, filter.StartAfter).Scan(&cursorCreated)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, eris.Wrap(err, "sqlite: resolve cursor")
		default:
			query += ` AND (created_at ` + cmp + ` ? OR (created_at = ? AND id ` + cmp + ` ?))`
			args = append(args, cursorCreated, cursorCreated, filter.StartAfter)
		}
	}

	query += ` ORDER BY created_at ` + dir + `, id ` + dir
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

func (s *SQLiteStore) UpdateLead(ctx context.Context, id string, patch model.LeadPatch) error {
	return s.UpdateLeads(ctx, []LeadUpdate{{ID: id, Patch: patch}})
}

func (s *SQLiteStore) UpdateLeads(ctx context.Context, updates []LeadUpdate) error {
	if err := checkBatch(len(updates)); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update leads")
	}
	defer tx.Rollback() //nolint:errcheck

	now := serverTime(s.now).UnixNano()
	for _, u := range updates {
		query := `UPDATE leads SET updated_at = ?`
		args := []any{now}
		for _, a := range patchAssignments(u.Patch) {
			query += `, ` + a.col + ` = ?`
			args = append(args, sqliteValue(a.val))
		}
		query += ` WHERE id = ?`
		args = append(args, u.ID)

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update lead %s", u.ID)
		}
		if err := checkRowsAffected(res, u.ID); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit update leads")
}

func (s *SQLiteStore) DeleteLeads(ctx context.Context, ids []string) (int, error) {
	if err := checkBatch(len(ids)); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM leads WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete leads")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) GetOperator(ctx context.Context, id string) (*model.Operator, error) {
	var op model.Operator
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, is_dev, created_at FROM operators WHERE id = ?`, id,
	).Scan(&op.ID, &op.Email, &op.IsDev, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get operator %s", id)
	}
	op.CreatedAt = time.Unix(0, created).UTC()
	return &op, nil
}

func (s *SQLiteStore) UpsertOperator(ctx context.Context, op model.Operator) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (id, email, is_dev, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET email = excluded.email, is_dev = excluded.is_dev`,
		op.ID, op.Email, op.IsDev, serverTime(s.now).UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: upsert operator %s", op.ID)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", id)
	}
	return nil
}

// sqliteValue converts patch values to their column representation.
func sqliteValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UnixNano()
	}
	return v
}

func nullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixNano()
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func sqliteLeadValues(l model.Lead) []any {
	return []any{
		l.ID, l.Email, l.Name, l.BusinessName, l.Phone, l.PhoneE164, l.Website,
		l.Niche, l.Industry, l.State, l.City, l.Zip, string(l.Source), l.SourceURL,
		l.SourceDetail, string(l.Status), nullBool(l.EmailVerified), nullNanos(l.EmailVerifiedAt),
		l.WhoisEmail, l.OutreachBounced, nullNanos(l.OutreachSentAt), nullNanos(l.ConvertedAt),
		l.CreatedAt.UnixNano(), l.UpdatedAt.UnixNano(),
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var source, status string
	var verified sql.NullBool
	var verifiedAt, sentAt, convertedAt sql.NullInt64
	var created, updated int64

	err := row.Scan(
		&l.ID, &l.Email, &l.Name, &l.BusinessName, &l.Phone, &l.PhoneE164, &l.Website,
		&l.Niche, &l.Industry, &l.State, &l.City, &l.Zip, &source, &l.SourceURL,
		&l.SourceDetail, &status, &verified, &verifiedAt,
		&l.WhoisEmail, &l.OutreachBounced, &sentAt, &convertedAt,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}

	l.Source = model.Source(source)
	l.Status = model.Status(status)
	if verified.Valid {
		l.EmailVerified = model.Ptr(verified.Bool)
	}
	l.EmailVerifiedAt = fromNanos(verifiedAt)
	l.OutreachSentAt = fromNanos(sentAt)
	l.ConvertedAt = fromNanos(convertedAt)
	l.CreatedAt = time.Unix(0, created).UTC()
	l.UpdatedAt = time.Unix(0, updated).UTC()
	return &l, nil
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
