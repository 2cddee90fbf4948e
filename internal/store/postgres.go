package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/db"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
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
	email_verified    BOOLEAN,
	email_verified_at TIMESTAMPTZ,
	whois_email       TEXT NOT NULL DEFAULT '',
	outreach_bounced  BOOLEAN NOT NULL DEFAULT false,
	outreach_sent_at  TIMESTAMPTZ,
	converted_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at, id);
CREATE INDEX IF NOT EXISTS idx_leads_status_created ON leads(status, created_at);

CREATE TABLE IF NOT EXISTS operators (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	is_dev     BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InsertLeads loads the batch with a single COPY, which commits all rows or none.
func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) ([]model.Lead, error) {
	if err := checkBatch(len(leads)); err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, nil
	}

	now := serverTime(s.now)
	out := make([]model.Lead, len(leads))
	rows := make([][]any, len(leads))
	for i, l := range leads {
		l.ID = uuid.New().String()
		l.CreatedAt = now
		l.UpdatedAt = now
		out[i] = l
		rows[i] = postgresLeadValues(l)
	}

	if _, err := db.CopyFrom(ctx, s.pool, "leads", leadColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: insert leads")
	}
	return out, nil
}

func (s *PostgresStore) FindExistingEmails(ctx context.Context, emails []string) ([]string, error) {
	if err := checkIn(len(emails)); err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT DISTINCT email FROM leads WHERE email = ANY($1)`, emails)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find existing emails")
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan emails")
	}
	return found, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+strings.Join(leadColumns, ", ")+` FROM leads WHERE id = $1`, id)
	l, err := scanPostgresLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + strings.Join(leadColumns, ", ") + ` FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	add := func(clause string, v any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, v)
		argIdx++
	}

	if filter.Status != "" {
		add(` AND status = $%d`, string(filter.Status))
	}
	if filter.Source != "" {
		add(` AND source = $%d`, string(filter.Source))
	}
	if filter.State != "" {
		add(` AND state = $%d`, filter.State)
	}
	if filter.Niche != "" {
		add(` AND niche = $%d`, filter.Niche)
	}
	if filter.CreatedFrom != nil {
		add(` AND created_at >= $%d`, filter.CreatedFrom.UTC())
	}
	if filter.CreatedTo != nil {
		add(` AND created_at <= $%d`, filter.CreatedTo.UTC())
	}
	if filter.EmailUnverified {
		query += ` AND email_verified IS NULL`
	}

	cmp, dir := ">", "ASC"
	if filter.Order == Descending {
		cmp, dir = "<", "DESC"
	}

	if filter.StartAfter != "" {
		var cursorCreated time.Time
		err := s.pool.QueryRow(ctx,
			`SELECT created_at FROM leads WHERE id = $1`, filter.StartAfter).Scan(&cursorCreated)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return nil, eris.Wrap(err, "postgres: resolve cursor")
		default:
			query += fmt.Sprintf(` AND (created_at, id) %s ($%d, $%d)`, cmp, argIdx, argIdx+1)
			args = append(args, cursorCreated, filter.StartAfter)
			argIdx += 2
		}
	}

	query += ` ORDER BY created_at ` + dir + `, id ` + dir
	if filter.Limit > 0 {
		add(` LIMIT $%d`, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPostgresLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

func (s *PostgresStore) UpdateLead(ctx context.Context, id string, patch model.LeadPatch) error {
	query, args := postgresUpdate(id, patch, serverTime(s.now))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateLeads(ctx context.Context, updates []LeadUpdate) error {
	if err := checkBatch(len(updates)); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update leads")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := serverTime(s.now)
	for _, u := range updates {
		query, args := postgresUpdate(u.ID, u.Patch, now)
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return eris.Wrapf(err, "postgres: update lead %s", u.ID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "lead %s", u.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit update leads")
}

func (s *PostgresStore) DeleteLeads(ctx context.Context, ids []string) (int, error) {
	if err := checkBatch(len(ids)); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete leads")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetOperator(ctx context.Context, id string) (*model.Operator, error) {
	var op model.Operator
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, is_dev, created_at FROM operators WHERE id = $1`, id,
	).Scan(&op.ID, &op.Email, &op.IsDev, &op.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get operator %s", id)
	}
	return &op, nil
}

func (s *PostgresStore) UpsertOperator(ctx context.Context, op model.Operator) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO operators (id, email, is_dev, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, is_dev = EXCLUDED.is_dev`,
		op.ID, op.Email, op.IsDev, serverTime(s.now),
	)
	return eris.Wrapf(err, "postgres: upsert operator %s", op.ID)
}

func postgresUpdate(id string, patch model.LeadPatch, now time.Time) (string, []any) {
	query := `UPDATE leads SET updated_at = $1`
	args := []any{now}
	for _, a := range patchAssignments(patch) {
		args = append(args, a.val)
		query += fmt.Sprintf(`, %s = $%d`, a.col, len(args))
	}
	args = append(args, id)
	query += fmt.Sprintf(` WHERE id = $%d`, len(args))
	return query, args
}

func postgresLeadValues(l model.Lead) []any {
	return []any{
		l.ID, l.Email, l.Name, l.BusinessName, l.Phone, l.PhoneE164, l.Website,
		l.Niche, l.Industry, l.State, l.City, l.Zip, string(l.Source), l.SourceURL,
		l.SourceDetail, string(l.Status), l.EmailVerified, l.EmailVerifiedAt,
		l.WhoisEmail, l.OutreachBounced, l.OutreachSentAt, l.ConvertedAt,
		l.CreatedAt, l.UpdatedAt,
	}
}

func scanPostgresLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var source, status string
	err := row.Scan(
		&l.ID, &l.Email, &l.Name, &l.BusinessName, &l.Phone, &l.PhoneE164, &l.Website,
		&l.Niche, &l.Industry, &l.State, &l.City, &l.Zip, &source, &l.SourceURL,
		&l.SourceDetail, &status, &l.EmailVerified, &l.EmailVerifiedAt,
		&l.WhoisEmail, &l.OutreachBounced, &l.OutreachSentAt, &l.ConvertedAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Source = model.Source(source)
	l.Status = model.Status(status)
	return &l, nil
}
