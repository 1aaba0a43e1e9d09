package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uwinops/lancer/internal/archive"
)

// ensure postgresBackend implements archive.Backend
var _ archive.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS course_records (
	build_id TEXT NOT NULL,
	built_at TIMESTAMPTZ NOT NULL,
	term TEXT NOT NULL,
	code TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	PRIMARY KEY (build_id, term, code)
);
CREATE INDEX IF NOT EXISTS course_records_term_code ON course_records (term, code);
`

// New creates a new Postgres-backed archive.Backend.
func New(ctx context.Context, dsn string) (archive.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres archive: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres archive: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, records []archive.Record) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{r.BuildID, r.BuiltAt, r.Term, r.Code, r.Title, r.Description})
	}

	_, err := b.pool.CopyFrom(ctx,
		pgx.Identifier{"course_records"},
		[]string{"build_id", "built_at", "term", "code", "title", "description"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy archive records: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter archive.Filter) ([]archive.Record, error) {
	query := `SELECT build_id, built_at, term, code, title, description FROM course_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.BuildID != "" {
		query += fmt.Sprintf(` AND build_id = $%d`, paramCount)
		args = append(args, filter.BuildID)
		paramCount++
	}
	if filter.Term != "" {
		query += fmt.Sprintf(` AND term = $%d`, paramCount)
		args = append(args, filter.Term)
		paramCount++
	}
	if filter.Code != "" {
		query += fmt.Sprintf(` AND code = $%d`, paramCount)
		args = append(args, filter.Code)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND built_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY built_at DESC, term, code`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
		paramCount++
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var records []archive.Record
	for rows.Next() {
		var r archive.Record
		err := rows.Scan(&r.BuildID, &r.BuiltAt, &r.Term, &r.Code, &r.Title, &r.Description)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read archive rows: %w", err)
	}

	return records, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
