package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uwinops/lancer/internal/archive"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements archive.Backend
var _ archive.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS course_records (
	build_id TEXT NOT NULL,
	built_at DATETIME NOT NULL,
	term TEXT NOT NULL,
	code TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	PRIMARY KEY (build_id, term, code)
);
CREATE INDEX IF NOT EXISTS course_records_term_code ON course_records (term, code);
`

// New creates a new SQLite-backed archive.Backend.
func New(dsn string) (archive.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite archive: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, records []archive.Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO course_records (
		build_id, built_at, term, code, title, description
	) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare archive insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.BuildID,
			r.BuiltAt,
			r.Term,
			r.Code,
			r.Title,
			r.Description,
		)
		if err != nil {
			return fmt.Errorf("insert %s/%s: %w", r.Term, r.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive save: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter archive.Filter) ([]archive.Record, error) {
	query := `SELECT build_id, built_at, term, code, title, description FROM course_records WHERE 1=1`
	args := []any{}

	if filter.BuildID != "" {
		query += ` AND build_id = ?`
		args = append(args, filter.BuildID)
	}
	if filter.Term != "" {
		query += ` AND term = ?`
		args = append(args, filter.Term)
	}
	if filter.Code != "" {
		query += ` AND code = ?`
		args = append(args, filter.Code)
	}
	if filter.Since != nil {
		query += ` AND built_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY built_at DESC, term, code`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
