package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type pgStore struct{ pool *pgxpool.Pool }

// NewPGStore returns a Store backed by the admissions table.
func NewPGStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) conn() queryable { return s.pool }

const admissionCols = `id, full_name, status, last_updated, source, control_id`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var status string
	err := row.Scan(&r.ID, &r.FullName, &status, &r.LastUpdated, &r.Source, &r.ControlID)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	return &r, nil
}

func (s *pgStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.conn().Exec(ctx, `
		INSERT INTO admissions (`+admissionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			status = EXCLUDED.status,
			last_updated = EXCLUDED.last_updated,
			source = EXCLUDED.source,
			control_id = EXCLUDED.control_id`,
		rec.ID, rec.FullName, string(rec.Status), rec.LastUpdated, rec.Source, rec.ControlID)
	if err != nil {
		return fmt.Errorf("upsert admission %s: %w", rec.ID, err)
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(s.conn().QueryRow(ctx, `SELECT `+admissionCols+` FROM admissions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admission %s: %w", id, err)
	}
	return rec, nil
}

func (s *pgStore) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := s.conn().QueryRow(ctx, `SELECT COUNT(*) FROM admissions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count admissions: %w", err)
	}

	query := `SELECT ` + admissionCols + ` FROM admissions ORDER BY last_updated DESC, id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` OFFSET $1`
		args = append(args, offset)
	}

	rows, err := s.conn().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list admissions: %w", err)
	}
	defer rows.Close()

	items := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
