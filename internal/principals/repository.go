package principals

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis-crm/praxis/internal/shared"
)

// Directory provides read access to principals.
type Directory interface {
	Lookup(ctx context.Context, id int64) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

// PGDirectory implements Directory using PostgreSQL.
type PGDirectory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs a PostgreSQL directory.
func NewDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

// Lookup fetches a principal by id.
func (d *PGDirectory) Lookup(ctx context.Context, id int64) (Record, error) {
	var record Record
	err := d.pool.QueryRow(ctx,
		`SELECT id, email, name, role, is_active, created_at, updated_at FROM principals WHERE id = $1`, id).
		Scan(&record.ID, &record.Email, &record.Name, &record.Role, &record.Active, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("principal %d: %w", id, shared.ErrNotFound)
		}
		return Record{}, err
	}
	return record, nil
}

// List returns all principals ordered by id. Admin path, not hot.
func (d *PGDirectory) List(ctx context.Context) ([]Record, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, email, name, role, is_active, created_at, updated_at FROM principals ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.Email, &record.Name, &record.Role, &record.Active, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

var _ Directory = (*PGDirectory)(nil)
