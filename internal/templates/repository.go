package templates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/shared"
)

// Repository defines persistence operations for the template catalog.
type Repository interface {
	Create(ctx context.Context, tpl Template) (Template, error)
	Get(ctx context.Context, id int64) (Template, error)
	Update(ctx context.Context, id int64, caps authz.CapabilitySet) (Template, error)
	List(ctx context.Context, agent authz.Agent) ([]Template, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const templateColumns = `id, name, agent, can_create, can_read, can_update, can_delete, is_system, created_by, created_at, updated_at`

// Create inserts a custom template. Name is unique per agent.
func (r *PGRepository) Create(ctx context.Context, tpl Template) (Template, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO permission_templates (name, agent, can_create, can_read, can_update, can_delete, is_system, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+templateColumns,
		tpl.Name, tpl.Agent, tpl.Capabilities.Create, tpl.Capabilities.Read, tpl.Capabilities.Update,
		tpl.Capabilities.Delete, tpl.IsSystem, tpl.CreatedBy)
	created, err := scanTemplate(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Template{}, fmt.Errorf("template %q already exists for agent %s: %w", tpl.Name, tpl.Agent, shared.ErrConflict)
		}
		return Template{}, err
	}
	return created, nil
}

// Get fetches a template by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (Template, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM permission_templates WHERE id = $1`, id)
	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, fmt.Errorf("template %d: %w", id, shared.ErrNotFound)
		}
		return Template{}, err
	}
	return tpl, nil
}

// Update replaces the capability set of a template.
func (r *PGRepository) Update(ctx context.Context, id int64, caps authz.CapabilitySet) (Template, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE permission_templates
		 SET can_create = $2, can_read = $3, can_update = $4, can_delete = $5, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+templateColumns,
		id, caps.Create, caps.Read, caps.Update, caps.Delete)
	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, fmt.Errorf("template %d: %w", id, shared.ErrNotFound)
		}
		return Template{}, err
	}
	return tpl, nil
}

// List returns templates, optionally filtered by agent, ordered by name.
func (r *PGRepository) List(ctx context.Context, agent authz.Agent) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM permission_templates`
	args := []any{}
	if agent != "" {
		query += ` WHERE agent = $1`
		args = append(args, agent)
	}
	query += ` ORDER BY agent, name`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanTemplate(row pgx.Row) (Template, error) {
	var tpl Template
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Agent, &tpl.Capabilities.Create, &tpl.Capabilities.Read,
		&tpl.Capabilities.Update, &tpl.Capabilities.Delete, &tpl.IsSystem, &tpl.CreatedBy,
		&tpl.CreatedAt, &tpl.UpdatedAt)
	return tpl, err
}

var _ Repository = (*PGRepository)(nil)
