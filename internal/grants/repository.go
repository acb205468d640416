package grants

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/platform/db"
)

// Repository defines persistence operations for grants. Methods take an
// explicit executor so the service can run the grant write and its audit
// entry in one transaction.
type Repository interface {
	Get(ctx context.Context, dbtx db.DBTX, principalID int64, agent authz.Agent) (*Grant, error)
	Upsert(ctx context.Context, dbtx db.DBTX, grant Grant) (Grant, error)
	ListForPrincipal(ctx context.Context, dbtx db.DBTX, principalID int64) ([]Grant, error)
}

// PGRepository implements Repository using PostgreSQL. It also serves the
// gateway's hot-path grant reads.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const grantColumns = `principal_id, agent, can_create, can_read, can_update, can_delete, granted_by, granted_at, expires_at, updated_at`

// Get fetches the grant row for one (principal, agent) pair; nil when absent.
func (r *PGRepository) Get(ctx context.Context, dbtx db.DBTX, principalID int64, agent authz.Agent) (*Grant, error) {
	row := dbtx.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM agent_grants WHERE principal_id = $1 AND agent = $2`,
		principalID, agent)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// Upsert writes the grant, mutating in place on conflict. The unique key on
// (principal_id, agent) makes duplicate rows impossible and serialises
// concurrent writers last-writer-wins.
func (r *PGRepository) Upsert(ctx context.Context, dbtx db.DBTX, grant Grant) (Grant, error) {
	row := dbtx.QueryRow(ctx,
		`INSERT INTO agent_grants (principal_id, agent, can_create, can_read, can_update, can_delete, granted_by, granted_at, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $8, NOW())
		 ON CONFLICT (principal_id, agent) DO UPDATE SET
		   can_create = EXCLUDED.can_create,
		   can_read   = EXCLUDED.can_read,
		   can_update = EXCLUDED.can_update,
		   can_delete = EXCLUDED.can_delete,
		   granted_by = EXCLUDED.granted_by,
		   expires_at = EXCLUDED.expires_at,
		   updated_at = NOW()
		 RETURNING `+grantColumns,
		grant.PrincipalID, grant.Agent, grant.Capabilities.Create, grant.Capabilities.Read,
		grant.Capabilities.Update, grant.Capabilities.Delete, grant.GrantedBy, grant.ExpiresAt)
	return scanGrant(row)
}

// ListForPrincipal returns every grant row for a principal. Admin path.
func (r *PGRepository) ListForPrincipal(ctx context.Context, dbtx db.DBTX, principalID int64) ([]Grant, error) {
	rows, err := dbtx.Query(ctx,
		`SELECT `+grantColumns+` FROM agent_grants WHERE principal_id = $1 ORDER BY agent`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// GrantSnapshot implements authz.GrantSource for the gateway's miss path.
// It reads through the pool directly; this is the one budgeted round trip.
func (r *PGRepository) GrantSnapshot(ctx context.Context, principalID int64, agent authz.Agent) (*authz.GrantSnapshot, error) {
	grant, err := r.Get(ctx, r.pool, principalID, agent)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, nil
	}
	return grant.Snapshot(), nil
}

// Pool exposes the underlying pool for non-transactional reads.
func (r *PGRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func scanGrant(row pgx.Row) (Grant, error) {
	var grant Grant
	err := row.Scan(&grant.PrincipalID, &grant.Agent, &grant.Capabilities.Create, &grant.Capabilities.Read,
		&grant.Capabilities.Update, &grant.Capabilities.Delete, &grant.GrantedBy, &grant.GrantedAt,
		&grant.ExpiresAt, &grant.UpdatedAt)
	return grant, err
}

var (
	_ Repository        = (*PGRepository)(nil)
	_ authz.GrantSource = (*PGRepository)(nil)
)
