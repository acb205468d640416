package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis-crm/praxis/internal/authz"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window returns one descending page of audit records.
func (r *PGRepository) Window(ctx context.Context, arg WindowParams) ([]Record, error) {
	var (
		conds []string
		args  []any
	)
	addCond := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if arg.Filters.TargetPrincipalID != 0 {
		addCond("target_principal_id = $%d", arg.Filters.TargetPrincipalID)
	}
	if arg.Filters.Agent != "" {
		addCond("agent = $%d", arg.Filters.Agent)
	}
	if !arg.Filters.From.IsZero() {
		addCond("occurred_at >= $%d", arg.Filters.From)
	}
	if !arg.Filters.To.IsZero() {
		addCond("occurred_at <= $%d", arg.Filters.To)
	}

	query := `SELECT id, actor_id, action, target_principal_id, agent, before_caps, after_caps, correlation_id, occurred_at FROM audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, arg.LimitRows)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, arg.OffsetRows)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record Record
			before []byte
			after  []byte
		)
		if err := rows.Scan(&record.ID, &record.ActorID, &record.Action, &record.TargetPrincipalID,
			&record.Agent, &before, &after, &record.CorrelationID, &record.At); err != nil {
			return nil, err
		}
		if record.Before, err = unmarshalCapabilities(before); err != nil {
			return nil, err
		}
		if record.After, err = unmarshalCapabilities(after); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func unmarshalCapabilities(payload []byte) (*authz.CapabilitySet, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var caps authz.CapabilitySet
	if err := json.Unmarshal(payload, &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}

var _ Repository = (*PGRepository)(nil)
