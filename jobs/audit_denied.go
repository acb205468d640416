package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis-crm/praxis/internal/audit"
	"github.com/praxis-crm/praxis/internal/authz"
)

// DeniedAuditJob persists sampled denial events into the audit log.
type DeniedAuditJob struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewDeniedAuditJob constructs the job handler.
func NewDeniedAuditJob(pool *pgxpool.Pool, recorder *audit.Recorder, logger *slog.Logger) *DeniedAuditJob {
	return &DeniedAuditJob{pool: pool, recorder: recorder, logger: logger}
}

// Handle processes TaskPermissionDenied tasks.
func (j *DeniedAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PermissionDeniedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	err := j.recorder.Record(ctx, j.pool, audit.Record{
		ActorID:           payload.PrincipalID,
		Action:            audit.ActionPermissionDenied,
		TargetPrincipalID: payload.PrincipalID,
		Agent:             authz.Agent(payload.Agent),
		CorrelationID:     payload.CorrelationID,
		At:                payload.At,
	})
	if err != nil && j.logger != nil {
		j.logger.Warn("record denied audit", slog.Any("error", err))
	}
	return err
}
