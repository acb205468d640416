package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionDenied is the task type for sampled runtime denial
	// audit entries.
	TaskPermissionDenied = "audit:permission_denied"
)

// PermissionDeniedPayload carries one sampled denial to the audit log.
type PermissionDeniedPayload struct {
	PrincipalID   int64     `json:"principal_id"`
	Agent         string    `json:"agent"`
	Operation     string    `json:"operation"`
	Reason        string    `json:"reason"`
	CorrelationID string    `json:"correlation_id"`
	At            time.Time `json:"at"`
}

// NewPermissionDeniedTask constructs an Asynq task.
func NewPermissionDeniedTask(payload PermissionDeniedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionDenied, data), nil
}
