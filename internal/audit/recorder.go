package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/platform/db"
)

// Recorder appends records to the audit log. Grant mutations pass their own
// transaction so the grant write and its audit entry commit or fail together;
// asynchronous paths (sampled denials) pass the pool directly.
type Recorder struct{}

// NewRecorder returns a new Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record persists the entry using the given executor.
func (r *Recorder) Record(ctx context.Context, dbtx db.DBTX, record Record) error {
	if dbtx == nil {
		return errors.New("audit: recorder requires a database executor")
	}
	if record.Action == "" || record.Agent == "" {
		return errors.New("audit: record requires action and agent")
	}
	before, err := marshalCapabilities(record.Before)
	if err != nil {
		return err
	}
	after, err := marshalCapabilities(record.After)
	if err != nil {
		return err
	}
	at := record.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = dbtx.Exec(ctx,
		`INSERT INTO audit_log (actor_id, action, target_principal_id, agent, before_caps, after_caps, correlation_id, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ActorID, record.Action, record.TargetPrincipalID, record.Agent, before, after, record.CorrelationID, at)
	return err
}

func marshalCapabilities(caps *authz.CapabilitySet) ([]byte, error) {
	if caps == nil {
		return nil, nil
	}
	return json.Marshal(caps)
}
