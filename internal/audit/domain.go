package audit

import (
	"time"

	"github.com/praxis-crm/praxis/internal/authz"
)

// Action classifies an audit record.
type Action string

const (
	ActionGrantChanged     Action = "grant-changed"
	ActionGrantRevoked     Action = "grant-revoked"
	ActionTemplateApplied  Action = "template-applied"
	ActionTemplateChanged  Action = "template-changed"
	ActionPermissionDenied Action = "permission-denied"
	ActionAdminDenied      Action = "admin-denied"
)

// Record is one immutable audit entry. The application only ever appends;
// retention and rotation are external concerns.
type Record struct {
	ID                int64
	ActorID           int64
	Action            Action
	TargetPrincipalID int64
	Agent             authz.Agent
	Before            *authz.CapabilitySet
	After             *authz.CapabilitySet
	CorrelationID     string
	At                time.Time
}

// Filters narrows a history query.
type Filters struct {
	TargetPrincipalID int64
	Agent             authz.Agent
	From              time.Time
	To                time.Time
	Page              int
	PageSize          int
}
