package grants

import (
	"time"

	"github.com/praxis-crm/praxis/internal/authz"
)

// Grant is the durable per-(principal, agent) capability record. At most one
// row exists per pair; updates mutate in place, and revocation zeroes the
// capabilities rather than deleting the row, so audit history stays anchored.
type Grant struct {
	PrincipalID  int64
	Agent        authz.Agent
	Capabilities authz.CapabilitySet
	GrantedBy    int64
	GrantedAt    time.Time
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// Snapshot converts the grant into the resolver's input shape.
func (g Grant) Snapshot() *authz.GrantSnapshot {
	return &authz.GrantSnapshot{Capabilities: g.Capabilities, ExpiresAt: g.ExpiresAt}
}

// ApplyResult is one principal's outcome of a bulk template application.
// Applications are independent; one failure never rolls back the others.
type ApplyResult struct {
	PrincipalID int64
	Grant       *Grant
	Err         error
}
