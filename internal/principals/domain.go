// Package principals is the read-only view over the identity subsystem.
// The engine never verifies credentials; it only needs the id, the legacy
// role tag and the active flag of already-authenticated actors.
package principals

import (
	"time"

	"github.com/praxis-crm/praxis/internal/authz"
)

// Record is one principal as stored by the host application.
type Record struct {
	ID        int64
	Email     string
	Name      string
	Role      authz.Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Principal converts the record into the engine's trusted input shape.
func (r Record) Principal() authz.Principal {
	return authz.Principal{ID: r.ID, Role: r.Role, Active: r.Active}
}
