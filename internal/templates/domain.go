package templates

import (
	"time"

	"github.com/praxis-crm/praxis/internal/authz"
)

// Template is a named, reusable capability bundle. Applying one copies its
// capability set into a grant; there is no live link, so later edits never
// retroactively change previously-applied grants.
type Template struct {
	ID           int64
	Name         string
	Agent        authz.Agent
	Capabilities authz.CapabilitySet
	// IsSystem templates are seeded at boot and immutable thereafter.
	IsSystem  bool
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
