// Package authz implements the agent-based permission engine: a tiered
// resolver, a TTL cache over resolved capability sets, and the gateway that
// every protected operation consults before proceeding.
package authz

import (
	"fmt"
	"time"

	"github.com/praxis-crm/praxis/internal/shared"
)

// Role is the legacy role tag carried by every authenticated principal.
type Role string

const (
	// RoleElevatedSystem has unconditional full access to every agent.
	RoleElevatedSystem Role = "elevated-system"
	// RoleElevatedOrg has full access by default, overridable per agent by
	// an explicit grant.
	RoleElevatedOrg Role = "elevated-org"
	// RoleStandard has no default access; everything comes from grants.
	RoleStandard Role = "standard"
)

// Elevated reports whether the role may perform administrative mutations.
func (r Role) Elevated() bool {
	return r == RoleElevatedSystem || r == RoleElevatedOrg
}

// Agent is a fixed functional domain that permissions are scoped to.
// Adding an agent is a code change, which keeps the cache key space bounded.
type Agent string

const (
	AgentRecordManagement   Agent = "record-management"
	AgentDocumentProcessing Agent = "document-processing"
	AgentReporting          Agent = "reporting"
	AgentMediaCapture       Agent = "media-capture"
)

// Agents returns the closed set of agents.
func Agents() []Agent {
	return []Agent{AgentRecordManagement, AgentDocumentProcessing, AgentReporting, AgentMediaCapture}
}

// ParseAgent validates an agent name coming from the wire.
func ParseAgent(value string) (Agent, error) {
	agent := Agent(value)
	for _, known := range Agents() {
		if agent == known {
			return agent, nil
		}
	}
	return "", fmt.Errorf("agent %q: %w", value, shared.ErrNotFound)
}

// Operation is one of the four capabilities scoped to an agent.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ParseOperation validates an operation name coming from the wire.
func ParseOperation(value string) (Operation, error) {
	switch op := Operation(value); op {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		return op, nil
	default:
		return "", fmt.Errorf("operation %q: %w", value, shared.ErrValidation)
	}
}

// CapabilitySet is the four booleans for one (principal, agent) pair.
type CapabilitySet struct {
	Create bool `json:"create"`
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

// FullAccess grants every operation.
var FullAccess = CapabilitySet{Create: true, Read: true, Update: true, Delete: true}

// NoAccess grants nothing. An all-false grant row resolves identically to an
// absent row.
var NoAccess = CapabilitySet{}

// Allows reports whether the set permits the operation.
func (c CapabilitySet) Allows(op Operation) bool {
	switch op {
	case OpCreate:
		return c.Create
	case OpRead:
		return c.Read
	case OpUpdate:
		return c.Update
	case OpDelete:
		return c.Delete
	default:
		return false
	}
}

// Any reports whether at least one capability is set.
func (c CapabilitySet) Any() bool {
	return c.Create || c.Read || c.Update || c.Delete
}

// Consistent reports whether the set honours the write-time convention that
// any true capability implies read. The resolver trusts stored booleans
// verbatim, so this is enforced where grants and templates are written.
func (c CapabilitySet) Consistent() bool {
	if c.Create || c.Update || c.Delete {
		return c.Read
	}
	return true
}

// Principal is an authenticated actor as handed over by the identity
// boundary. The engine trusts ID, Role and Active as given.
type Principal struct {
	ID     int64
	Role   Role
	Active bool
}

// GrantSnapshot is the per-(principal, agent) grant state the resolver needs.
// A nil snapshot means no grant row exists.
type GrantSnapshot struct {
	Capabilities CapabilitySet
	ExpiresAt    *time.Time
}

// Expired reports whether the snapshot has an expiry in the past.
// Expiration is absolute: an expired grant never falls back to role defaults.
func (s *GrantSnapshot) Expired(now time.Time) bool {
	return s != nil && s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Reason explains a Decision.
type Reason string

const (
	ReasonRoleBypass   Reason = "role-bypass"
	ReasonRoleDefault  Reason = "role-default"
	ReasonGrant        Reason = "grant"
	ReasonNoGrant      Reason = "no-grant"
	ReasonGrantExpired Reason = "grant-expired"
	ReasonNotPermitted Reason = "not-permitted"
	ReasonInactive     Reason = "principal-inactive"
	ReasonTimeout      Reason = "resolver-timeout"
)

// Decision is the result of an authorization check. Checks never fail with an
// error; anything that cannot be evaluated confidently is a deny.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}
