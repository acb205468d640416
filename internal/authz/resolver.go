package authz

import "time"

// Source records which rule produced a resolution; it is cached alongside the
// capability set so decision reasons survive a cache round trip.
type Source string

const (
	// SourceInactive marks a disabled principal; terminal, all-false.
	SourceInactive Source = "inactive"
	// SourceRole marks a role-tier default (bypass or org-wide full access).
	SourceRole Source = "role"
	// SourceGrant marks capabilities taken verbatim from an explicit grant.
	SourceGrant Source = "grant"
	// SourceExpired marks a grant row whose expiry has passed.
	SourceExpired Source = "expired"
	// SourceNone marks the absence of any applicable grant.
	SourceNone Source = "none"
)

// Resolution is the effective capability set for one (principal, agent) pair.
// Role records the role tag the resolution was computed under; cached entries
// whose role no longer matches the principal's current tag are stale and must
// not be honoured.
type Resolution struct {
	Capabilities CapabilitySet `json:"capabilities"`
	Source       Source        `json:"source"`
	Role         Role          `json:"role"`
	ComputedAt   time.Time     `json:"computed_at"`
}

// Resolve computes the effective capability set for a principal on an agent,
// given a snapshot of that principal's grant row (nil when absent). It is a
// pure function and the only place that decides access.
//
// Precedence, ranked:
//  1. inactive principal: all-false, regardless of role or grants
//  2. elevated-system: all-true, no grant lookup ever narrows it
//  3. elevated-org: all-true unless an explicit grant row exists, in which
//     case the grant wins (the deliberate narrowing path)
//  4. standard: the grant verbatim; absent or expired means all-false
//
// Stored booleans are trusted as written; read is never inferred here.
func Resolve(principal Principal, snapshot *GrantSnapshot, now time.Time) Resolution {
	switch {
	case !principal.Active:
		return Resolution{Capabilities: NoAccess, Source: SourceInactive, Role: principal.Role, ComputedAt: now}
	case principal.Role == RoleElevatedSystem:
		return Resolution{Capabilities: FullAccess, Source: SourceRole, Role: principal.Role, ComputedAt: now}
	case principal.Role == RoleElevatedOrg && snapshot == nil:
		return Resolution{Capabilities: FullAccess, Source: SourceRole, Role: principal.Role, ComputedAt: now}
	case snapshot == nil:
		return Resolution{Capabilities: NoAccess, Source: SourceNone, Role: principal.Role, ComputedAt: now}
	case snapshot.Expired(now):
		return Resolution{Capabilities: NoAccess, Source: SourceExpired, Role: principal.Role, ComputedAt: now}
	default:
		return Resolution{Capabilities: snapshot.Capabilities, Source: SourceGrant, Role: principal.Role, ComputedAt: now}
	}
}

// Decide maps a resolution and an operation to a Decision.
func Decide(res Resolution, op Operation) Decision {
	if res.Capabilities.Allows(op) {
		reason := ReasonGrant
		if res.Source == SourceRole {
			reason = ReasonRoleDefault
		}
		return Decision{Allowed: true, Reason: reason}
	}
	switch res.Source {
	case SourceInactive:
		return Decision{Allowed: false, Reason: ReasonInactive}
	case SourceExpired:
		return Decision{Allowed: false, Reason: ReasonGrantExpired}
	case SourceNone:
		return Decision{Allowed: false, Reason: ReasonNoGrant}
	default:
		return Decision{Allowed: false, Reason: ReasonNotPermitted}
	}
}
