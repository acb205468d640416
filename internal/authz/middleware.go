package authz

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Middleware guards HTTP routes with gateway checks.
type Middleware struct {
	Gateway *Gateway
	Logger  *slog.Logger
}

// Require ensures the current principal may perform the operation on the
// agent. Denials carry only a generic message naming the agent and operation;
// no taxonomy detail crosses to end users.
func (m Middleware) Require(agent Agent, op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			decision := m.Gateway.Check(r.Context(), principal, agent, op)
			if !decision.Allowed {
				if m.Logger != nil {
					m.Logger.Debug("authz denied",
						slog.Int64("principal", principal.ID),
						slog.String("agent", string(agent)),
						slog.String("operation", string(op)),
						slog.String("reason", string(decision.Reason)))
				}
				http.Error(w, fmt.Sprintf("access denied: %s %s required", agent, op), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireElevated ensures the current principal carries an elevated role.
// Used on administrative surfaces; the grant store re-checks elevation on
// every mutation regardless.
func (m Middleware) RequireElevated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !principal.Active || !principal.Role.Elevated() {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
