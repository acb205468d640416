package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/praxis-crm/praxis/internal/platform/httpx"
)

// Handler exposes bulk decision pre-flight for UIs that hide controls the
// principal cannot use. It calls the same gateway as the backend guards.
type Handler struct {
	logger   *slog.Logger
	gateway  *Gateway
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, gateway *Gateway) *Handler {
	return &Handler{logger: logger, gateway: gateway, validate: validator.New()}
}

// MountRoutes registers decision routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/decisions", h.bulkDecisions)
}

type decisionCheckRequest struct {
	Agent     string `json:"agent" validate:"required"`
	Operation string `json:"operation" validate:"required"`
}

type bulkDecisionsRequest struct {
	Checks []decisionCheckRequest `json:"checks" validate:"required,min=1,max=64,dive"`
}

type decisionResponse struct {
	Agent     string `json:"agent"`
	Operation string `json:"operation"`
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason"`
}

func (h *Handler) bulkDecisions(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req bulkDecisionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	queries := make([]AccessQuery, 0, len(req.Checks))
	for _, check := range req.Checks {
		agent, err := ParseAgent(check.Agent)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		op, err := ParseOperation(check.Operation)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		queries = append(queries, AccessQuery{Agent: agent, Operation: op})
	}

	decisions := h.gateway.CheckAll(r.Context(), principal, queries)
	out := make([]decisionResponse, len(decisions))
	for i, decision := range decisions {
		out[i] = decisionResponse{
			Agent:     string(queries[i].Agent),
			Operation: string(queries[i].Operation),
			Allowed:   decision.Allowed,
			Reason:    string(decision.Reason),
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"decisions": out})
}
