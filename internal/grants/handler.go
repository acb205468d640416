package grants

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/platform/httpx"
	"github.com/praxis-crm/praxis/internal/shared"
)

// Handler exposes grant administration to the management surface. The
// elevation check lives in the service, not here; the route guard is only a
// first door.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    authz.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers grant administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireElevated())
		r.Get("/{principalID}", h.list)
		r.Put("/{principalID}/{agent}", h.upsert)
		r.Delete("/{principalID}/{agent}", h.revoke)
		r.Post("/{principalID}/apply-template", h.applyTemplate)
		r.Post("/apply-template", h.bulkApplyTemplate)
	})
}

type capabilitiesPayload struct {
	Create bool `json:"create"`
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

type grantResponse struct {
	PrincipalID  int64               `json:"principal_id"`
	Agent        string              `json:"agent"`
	Capabilities capabilitiesPayload `json:"capabilities"`
	GrantedBy    int64               `json:"granted_by"`
	GrantedAt    time.Time           `json:"granted_at"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
}

func toResponse(grant Grant) grantResponse {
	return grantResponse{
		PrincipalID: grant.PrincipalID,
		Agent:       string(grant.Agent),
		Capabilities: capabilitiesPayload{
			Create: grant.Capabilities.Create,
			Read:   grant.Capabilities.Read,
			Update: grant.Capabilities.Update,
			Delete: grant.Capabilities.Delete,
		},
		GrantedBy: grant.GrantedBy,
		GrantedAt: grant.GrantedAt,
		ExpiresAt: grant.ExpiresAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principalID, err := pathID(r, "principalID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grants, err := h.service.ListGrantsForPrincipal(r.Context(), principalID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]grantResponse, len(grants))
	for i, grant := range grants {
		out[i] = toResponse(grant)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": out})
}

type upsertGrantRequest struct {
	Capabilities capabilitiesPayload `json:"capabilities"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	actor, _ := authz.PrincipalFromContext(r.Context())
	principalID, agent, err := pathKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req upsertGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	caps := authz.CapabilitySet{
		Create: req.Capabilities.Create,
		Read:   req.Capabilities.Read,
		Update: req.Capabilities.Update,
		Delete: req.Capabilities.Delete,
	}
	grant, err := h.service.UpsertGrant(r.Context(), principalID, agent, caps, actor.ID, req.ExpiresAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(grant))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, _ := authz.PrincipalFromContext(r.Context())
	principalID, agent, err := pathKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RevokeGrant(r.Context(), principalID, agent, actor.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyTemplateRequest struct {
	TemplateID int64 `json:"template_id" validate:"required,gt=0"`
}

func (h *Handler) applyTemplate(w http.ResponseWriter, r *http.Request) {
	actor, _ := authz.PrincipalFromContext(r.Context())
	principalID, err := pathID(r, "principalID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req applyTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grant, err := h.service.ApplyTemplate(r.Context(), principalID, req.TemplateID, actor.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(grant))
}

type bulkApplyTemplateRequest struct {
	TemplateID   int64   `json:"template_id" validate:"required,gt=0"`
	PrincipalIDs []int64 `json:"principal_ids" validate:"required,min=1,max=200,dive,gt=0"`
}

type bulkApplyResult struct {
	PrincipalID int64          `json:"principal_id"`
	Grant       *grantResponse `json:"grant,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func (h *Handler) bulkApplyTemplate(w http.ResponseWriter, r *http.Request) {
	actor, _ := authz.PrincipalFromContext(r.Context())
	var req bulkApplyTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	results, err := h.service.BulkApplyTemplate(r.Context(), req.PrincipalIDs, req.TemplateID, actor.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]bulkApplyResult, len(results))
	for i, result := range results {
		item := bulkApplyResult{PrincipalID: result.PrincipalID}
		if result.Grant != nil {
			grant := toResponse(*result.Grant)
			item.Grant = &grant
		}
		if result.Err != nil {
			item.Error = shared.UserSafeMessage(result.Err)
		}
		out[i] = item
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": out})
}

func pathID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrValidation
	}
	return id, nil
}

func pathKey(r *http.Request) (int64, authz.Agent, error) {
	principalID, err := pathID(r, "principalID")
	if err != nil {
		return 0, "", err
	}
	agent, err := authz.ParseAgent(chi.URLParam(r, "agent"))
	if err != nil {
		return 0, "", err
	}
	return principalID, agent, nil
}
