package templates

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

// Handler manages template catalog endpoints.
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

// MountRoutes registers template routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireElevated())
		r.Post("/", h.create)
		r.Post("/{templateID}/clone", h.clone)
		r.Put("/{templateID}", h.update)
	})
}

type capabilitiesPayload struct {
	Create bool `json:"create"`
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

func (p capabilitiesPayload) set() authz.CapabilitySet {
	return authz.CapabilitySet{Create: p.Create, Read: p.Read, Update: p.Update, Delete: p.Delete}
}

type templateResponse struct {
	ID           int64               `json:"id"`
	Name         string              `json:"name"`
	Agent        string              `json:"agent"`
	Capabilities capabilitiesPayload `json:"capabilities"`
	IsSystem     bool                `json:"is_system"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func toResponse(tpl Template) templateResponse {
	return templateResponse{
		ID:    tpl.ID,
		Name:  tpl.Name,
		Agent: string(tpl.Agent),
		Capabilities: capabilitiesPayload{
			Create: tpl.Capabilities.Create,
			Read:   tpl.Capabilities.Read,
			Update: tpl.Capabilities.Update,
			Delete: tpl.Capabilities.Delete,
		},
		IsSystem:  tpl.IsSystem,
		CreatedAt: tpl.CreatedAt,
		UpdatedAt: tpl.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var agent authz.Agent
	if raw := r.URL.Query().Get("agent"); raw != "" {
		parsed, err := authz.ParseAgent(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		agent = parsed
	}
	list, err := h.service.ListTemplates(r.Context(), agent)
	if err != nil {
		h.logger.Error("list templates", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]templateResponse, len(list))
	for i, tpl := range list {
		out[i] = toResponse(tpl)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": out})
}

type createTemplateRequest struct {
	Name         string              `json:"name" validate:"required,min=1,max=120"`
	Agent        string              `json:"agent" validate:"required"`
	Capabilities capabilitiesPayload `json:"capabilities"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, _ := authz.PrincipalFromContext(r.Context())
	var req createTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	agent, err := authz.ParseAgent(req.Agent)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tpl, err := h.service.CreateTemplate(r.Context(), req.Name, agent, req.Capabilities.set(), principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(tpl))
}

type cloneTemplateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

func (h *Handler) clone(w http.ResponseWriter, r *http.Request) {
	principal, _ := authz.PrincipalFromContext(r.Context())
	templateID, err := pathID(r, "templateID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cloneTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tpl, err := h.service.CloneTemplate(r.Context(), templateID, req.Name, principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(tpl))
}

type updateTemplateRequest struct {
	Capabilities capabilitiesPayload `json:"capabilities"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, _ := authz.PrincipalFromContext(r.Context())
	templateID, err := pathID(r, "templateID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	tpl, err := h.service.UpdateTemplate(r.Context(), templateID, req.Capabilities.set(), principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(tpl))
}

func pathID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrValidation
	}
	return id, nil
}
