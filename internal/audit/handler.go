package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/platform/httpx"
	"github.com/praxis-crm/praxis/internal/shared"
)

func httpxValidation(detail string) error {
	return fmt.Errorf("%s: %w", detail, shared.ErrValidation)
}

// Handler exposes the audit history query to the management surface.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireElevated())
		r.Get("/history", h.history)
	})
}

type historyRecord struct {
	ID                int64                `json:"id"`
	ActorID           int64                `json:"actor_id"`
	Action            string               `json:"action"`
	TargetPrincipalID int64                `json:"target_principal_id"`
	Agent             string               `json:"agent"`
	Before            *authz.CapabilitySet `json:"before,omitempty"`
	After             *authz.CapabilitySet `json:"after,omitempty"`
	CorrelationID     string               `json:"correlation_id"`
	At                time.Time            `json:"at"`
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	filters, err := parseHistoryFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.History(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	rows := make([]historyRecord, len(result.Rows))
	for i, record := range result.Rows {
		rows[i] = historyRecord{
			ID:                record.ID,
			ActorID:           record.ActorID,
			Action:            string(record.Action),
			TargetPrincipalID: record.TargetPrincipalID,
			Agent:             string(record.Agent),
			Before:            record.Before,
			After:             record.After,
			CorrelationID:     record.CorrelationID,
			At:                record.At,
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows": rows,
		"paging": map[string]any{
			"page":      result.Paging.Page,
			"page_size": result.Paging.PageSize,
			"has_next":  result.Paging.HasNext,
		},
	})
}

func parseHistoryFilters(r *http.Request) (Filters, error) {
	var filters Filters
	q := r.URL.Query()
	if raw := q.Get("target"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Filters{}, httpxValidation("target must be an integer")
		}
		filters.TargetPrincipalID = id
	}
	if raw := q.Get("agent"); raw != "" {
		agent, err := authz.ParseAgent(raw)
		if err != nil {
			return Filters{}, err
		}
		filters.Agent = agent
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, httpxValidation("from must be RFC3339")
		}
		filters.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, httpxValidation("to must be RFC3339")
		}
		filters.To = t
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return filters, nil
}
