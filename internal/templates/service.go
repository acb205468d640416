package templates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/praxis-crm/praxis/internal/audit"
	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/platform/db"
	"github.com/praxis-crm/praxis/internal/principals"
	"github.com/praxis-crm/praxis/internal/shared"
)

// Auditor records catalog mutations.
type Auditor interface {
	Record(ctx context.Context, dbtx db.DBTX, record audit.Record) error
}

// Service orchestrates template catalog operations.
type Service struct {
	repo      Repository
	directory principals.Directory
	auditor   Auditor
	auditDB   db.DBTX
	logger    *slog.Logger
}

// NewService constructs a catalog service. auditDB is the executor used for
// audit writes (the pool in production).
func NewService(repo Repository, directory principals.Directory, auditor Auditor, auditDB db.DBTX, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, auditor: auditor, auditDB: auditDB, logger: logger}
}

// CreateTemplate adds a custom template. System templates are seeded at boot
// only and cannot be created through this path.
func (s *Service) CreateTemplate(ctx context.Context, name string, agent authz.Agent, caps authz.CapabilitySet, createdBy int64) (Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Template{}, fmt.Errorf("template name required: %w", shared.ErrValidation)
	}
	if !caps.Consistent() {
		return Template{}, fmt.Errorf("capability set requires read when any capability is set: %w", shared.ErrValidation)
	}
	if err := s.requireElevated(ctx, createdBy, agent); err != nil {
		return Template{}, err
	}
	created, err := s.repo.Create(ctx, Template{
		Name:         name,
		Agent:        agent,
		Capabilities: caps,
		CreatedBy:    createdBy,
	})
	if err != nil {
		return Template{}, err
	}
	s.recordChange(ctx, createdBy, created, nil)
	return created, nil
}

// CloneTemplate copies a template under a new name. The clone is always
// custom, even when the source is system-defined.
func (s *Service) CloneTemplate(ctx context.Context, templateID int64, newName string, createdBy int64) (Template, error) {
	source, err := s.repo.Get(ctx, templateID)
	if err != nil {
		return Template{}, err
	}
	return s.CreateTemplate(ctx, newName, source.Agent, source.Capabilities, createdBy)
}

// UpdateTemplate replaces a custom template's capability set.
func (s *Service) UpdateTemplate(ctx context.Context, templateID int64, caps authz.CapabilitySet, updatedBy int64) (Template, error) {
	existing, err := s.repo.Get(ctx, templateID)
	if err != nil {
		return Template{}, err
	}
	if existing.IsSystem {
		return Template{}, fmt.Errorf("system template %q is immutable: %w", existing.Name, shared.ErrConflict)
	}
	if !caps.Consistent() {
		return Template{}, fmt.Errorf("capability set requires read when any capability is set: %w", shared.ErrValidation)
	}
	if err := s.requireElevated(ctx, updatedBy, existing.Agent); err != nil {
		return Template{}, err
	}
	updated, err := s.repo.Update(ctx, templateID, caps)
	if err != nil {
		return Template{}, err
	}
	before := existing.Capabilities
	s.recordChange(ctx, updatedBy, updated, &before)
	return updated, nil
}

// ListTemplates returns templates, optionally scoped to one agent.
func (s *Service) ListTemplates(ctx context.Context, agent authz.Agent) ([]Template, error) {
	return s.repo.List(ctx, agent)
}

// Get fetches a single template. Used by the grant store when applying.
func (s *Service) Get(ctx context.Context, templateID int64) (Template, error) {
	return s.repo.Get(ctx, templateID)
}

func (s *Service) requireElevated(ctx context.Context, actorID int64, agent authz.Agent) error {
	actor, err := s.directory.Lookup(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.Active || !actor.Role.Elevated() {
		s.recordDenied(ctx, actorID, agent)
		return fmt.Errorf("principal %d cannot manage templates: %w", actorID, shared.ErrAdminDenied)
	}
	return nil
}

func (s *Service) recordChange(ctx context.Context, actorID int64, tpl Template, before *authz.CapabilitySet) {
	if s.auditor == nil || s.auditDB == nil {
		return
	}
	after := tpl.Capabilities
	err := s.auditor.Record(ctx, s.auditDB, audit.Record{
		ActorID:       actorID,
		Action:        audit.ActionTemplateChanged,
		Agent:         tpl.Agent,
		Before:        before,
		After:         &after,
		CorrelationID: shared.CorrelationID(ctx),
		At:            time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("audit template change", slog.Any("error", err))
	}
}

func (s *Service) recordDenied(ctx context.Context, actorID int64, agent authz.Agent) {
	if s.auditor == nil || s.auditDB == nil {
		return
	}
	err := s.auditor.Record(ctx, s.auditDB, audit.Record{
		ActorID:       actorID,
		Action:        audit.ActionAdminDenied,
		Agent:         agent,
		CorrelationID: shared.CorrelationID(ctx),
		At:            time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("audit admin denial", slog.Any("error", err))
	}
}
