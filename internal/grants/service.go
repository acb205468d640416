package grants

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/praxis-crm/praxis/internal/audit"
	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/platform/db"
	"github.com/praxis-crm/praxis/internal/principals"
	"github.com/praxis-crm/praxis/internal/shared"
	"github.com/praxis-crm/praxis/internal/templates"
)

// TemplateSource reads templates for application. Capability sets are copied
// at apply time; later template edits never touch existing grants.
type TemplateSource interface {
	Get(ctx context.Context, templateID int64) (templates.Template, error)
}

// Auditor appends audit records, inside the mutation transaction when one is
// passed.
type Auditor interface {
	Record(ctx context.Context, dbtx db.DBTX, record audit.Record) error
}

// Invalidator evicts cached resolutions after committed mutations.
type Invalidator interface {
	InvalidateFor(ctx context.Context, principalID int64, agents ...authz.Agent) error
}

// Service is the grant store: durable CRUD over grant rows with validity and
// elevation enforcement, transactional audit, and synchronous cache eviction.
type Service struct {
	repo        Repository
	tx          db.TxRunner
	reader      db.DBTX
	directory   principals.Directory
	templates   TemplateSource
	auditor     Auditor
	invalidator Invalidator
	logger      *slog.Logger
}

// ServiceConfig collects grant store dependencies. Reader is the executor for
// non-transactional reads and best-effort denial audits (the pool in
// production).
type ServiceConfig struct {
	Repo        Repository
	Tx          db.TxRunner
	Reader      db.DBTX
	Directory   principals.Directory
	Templates   TemplateSource
	Auditor     Auditor
	Invalidator Invalidator
	Logger      *slog.Logger
}

// NewService constructs the grant store.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        cfg.Repo,
		tx:          cfg.Tx,
		reader:      cfg.Reader,
		directory:   cfg.Directory,
		templates:   cfg.Templates,
		auditor:     cfg.Auditor,
		invalidator: cfg.Invalidator,
		logger:      logger,
	}
}

// UpsertGrant writes the capability set for (principal, agent), creating the
// row on first assignment and mutating it in place afterwards.
func (s *Service) UpsertGrant(ctx context.Context, principalID int64, agent authz.Agent, caps authz.CapabilitySet, grantedBy int64, expiresAt *time.Time) (Grant, error) {
	if !caps.Consistent() {
		return Grant{}, fmt.Errorf("capability set requires read when any capability is set: %w", shared.ErrValidation)
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return Grant{}, fmt.Errorf("expires_at must be in the future: %w", shared.ErrValidation)
	}
	if err := s.validateActors(ctx, principalID, grantedBy, agent); err != nil {
		return Grant{}, err
	}
	grant := Grant{
		PrincipalID:  principalID,
		Agent:        agent,
		Capabilities: caps,
		GrantedBy:    grantedBy,
		ExpiresAt:    expiresAt,
	}
	return s.write(ctx, grant, audit.ActionGrantChanged)
}

// RevokeGrant zeroes the capability set. Idempotent; every call is audited,
// even when the grant was already revoked or never existed.
func (s *Service) RevokeGrant(ctx context.Context, principalID int64, agent authz.Agent, revokedBy int64) error {
	if err := s.validateActors(ctx, principalID, revokedBy, agent); err != nil {
		return err
	}
	grant := Grant{
		PrincipalID:  principalID,
		Agent:        agent,
		Capabilities: authz.NoAccess,
		GrantedBy:    revokedBy,
	}
	_, err := s.write(ctx, grant, audit.ActionGrantRevoked)
	return err
}

// GetGrant returns the stored grant row, or nil when absent. The row is kept
// distinguishable from an all-false revocation for audit purposes even though
// both resolve identically.
func (s *Service) GetGrant(ctx context.Context, principalID int64, agent authz.Agent) (*Grant, error) {
	return s.repo.Get(ctx, s.reader, principalID, agent)
}

// ListGrantsForPrincipal returns all grant rows for a principal.
func (s *Service) ListGrantsForPrincipal(ctx context.Context, principalID int64) ([]Grant, error) {
	if _, err := s.directory.Lookup(ctx, principalID); err != nil {
		return nil, err
	}
	return s.repo.ListForPrincipal(ctx, s.reader, principalID)
}

// ApplyTemplate stamps a template's capability set onto one principal.
func (s *Service) ApplyTemplate(ctx context.Context, principalID, templateID, grantedBy int64) (Grant, error) {
	tpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return Grant{}, err
	}
	if err := s.validateActors(ctx, principalID, grantedBy, tpl.Agent); err != nil {
		return Grant{}, err
	}
	return s.applyTemplate(ctx, tpl, principalID, grantedBy)
}

// BulkApplyTemplate stamps a template onto many principals. Each application
// is independent: a failure for one principal leaves the others committed,
// and the caller receives a per-principal result list.
func (s *Service) BulkApplyTemplate(ctx context.Context, principalIDs []int64, templateID, grantedBy int64) ([]ApplyResult, error) {
	tpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := s.requireElevated(ctx, grantedBy, 0, tpl.Agent); err != nil {
		return nil, err
	}
	results := make([]ApplyResult, 0, len(principalIDs))
	for _, principalID := range principalIDs {
		result := ApplyResult{PrincipalID: principalID}
		if _, err := s.directory.Lookup(ctx, principalID); err != nil {
			result.Err = err
		} else if grant, err := s.applyTemplate(ctx, tpl, principalID, grantedBy); err != nil {
			result.Err = err
		} else {
			result.Grant = &grant
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) applyTemplate(ctx context.Context, tpl templates.Template, principalID, grantedBy int64) (Grant, error) {
	grant := Grant{
		PrincipalID:  principalID,
		Agent:        tpl.Agent,
		Capabilities: tpl.Capabilities,
		GrantedBy:    grantedBy,
	}
	return s.write(ctx, grant, audit.ActionTemplateApplied)
}

// write runs the grant upsert and its audit entry in one transaction, then
// evicts the cache entry before returning, so any check that starts after
// this call returns observes the new state.
func (s *Service) write(ctx context.Context, grant Grant, action audit.Action) (Grant, error) {
	var updated Grant
	err := s.tx.RunTx(ctx, func(tx pgx.Tx) error {
		before, err := s.repo.Get(ctx, tx, grant.PrincipalID, grant.Agent)
		if err != nil {
			return err
		}
		updated, err = s.repo.Upsert(ctx, tx, grant)
		if err != nil {
			return err
		}
		var beforeCaps *authz.CapabilitySet
		if before != nil {
			caps := before.Capabilities
			beforeCaps = &caps
		}
		afterCaps := updated.Capabilities
		return s.auditor.Record(ctx, tx, audit.Record{
			ActorID:           grant.GrantedBy,
			Action:            action,
			TargetPrincipalID: grant.PrincipalID,
			Agent:             grant.Agent,
			Before:            beforeCaps,
			After:             &afterCaps,
			CorrelationID:     shared.CorrelationID(ctx),
			At:                time.Now().UTC(),
		})
	})
	if err != nil {
		return Grant{}, err
	}
	if s.invalidator != nil {
		if err := s.invalidator.InvalidateFor(ctx, grant.PrincipalID, grant.Agent); err != nil {
			// The TTL still bounds staleness; surface the miss loudly.
			s.logger.Error("grant cache invalidation",
				slog.Int64("principal", grant.PrincipalID),
				slog.String("agent", string(grant.Agent)),
				slog.Any("error", err))
		}
	}
	return updated, nil
}

func (s *Service) validateActors(ctx context.Context, targetID, actorID int64, agent authz.Agent) error {
	if _, err := s.directory.Lookup(ctx, targetID); err != nil {
		return err
	}
	return s.requireElevated(ctx, actorID, targetID, agent)
}

func (s *Service) requireElevated(ctx context.Context, actorID, targetID int64, agent authz.Agent) error {
	actor, err := s.directory.Lookup(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.Active || !actor.Role.Elevated() {
		s.recordAdminDenied(ctx, actorID, targetID, agent)
		return fmt.Errorf("principal %d cannot administer grants: %w", actorID, shared.ErrAdminDenied)
	}
	return nil
}

// recordAdminDenied audits a rejected administrative attempt. Best effort:
// the rejection itself stands regardless.
func (s *Service) recordAdminDenied(ctx context.Context, actorID, targetID int64, agent authz.Agent) {
	if s.auditor == nil || s.reader == nil {
		return
	}
	err := s.auditor.Record(ctx, s.reader, audit.Record{
		ActorID:           actorID,
		Action:            audit.ActionAdminDenied,
		TargetPrincipalID: targetID,
		Agent:             agent,
		CorrelationID:     shared.CorrelationID(ctx),
		At:                time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("audit admin denial", slog.Any("error", err))
	}
}
