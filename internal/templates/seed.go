package templates

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/praxis-crm/praxis/internal/authz"
)

type seedTemplate struct {
	name  string
	agent authz.Agent
	caps  authz.CapabilitySet
}

// System template bundles. These match the capability sets the host product
// stamps onto new staff profiles.
var systemTemplates = []seedTemplate{
	{"client specialist", authz.AgentRecordManagement, authz.CapabilitySet{Create: true, Read: true, Update: true}},
	{"records viewer", authz.AgentRecordManagement, authz.CapabilitySet{Read: true}},
	{"records manager", authz.AgentRecordManagement, authz.FullAccess},
	{"document clerk", authz.AgentDocumentProcessing, authz.CapabilitySet{Create: true, Read: true, Update: true}},
	{"document manager", authz.AgentDocumentProcessing, authz.FullAccess},
	{"report analyst", authz.AgentReporting, authz.CapabilitySet{Read: true}},
	{"report builder", authz.AgentReporting, authz.CapabilitySet{Create: true, Read: true, Update: true}},
	{"media operator", authz.AgentMediaCapture, authz.CapabilitySet{Create: true, Read: true}},
	{"media manager", authz.AgentMediaCapture, authz.FullAccess},
}

// SeedSystemTemplates inserts the system-defined templates. Safe to run on
// every boot; existing rows are left untouched.
func SeedSystemTemplates(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	title := cases.Title(language.English)
	for _, tpl := range systemTemplates {
		_, err := pool.Exec(ctx,
			`INSERT INTO permission_templates (name, agent, can_create, can_read, can_update, can_delete, is_system, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, TRUE, 0)
			 ON CONFLICT (agent, name) DO NOTHING`,
			title.String(tpl.name), tpl.agent, tpl.caps.Create, tpl.caps.Read, tpl.caps.Update, tpl.caps.Delete)
		if err != nil {
			return err
		}
	}
	if logger != nil {
		logger.Info("system templates seeded", slog.Int("count", len(systemTemplates)))
	}
	return nil
}
