package templates

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-crm/praxis/internal/audit"
	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/platform/db"
	"github.com/praxis-crm/praxis/internal/principals"
	"github.com/praxis-crm/praxis/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	byID   map[int64]Template
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{byID: make(map[int64]Template), nextID: 1}
}

func (m *mockRepository) Create(ctx context.Context, tpl Template) (Template, error) {
	for _, existing := range m.byID {
		if existing.Agent == tpl.Agent && existing.Name == tpl.Name {
			return Template{}, fmt.Errorf("template %q: %w", tpl.Name, shared.ErrConflict)
		}
	}
	tpl.ID = m.nextID
	m.nextID++
	m.byID[tpl.ID] = tpl
	return tpl, nil
}

func (m *mockRepository) Get(ctx context.Context, templateID int64) (Template, error) {
	tpl, ok := m.byID[templateID]
	if !ok {
		return Template{}, fmt.Errorf("template %d: %w", templateID, shared.ErrNotFound)
	}
	return tpl, nil
}

func (m *mockRepository) Update(ctx context.Context, templateID int64, caps authz.CapabilitySet) (Template, error) {
	tpl, ok := m.byID[templateID]
	if !ok {
		return Template{}, fmt.Errorf("template %d: %w", templateID, shared.ErrNotFound)
	}
	tpl.Capabilities = caps
	m.byID[templateID] = tpl
	return tpl, nil
}

func (m *mockRepository) List(ctx context.Context, agent authz.Agent) ([]Template, error) {
	var out []Template
	for _, tpl := range m.byID {
		if agent == "" || tpl.Agent == agent {
			out = append(out, tpl)
		}
	}
	return out, nil
}

type mockDirectory struct {
	records map[int64]principals.Record
}

func (m *mockDirectory) Lookup(ctx context.Context, id int64) (principals.Record, error) {
	r, ok := m.records[id]
	if !ok {
		return principals.Record{}, fmt.Errorf("principal %d: %w", id, shared.ErrNotFound)
	}
	return r, nil
}

func (m *mockDirectory) List(ctx context.Context) ([]principals.Record, error) {
	return nil, nil
}

type mockAuditor struct {
	records []audit.Record
}

func (m *mockAuditor) Record(ctx context.Context, dbtx db.DBTX, record audit.Record) error {
	m.records = append(m.records, record)
	return nil
}

type stubDB struct{}

func (stubDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (stubDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (stubDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

const (
	adminID    = int64(1)
	standardID = int64(2)
)

func newTestService(t *testing.T) (*Service, *mockRepository, *mockAuditor) {
	t.Helper()
	repo := newMockRepository()
	auditor := &mockAuditor{}
	directory := &mockDirectory{records: map[int64]principals.Record{
		adminID:    {ID: adminID, Role: authz.RoleElevatedOrg, Active: true},
		standardID: {ID: standardID, Role: authz.RoleStandard, Active: true},
	}}
	return NewService(repo, directory, auditor, stubDB{}, nil), repo, auditor
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateTemplate(t *testing.T) {
	service, _, auditor := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateTemplate(ctx, "  Intake Reader  ", authz.AgentRecordManagement,
		authz.CapabilitySet{Read: true}, adminID)
	require.NoError(t, err)
	assert.Equal(t, "Intake Reader", created.Name, "name is trimmed")
	assert.False(t, created.IsSystem)
	assert.Equal(t, adminID, created.CreatedBy)

	require.Len(t, auditor.records, 1)
	assert.Equal(t, audit.ActionTemplateChanged, auditor.records[0].Action)
}

func TestCreateTemplateValidation(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.CreateTemplate(ctx, "   ", authz.AgentRecordManagement,
		authz.CapabilitySet{Read: true}, adminID)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.CreateTemplate(ctx, "broken", authz.AgentRecordManagement,
		authz.CapabilitySet{Delete: true}, adminID)
	assert.ErrorIs(t, err, shared.ErrValidation, "delete without read is inconsistent")

	assert.Empty(t, repo.byID)
}

func TestCreateTemplateDuplicateNamePerAgent(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.CreateTemplate(ctx, "Reader", authz.AgentRecordManagement,
		authz.CapabilitySet{Read: true}, adminID)
	require.NoError(t, err)

	_, err = service.CreateTemplate(ctx, "Reader", authz.AgentRecordManagement,
		authz.CapabilitySet{Read: true}, adminID)
	assert.ErrorIs(t, err, shared.ErrConflict)

	// Same name under a different agent is fine.
	_, err = service.CreateTemplate(ctx, "Reader", authz.AgentReporting,
		authz.CapabilitySet{Read: true}, adminID)
	assert.NoError(t, err)
}

func TestCreateTemplateRequiresElevatedActor(t *testing.T) {
	service, repo, auditor := newTestService(t)

	_, err := service.CreateTemplate(context.Background(), "Reader", authz.AgentRecordManagement,
		authz.CapabilitySet{Read: true}, standardID)
	assert.ErrorIs(t, err, shared.ErrAdminDenied)
	assert.Empty(t, repo.byID)

	require.Len(t, auditor.records, 1)
	assert.Equal(t, audit.ActionAdminDenied, auditor.records[0].Action)
}

func TestUpdateSystemTemplateRejected(t *testing.T) {
	service, repo, _ := newTestService(t)
	repo.byID[50] = Template{
		ID:           50,
		Name:         "Client Specialist",
		Agent:        authz.AgentRecordManagement,
		Capabilities: authz.CapabilitySet{Create: true, Read: true, Update: true},
		IsSystem:     true,
	}

	_, err := service.UpdateTemplate(context.Background(), 50,
		authz.CapabilitySet{Read: true}, adminID)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, authz.CapabilitySet{Create: true, Read: true, Update: true},
		repo.byID[50].Capabilities, "system template untouched")
}

func TestUpdateCustomTemplate(t *testing.T) {
	service, _, auditor := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateTemplate(ctx, "Reader", authz.AgentReporting,
		authz.CapabilitySet{Read: true}, adminID)
	require.NoError(t, err)

	updated, err := service.UpdateTemplate(ctx, created.ID,
		authz.CapabilitySet{Read: true, Update: true}, adminID)
	require.NoError(t, err)
	assert.Equal(t, authz.CapabilitySet{Read: true, Update: true}, updated.Capabilities)

	require.Len(t, auditor.records, 2)
	last := auditor.records[1]
	require.NotNil(t, last.Before)
	assert.Equal(t, authz.CapabilitySet{Read: true}, *last.Before)
}

func TestCloneSystemTemplateYieldsCustomCopy(t *testing.T) {
	service, repo, _ := newTestService(t)
	repo.byID[60] = Template{
		ID:           60,
		Name:         "Client Specialist",
		Agent:        authz.AgentRecordManagement,
		Capabilities: authz.CapabilitySet{Create: true, Read: true, Update: true},
		IsSystem:     true,
	}

	clone, err := service.CloneTemplate(context.Background(), 60, "Specialist Lite", adminID)
	require.NoError(t, err)
	assert.False(t, clone.IsSystem)
	assert.Equal(t, authz.AgentRecordManagement, clone.Agent)
	assert.Equal(t, authz.CapabilitySet{Create: true, Read: true, Update: true}, clone.Capabilities)

	// And the clone is independently editable.
	_, err = service.UpdateTemplate(context.Background(), clone.ID,
		authz.CapabilitySet{Read: true}, adminID)
	assert.NoError(t, err)
}

func TestListTemplatesByAgent(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.CreateTemplate(ctx, "A", authz.AgentRecordManagement, authz.CapabilitySet{Read: true}, adminID)
	require.NoError(t, err)
	_, err = service.CreateTemplate(ctx, "B", authz.AgentReporting, authz.CapabilitySet{Read: true}, adminID)
	require.NoError(t, err)

	scoped, err := service.ListTemplates(ctx, authz.AgentReporting)
	require.NoError(t, err)
	assert.Len(t, scoped, 1)

	all, err := service.ListTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
