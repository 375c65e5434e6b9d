package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/bench"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(args []string) service.CommandResult
}

func (f *fakeRunner) Run(_ context.Context, args []string, _ time.Duration) service.CommandResult {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	if f.respond == nil {
		return service.CommandResult{}
	}
	return f.respond(args)
}

func (f *fakeRunner) labels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = bench.CommandLabel(c)
	}
	return out
}

// notInstalled list-apps 失败，其余命令按 override 返回
func notInstalled(override map[string]service.CommandResult) func([]string) service.CommandResult {
	return func(args []string) service.CommandResult {
		label := bench.CommandLabel(args)
		if label == "install-app" {
			if res, ok := override["install-app "+args[len(args)-1]]; ok {
				return res
			}
		}
		if res, ok := override[label]; ok {
			return res
		}
		if label == "list-apps" {
			return service.CommandResult{ExitCode: 1, Stderr: "site does not exist"}
		}
		return service.CommandResult{}
	}
}

type fakeWorkspace struct {
	lockExists bool
	removed    bool
}

func (w *fakeWorkspace) SiteExists(string) bool { return true }
func (w *fakeWorkspace) LockFile(site string) (string, bool) {
	return "/bench/sites/" + site + "/locks/bench_new_site.lock", w.lockExists
}
func (w *fakeWorkspace) RemoveLock(string) error {
	w.removed = true
	w.lockExists = false
	return nil
}
func (w *fakeWorkspace) MoveSite(string, string) error { return nil }
func (w *fakeWorkspace) FileSizeMB(string) float64     { return 0 }
func (w *fakeWorkspace) SiteDir(site string) string    { return "/bench/sites/" + site }

type memTenants struct {
	mu      sync.Mutex
	tenants map[string]*entity.Tenant
	updates []entity.TenantStatus
}

func (s *memTenants) GetByID(_ context.Context, id string) (*entity.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// UpdateColumns 与数据库一致，只写入列出的列
func (s *memTenants) UpdateColumns(_ context.Context, t *entity.Tenant, columns ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.tenants[t.ID]
	for _, col := range columns {
		switch col {
		case "status":
			stored.Status = t.Status
		case "site_status":
			stored.SiteStatus = t.SiteStatus
		case "db_name":
			stored.DBName = t.DBName
		case "provisioning_notes":
			stored.ProvisioningNotes = t.ProvisioningNotes
		case "suspension_reason":
			stored.SuspensionReason = t.SuspensionReason
		case "provisioning_started_at":
			stored.ProvisioningStartedAt = t.ProvisioningStartedAt
		case "provisioning_completed_at":
			stored.ProvisioningCompletedAt = t.ProvisioningCompletedAt
		default:
			return fmt.Errorf("unexpected column %q", col)
		}
	}
	s.updates = append(s.updates, stored.Status)
	return nil
}

type memProgress struct {
	mu   sync.Mutex
	last *entity.ProvisioningProgress
}

func (m *memProgress) SetProvisioning(_ context.Context, p *entity.ProvisioningProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.last = &cp
	return nil
}
func (m *memProgress) GetProvisioning(context.Context, string) (*entity.ProvisioningProgress, error) {
	return m.last, nil
}
func (m *memProgress) SetModuleJob(context.Context, *entity.ModuleJobProgress) error { return nil }
func (m *memProgress) GetModuleJob(context.Context, string) (*entity.ModuleJobProgress, error) {
	return nil, nil
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, n service.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		Bench: config.BenchConfig{Binary: "bench", LongTimeout: 600 * time.Second, ProbeTimeout: 30 * time.Second},
		Database: config.DatabaseConfig{MariaDB: config.MariaDBConfig{
			Host: "mariadb", Port: 3306, RootUser: "root", RootPassword: "secret",
		}},
		Provisioning: config.ProvisioningConfig{
			CompanySetup:       true,
			CompanySetupMethod: "helpers.create_company",
			DefaultCurrency:    "BDT",
			DefaultCountry:     "Bangladesh",
		},
	}
}

type harness struct {
	pipeline  *Pipeline
	runner    *fakeRunner
	workspace *fakeWorkspace
	tenants   *memTenants
	progress  *memProgress
	notifier  *mockNotifier
	tenant    *entity.Tenant
}

func newHarness(t *testing.T, cfg *config.Config, status entity.TenantStatus) *harness {
	t.Helper()
	tenant := entity.NewTenant("c-1", "Acme Trading", "acme", "pixone.com")
	tenant.ID = "t-1"
	tenant.Status = status
	tenant.AdminEmail = "owner@acme.test"

	h := &harness{
		runner:    &fakeRunner{respond: notInstalled(nil)},
		workspace: &fakeWorkspace{},
		tenants:   &memTenants{tenants: map[string]*entity.Tenant{"t-1": tenant}},
		progress:  &memProgress{},
		notifier:  new(mockNotifier),
		tenant:    tenant,
	}
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	h.pipeline = NewPipeline(h.tenants, h.runner, h.workspace, h.progress, h.notifier, cfg)
	return h
}

func job() service.ProvisionPayload {
	return service.ProvisionPayload{
		TenantID:      "t-1",
		SiteName:      "acme.pixone.com",
		AdminPassword: "pw-123",
		AdminEmail:    "owner@acme.test",
		Modules:       []string{"erpnext", "hrms"},
	}
}

func lastNotification(t *testing.T, n *mockNotifier) service.Notification {
	t.Helper()
	require.NotEmpty(t, n.Calls)
	return n.Calls[len(n.Calls)-1].Arguments.Get(1).(service.Notification)
}

func TestPipeline_HappyPath(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)

	require.NoError(t, h.pipeline.Run(context.Background(), job()))

	assert.Equal(t, []string{
		"list-apps", "set-config", "set-config", "new-site",
		"install-app", "install-app", "execute", "migrate",
	}, h.runner.labels())

	got := h.tenants.tenants["t-1"]
	assert.Equal(t, entity.TenantStatusActive, got.Status)
	assert.Equal(t, entity.SiteStatusActive, got.SiteStatus)
	assert.Equal(t, "_acme_pixone_com", got.DBName)
	assert.NotNil(t, got.ProvisioningStartedAt)
	assert.NotNil(t, got.ProvisioningCompletedAt)
	assert.Contains(t, got.ProvisioningNotes, "Site created: Site acme.pixone.com created successfully")
	assert.Contains(t, got.ProvisioningNotes, "Apps: installed erpnext, hrms")
	assert.NotContains(t, got.ProvisioningNotes, "migration_failed")
	assert.Equal(t, entity.TenantStatusProvisioning, h.tenants.updates[0])

	assert.Equal(t, ProgressCompleted, h.progress.last.Status)
	assert.Equal(t, 100, h.progress.last.PercentComplete)

	n := lastNotification(t, h.notifier)
	assert.Equal(t, service.EventProvisioningSucceeded, n.Event)
	assert.Equal(t, "pw-123", n.Data["admin_password"])
}

func TestPipeline_NewSiteArguments(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)
	require.NoError(t, h.pipeline.Run(context.Background(), job()))

	calls := h.runner.calls
	assert.Equal(t, []string{"bench", "set-config", "-g", "db_host", "mariadb"}, calls[1])
	assert.Equal(t, []string{"bench", "set-config", "-g", "db_port", "3306"}, calls[2])
	assert.Equal(t, []string{
		"bench", "new-site", "acme.pixone.com",
		"--admin-password", "pw-123",
		"--db-root-username", "root",
		"--db-root-password", "secret",
		"--mariadb-user-host-login-scope", "%",
		"--force",
	}, calls[3])
	assert.Contains(t, calls[6][len(calls[6])-1], `"default_currency":"BDT"`)
}

func TestPipeline_AlreadyInstalledSkipsCreation(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)
	h.runner.respond = func([]string) service.CommandResult { return service.CommandResult{} }

	require.NoError(t, h.pipeline.Run(context.Background(), job()))
	assert.NotContains(t, h.runner.labels(), "new-site")
	assert.Equal(t, entity.TenantStatusActive, h.tenants.tenants["t-1"].Status)
	assert.Contains(t, h.tenants.tenants["t-1"].ProvisioningNotes, "already exists")
}

func TestPipeline_CreateFailure(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)
	h.runner.respond = notInstalled(map[string]service.CommandResult{
		"new-site": {ExitCode: 1, Stderr: "Database error: access denied"},
	})

	require.NoError(t, h.pipeline.Run(context.Background(), job()))

	got := h.tenants.tenants["t-1"]
	assert.Equal(t, entity.TenantStatusFailed, got.Status)
	assert.Contains(t, got.ProvisioningNotes, "Error: site provisioning failed: Database error: access denied")
	assert.NotContains(t, h.runner.labels(), "install-app")
	assert.Equal(t, ProgressFailed, h.progress.last.Status)

	n := lastNotification(t, h.notifier)
	assert.Equal(t, service.EventProvisioningFailed, n.Event)
	assert.NotContains(t, n.Data, "admin_password")
}

func TestPipeline_MissingRootPassword(t *testing.T) {
	cfg := testConfig()
	cfg.Database.MariaDB.RootPassword = ""
	h := newHarness(t, cfg, entity.TenantStatusQueued)

	require.NoError(t, h.pipeline.Run(context.Background(), job()))
	assert.Equal(t, entity.TenantStatusFailed, h.tenants.tenants["t-1"].Status)
	assert.Empty(t, h.runner.calls)
}

func TestPipeline_LockConflictOutputIsRetryable(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)
	h.runner.respond = notInstalled(map[string]service.CommandResult{
		"new-site": {ExitCode: 1, Stderr: "Lock for site creation could not be acquired"},
	})

	err := h.pipeline.Run(context.Background(), job())
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRetryable))

	got := h.tenants.tenants["t-1"]
	assert.Equal(t, entity.TenantStatusQueued, got.Status)
	assert.Equal(t, entity.SiteStatusQueued, got.SiteStatus)
	assert.Contains(t, got.ProvisioningNotes, "lock conflict, retrying")
	assert.Empty(t, h.notifier.Calls)
}

func TestPipeline_LockHeldByRunningProcess(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)
	h.workspace.lockExists = true
	h.runner.respond = notInstalled(map[string]service.CommandResult{
		"bench .* new-site": {Stdout: "4242 bench new-site other.pixone.com\n"},
	})

	err := h.pipeline.Run(context.Background(), job())
	assert.True(t, errors.Is(err, service.ErrRetryable))
	assert.False(t, h.workspace.removed)
	assert.NotContains(t, h.runner.labels(), "new-site")
}

func TestPipeline_StaleLockRemoved(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)
	h.workspace.lockExists = true
	h.runner.respond = notInstalled(map[string]service.CommandResult{
		"bench .* new-site": {ExitCode: 1},
	})

	require.NoError(t, h.pipeline.Run(context.Background(), job()))
	assert.True(t, h.workspace.removed)
	assert.Contains(t, h.runner.labels(), "new-site")
	assert.Equal(t, entity.TenantStatusActive, h.tenants.tenants["t-1"].Status)
}

func TestPipeline_PartialFailuresStayActive(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)
	h.runner.respond = notInstalled(map[string]service.CommandResult{
		"install-app hrms": {ExitCode: 1, Stderr: "App hrms not found"},
		"migrate":          {ExitCode: 1, Stderr: "patch failed"},
	})

	require.NoError(t, h.pipeline.Run(context.Background(), job()))

	got := h.tenants.tenants["t-1"]
	assert.Equal(t, entity.TenantStatusActive, got.Status)
	assert.Contains(t, got.ProvisioningNotes, "Apps: installed erpnext; failed hrms (App hrms not found)")
	assert.Contains(t, got.ProvisioningNotes, "migration_failed: patch failed")
}

func TestPipeline_KeepsChangesMadeDuringRun(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)
	next := notInstalled(nil)
	h.runner.respond = func(args []string) service.CommandResult {
		// 安装应用期间：客户绑定了自定义域名，套餐降级挂起了租户
		if bench.CommandLabel(args) == "install-app" {
			h.tenants.mu.Lock()
			stored := h.tenants.tenants["t-1"]
			stored.CustomDomain = "erp.acme.test"
			stored.Status = entity.TenantStatusSuspended
			stored.SuspensionReason = "plan_downgrade"
			h.tenants.mu.Unlock()
		}
		return next(args)
	}

	require.NoError(t, h.pipeline.Run(context.Background(), job()))

	got := h.tenants.tenants["t-1"]
	assert.Equal(t, entity.TenantStatusSuspended, got.Status)
	assert.Equal(t, "plan_downgrade", got.SuspensionReason)
	assert.Equal(t, "erp.acme.test", got.CustomDomain)
	assert.Equal(t, entity.SiteStatusActive, got.SiteStatus)
	assert.NotNil(t, got.ProvisioningCompletedAt)
	assert.Contains(t, got.ProvisioningNotes, "Apps: installed erpnext, hrms")
}

func TestPipeline_SkipsNonQueued(t *testing.T) {
	for _, status := range []entity.TenantStatus{
		entity.TenantStatusProvisioning, entity.TenantStatusActive, entity.TenantStatusDeleted,
	} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t, testConfig(), status)
			require.NoError(t, h.pipeline.Run(context.Background(), job()))
			assert.Empty(t, h.runner.calls)
			assert.Empty(t, h.tenants.updates)
		})
	}
}

func TestPipeline_CompanySetupDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Provisioning.CompanySetup = false
	h := newHarness(t, cfg, entity.TenantStatusQueued)

	require.NoError(t, h.pipeline.Run(context.Background(), job()))
	assert.NotContains(t, h.runner.labels(), "execute")
}

func TestPipeline_Abandon(t *testing.T) {
	h := newHarness(t, testConfig(), entity.TenantStatusQueued)

	cause := fmt.Errorf("%w: %v", service.ErrRetryable, ErrLockConflict)
	require.NoError(t, h.pipeline.Abandon(context.Background(), "t-1", cause))

	got := h.tenants.tenants["t-1"]
	assert.Equal(t, entity.TenantStatusFailed, got.Status)
	assert.True(t, strings.HasSuffix(got.ProvisioningNotes, "Error: lock conflict (retryable)"))
	assert.Equal(t, service.EventProvisioningFailed, lastNotification(t, h.notifier).Event)

	// 已结束的租户不受影响
	require.NoError(t, h.pipeline.Abandon(context.Background(), "t-1", cause))
	assert.Len(t, h.notifier.Calls, 1)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()

	ws := &fakeWorkspace{}
	runner := &fakeRunner{}
	m := NewLockManager(ws, runner, time.Second)

	state, err := m.Clear(ctx, "acme.pixone.com")
	require.NoError(t, err)
	assert.Equal(t, LockAbsent, state)
	assert.Empty(t, runner.calls)

	ws.lockExists = true
	state, err = m.Clear(ctx, "acme.pixone.com")
	require.NoError(t, err)
	assert.Equal(t, LockCleared, state)
	assert.True(t, ws.removed)
	assert.Equal(t, []string{"pgrep", "-af", "bench .* new-site"}, runner.calls[0])
}

func TestIsLockConflictOutput(t *testing.T) {
	assert.True(t, IsLockConflictOutput("Error: lock Could Not Be Acquired for site"))
	assert.False(t, IsLockConflictOutput("Database error"))
}
