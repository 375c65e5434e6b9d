package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/messaging"
)

type registry map[string]messaging.MessageHandler

func (r registry) RegisterHandler(msgType string, h messaging.MessageHandler) { r[msgType] = h }

type mockProvisioner struct{ mock.Mock }

func (m *mockProvisioner) Run(ctx context.Context, job service.ProvisionPayload) error {
	return m.Called(ctx, job).Error(0)
}

func (m *mockProvisioner) Abandon(ctx context.Context, tenantID string, cause error) error {
	return m.Called(ctx, tenantID, cause).Error(0)
}

type mockBackups struct{ mock.Mock }

func (m *mockBackups) RunBackup(ctx context.Context, p service.BackupPayload) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockBackups) RunRestore(ctx context.Context, p service.BackupPayload) error {
	return m.Called(ctx, p).Error(0)
}

type mockModules struct{ mock.Mock }

func (m *mockModules) Run(ctx context.Context, p service.ModulePayload) error {
	return m.Called(ctx, p).Error(0)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) Enqueue(ctx context.Context, job service.Job) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

func (m *mockQueue) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockQueue) Held(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type fixture struct {
	h           *Handlers
	prov        *mockProvisioner
	backups     *mockBackups
	modules     *mockModules
	queue       *mockQueue
	provisionRg registry
	siteOpsRg   registry
}

func newFixture() *fixture {
	f := &fixture{
		prov:        new(mockProvisioner),
		backups:     new(mockBackups),
		modules:     new(mockModules),
		queue:       new(mockQueue),
		provisionRg: registry{},
		siteOpsRg:   registry{},
	}
	f.h = NewHandlers(f.prov, f.backups, f.modules, f.queue)
	f.h.Register(f.provisionRg, f.siteOpsRg)
	return f
}

func message(t *testing.T, jobType, dedupKey string, payload any) *messaging.Message {
	t.Helper()
	msg, err := messaging.NewMessage("job-1", jobType, "t-1", payload)
	require.NoError(t, err)
	if dedupKey != "" {
		msg.SetMetadata(messaging.MetaDedupKey, dedupKey)
	}
	return msg
}

func TestRegister(t *testing.T) {
	f := newFixture()
	assert.Contains(t, f.provisionRg, service.JobProvision)
	for _, jt := range []string{service.JobBackup, service.JobRestore, service.JobInstallApp, service.JobUninstallApp, service.JobUpdateApp} {
		assert.Contains(t, f.siteOpsRg, jt)
	}
}

func TestProvision_ReleasesOnCompletion(t *testing.T) {
	f := newFixture()
	payload := service.ProvisionPayload{TenantID: "t-1", SiteName: "acme.pixone.com"}
	f.prov.On("Run", mock.Anything, payload).Return(nil)
	f.queue.On("Release", mock.Anything, "provision_t-1").Return(nil)

	err := f.provisionRg[service.JobProvision](context.Background(), message(t, service.JobProvision, "provision_t-1", payload))
	require.NoError(t, err)
	f.queue.AssertExpectations(t)
}

func TestProvision_RetryKeepsDedupKey(t *testing.T) {
	f := newFixture()
	f.prov.On("Run", mock.Anything, mock.Anything).Return(service.ErrRetryable)

	err := f.provisionRg[service.JobProvision](context.Background(), message(t, service.JobProvision, "provision_t-1", service.ProvisionPayload{TenantID: "t-1"}))
	assert.ErrorIs(t, err, service.ErrRetryable)
	f.queue.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	f := newFixture()
	f.queue.On("Release", mock.Anything, "backup_restore_t-1").Return(nil)
	msg := message(t, service.JobBackup, "backup_restore_t-1", nil)
	msg.Payload = []byte(`"not an object"`)

	require.NoError(t, f.siteOpsRg[service.JobBackup](context.Background(), msg))
	f.backups.AssertNotCalled(t, "RunBackup", mock.Anything, mock.Anything)
	f.queue.AssertExpectations(t)
}

func TestModule_FillsOpFromType(t *testing.T) {
	f := newFixture()
	f.modules.On("Run", mock.Anything, service.ModulePayload{JobID: "job-1", TenantID: "t-1", App: "hrms", Op: service.JobUninstallApp}).Return(nil)

	msg := message(t, service.JobUninstallApp, "", service.ModulePayload{TenantID: "t-1", App: "hrms"})
	require.NoError(t, f.siteOpsRg[service.JobUninstallApp](context.Background(), msg))
	f.modules.AssertExpectations(t)
}

func TestRestore(t *testing.T) {
	f := newFixture()
	payload := service.BackupPayload{TenantID: "t-1", BackupID: "b-1"}
	f.backups.On("RunRestore", mock.Anything, payload).Return(nil)
	f.queue.On("Release", mock.Anything, "backup_restore_t-1").Return(errors.New("redis down"))

	require.NoError(t, f.siteOpsRg[service.JobRestore](context.Background(), message(t, service.JobRestore, "backup_restore_t-1", payload)))
	f.backups.AssertExpectations(t)
}

func TestOnDeadLetter(t *testing.T) {
	f := newFixture()
	cause := errors.New("lock conflict")
	f.prov.On("Abandon", mock.Anything, "t-1", cause).Return(nil)
	f.queue.On("Release", mock.Anything, "provision_t-1").Return(nil)

	f.h.OnDeadLetter(context.Background(), message(t, service.JobProvision, "provision_t-1", nil), cause)
	f.prov.AssertExpectations(t)
	f.queue.AssertExpectations(t)

	// 非开通任务只释放去重键
	f.queue.On("Release", mock.Anything, "backup_restore_t-1").Return(nil)
	f.h.OnDeadLetter(context.Background(), message(t, service.JobBackup, "backup_restore_t-1", nil), cause)
	f.prov.AssertNumberOfCalls(t, "Abandon", 1)
}
