package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/domain/service"
	apperrors "tenant-provisioner/pkg/errors"
)

type memTenants map[string]*entity.Tenant

func (m memTenants) GetByID(_ context.Context, id string) (*entity.Tenant, error) {
	return m[id], nil
}

type memBackups struct {
	items map[string]*entity.Backup
	seq   int
}

func (m *memBackups) Create(_ context.Context, b *entity.Backup) error {
	m.seq++
	b.ID = "b-" + string(rune('0'+m.seq))
	m.items[b.ID] = b
	return nil
}

func (m *memBackups) GetByID(_ context.Context, id string) (*entity.Backup, error) {
	return m.items[id], nil
}

func (m *memBackups) Update(_ context.Context, b *entity.Backup) error {
	m.items[b.ID] = b
	return nil
}

func (m *memBackups) ListByTenant(_ context.Context, tenantID string, p repository.Pagination) (*repository.PagedResult[*entity.Backup], error) {
	var out []*entity.Backup
	for _, b := range m.items {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return repository.NewPagedResult(out, int64(len(out)), p), nil
}

func (m *memBackups) DeleteByTenant(context.Context, string) error { return nil }

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

type scriptedRunner struct {
	calls   [][]string
	results []service.CommandResult
}

func (r *scriptedRunner) Run(_ context.Context, args []string, _ time.Duration) service.CommandResult {
	r.calls = append(r.calls, args)
	if len(r.results) == 0 {
		return service.CommandResult{}
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res
}

type sizeWorkspace struct {
	sizes map[string]float64
}

func (w *sizeWorkspace) SiteExists(string) bool { return true }
func (w *sizeWorkspace) LockFile(string) (string, bool) { return "", false }
func (w *sizeWorkspace) RemoveLock(string) error { return nil }
func (w *sizeWorkspace) MoveSite(string, string) error { return nil }
func (w *sizeWorkspace) FileSizeMB(path string) float64 { return w.sizes[path] }
func (w *sizeWorkspace) SiteDir(site string) string { return "/bench/sites/" + site }

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, n service.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type fixture struct {
	o        *Orchestrator
	tenants  memTenants
	backups  *memBackups
	queue    *mockQueue
	runner   *scriptedRunner
	notifier *mockNotifier
}

func newFixture() *fixture {
	f := &fixture{
		tenants: memTenants{
			"t-1": {ID: "t-1", Name: "Acme", CustomerID: "c-1", SiteName: "acme.pixone.com", Status: entity.TenantStatusActive},
			"t-2": {ID: "t-2", Name: "Globex", CustomerID: "c-2", SiteName: "globex.pixone.com", Status: entity.TenantStatusSuspended},
		},
		backups:  &memBackups{items: map[string]*entity.Backup{}},
		queue:    new(mockQueue),
		runner:   &scriptedRunner{},
		notifier: new(mockNotifier),
	}
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	ws := &sizeWorkspace{sizes: map[string]float64{"./acme.pixone.com/private/backups/20240101-database.sql.gz": 1.25}}
	f.o = NewOrchestrator(f.tenants, f.backups, f.queue, f.runner, ws, f.notifier, "bench", time.Minute)
	return f
}

func appErr(t *testing.T, err error) *apperrors.AppError {
	t.Helper()
	var ae *apperrors.AppError
	require.True(t, errors.As(err, &ae), "expected AppError, got %v", err)
	return ae
}

func lastEvent(f *fixture) string {
	calls := f.notifier.Calls
	return calls[len(calls)-1].Arguments.Get(1).(service.Notification).Event
}

func TestParseBackupFile(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want string
	}{
		{"bench summary", "Backup Summary for acme.pixone.com at 2024-01-01\nConfig  : ./acme.pixone.com/private/backups/x-site_config_backup.json 94B\nDatabase: ./acme.pixone.com/private/backups/x-database.sql.gz 1.1MiB\n", "./acme.pixone.com/private/backups/x-database.sql.gz"},
		{"prefixed label", "Database backup: /backups/acme.sql.gz", "/backups/acme.sql.gz"},
		{"label without extension", "Database backup: /backups/acme-db", "/backups/acme-db"},
		{"bare path", "\n  /backups/acme.sql.gz  \n", "/backups/acme.sql.gz"},
		{"nothing", "Backup complete\n", ""},
		{"status word is not a path", "Database backup completed\n", ""},
		{"status line then path", "Database backup completed\nDatabase: ./acme.pixone.com/private/backups/x-database.sql.gz 1.1MiB\n", "./acme.pixone.com/private/backups/x-database.sql.gz"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseBackupFile(tc.out))
		})
	}
}

func TestRunBackup_Completed(t *testing.T) {
	f := newFixture()
	f.runner.results = []service.CommandResult{{Stdout: "Database: ./acme.pixone.com/private/backups/20240101-database.sql.gz 1.2MiB\n"}}

	require.NoError(t, f.o.RunBackup(context.Background(), service.BackupPayload{TenantID: "t-1"}))

	require.Len(t, f.backups.items, 1)
	for _, b := range f.backups.items {
		assert.Equal(t, entity.BackupStatusCompleted, b.Status)
		assert.Equal(t, "./acme.pixone.com/private/backups/20240101-database.sql.gz", b.FileURL)
		assert.Equal(t, 1.25, b.FileSizeMB)
		assert.NotNil(t, b.CompletedAt)
	}
	assert.Equal(t, []string{"bench", "--site", "acme.pixone.com", "backup", "--with-files"}, f.runner.calls[0])
	assert.Equal(t, service.EventBackupCompleted, lastEvent(f))
}

func TestRunBackup_UnknownFileSizeIsZero(t *testing.T) {
	f := newFixture()
	f.runner.results = []service.CommandResult{{Stdout: "/elsewhere/acme.sql.gz"}}

	require.NoError(t, f.o.RunBackup(context.Background(), service.BackupPayload{TenantID: "t-1"}))
	for _, b := range f.backups.items {
		assert.Equal(t, entity.BackupStatusCompleted, b.Status)
		assert.GreaterOrEqual(t, b.FileSizeMB, 0.0)
	}
}

func TestRunBackup_Failed(t *testing.T) {
	f := newFixture()
	f.runner.results = []service.CommandResult{{ExitCode: 1, Stdout: "Database: /partial.sql.gz", Stderr: "mysqldump: access denied"}}

	require.NoError(t, f.o.RunBackup(context.Background(), service.BackupPayload{TenantID: "t-1"}))
	for _, b := range f.backups.items {
		assert.Equal(t, entity.BackupStatusFailed, b.Status)
		assert.Empty(t, b.FileURL)
		assert.Equal(t, "mysqldump: access denied", b.Error)
	}
	assert.Equal(t, service.EventBackupFailed, lastEvent(f))
}

func TestRequestBackup(t *testing.T) {
	f := newFixture()
	f.queue.On("Enqueue", mock.Anything, mock.Anything).Return("job-9", nil).Once()

	id, err := f.o.RequestBackup(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "job-9", id)
	job := f.queue.Calls[0].Arguments.Get(1).(service.Job)
	assert.Equal(t, "backup_restore_t-1", job.DedupKey)
	assert.Equal(t, service.JobBackup, job.Type)

	_, err = f.o.RequestBackup(context.Background(), "t-2")
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr(t, err).Code)

	_, err = f.o.RequestBackup(context.Background(), "nope")
	assert.Equal(t, apperrors.CodeTenantNotFound, appErr(t, err).Code)
}

func TestRequestBackup_OverlapsRestore(t *testing.T) {
	f := newFixture()
	f.queue.On("Enqueue", mock.Anything, mock.Anything).Return("", service.ErrDuplicateJob)

	_, err := f.o.RequestBackup(context.Background(), "t-1")
	assert.Equal(t, apperrors.CodeJobInProgress, appErr(t, err).Code)
}

func TestRequestRestore(t *testing.T) {
	f := newFixture()
	f.backups.items["b-ok"] = &entity.Backup{ID: "b-ok", TenantID: "t-1", Status: entity.BackupStatusCompleted, FileURL: "/b.sql.gz"}
	f.backups.items["b-failed"] = &entity.Backup{ID: "b-failed", TenantID: "t-1", Status: entity.BackupStatusFailed}
	f.backups.items["b-other"] = &entity.Backup{ID: "b-other", TenantID: "t-2", Status: entity.BackupStatusCompleted, FileURL: "/g.sql.gz"}
	f.queue.On("Enqueue", mock.Anything, mock.Anything).Return("job-1", nil)
	ctx := context.Background()

	_, err := f.o.RequestRestore(ctx, "t-1", "b-other")
	assert.Equal(t, apperrors.CodeBackupNotFound, appErr(t, err).Code)

	_, err = f.o.RequestRestore(ctx, "t-1", "b-failed")
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr(t, err).Code)

	_, err = f.o.RequestRestore(ctx, "t-1", "b-ok")
	require.NoError(t, err)
	job := f.queue.Calls[0].Arguments.Get(1).(service.Job)
	assert.Equal(t, "backup_restore_t-1", job.DedupKey)
	assert.Equal(t, "b-ok", job.Payload.(service.BackupPayload).BackupID)
}

func TestRunRestore(t *testing.T) {
	f := newFixture()
	f.backups.items["b-ok"] = &entity.Backup{ID: "b-ok", TenantID: "t-1", Status: entity.BackupStatusCompleted, FileURL: "/b.sql.gz"}

	require.NoError(t, f.o.RunRestore(context.Background(), service.BackupPayload{TenantID: "t-1", BackupID: "b-ok"}))
	require.Len(t, f.runner.calls, 2)
	assert.Equal(t, []string{"bench", "--site", "acme.pixone.com", "restore", "/b.sql.gz"}, f.runner.calls[0])
	assert.Equal(t, []string{"bench", "--site", "acme.pixone.com", "migrate"}, f.runner.calls[1])
	assert.Equal(t, service.EventRestoreCompleted, lastEvent(f))
}

func TestRunRestore_FailureSkipsMigrate(t *testing.T) {
	f := newFixture()
	f.backups.items["b-ok"] = &entity.Backup{ID: "b-ok", TenantID: "t-1", Status: entity.BackupStatusCompleted, FileURL: "/b.sql.gz"}
	f.runner.results = []service.CommandResult{{ExitCode: 1, Stderr: "corrupt archive"}}

	require.NoError(t, f.o.RunRestore(context.Background(), service.BackupPayload{TenantID: "t-1", BackupID: "b-ok"}))
	assert.Len(t, f.runner.calls, 1)
	assert.Equal(t, service.EventRestoreFailed, lastEvent(f))
}

func TestRunRestore_MissingFile(t *testing.T) {
	f := newFixture()
	f.backups.items["b-empty"] = &entity.Backup{ID: "b-empty", TenantID: "t-1", Status: entity.BackupStatusFailed}

	require.NoError(t, f.o.RunRestore(context.Background(), service.BackupPayload{TenantID: "t-1", BackupID: "b-empty"}))
	assert.Empty(t, f.runner.calls)
	assert.Empty(t, f.notifier.Calls)
}
