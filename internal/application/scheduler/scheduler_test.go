package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/service"
)

type staleTenants struct {
	byStatus map[entity.TenantStatus][]*entity.Tenant
	before   time.Time
	updated  []*entity.Tenant
}

func (s *staleTenants) ListStale(_ context.Context, status entity.TenantStatus, before time.Time) ([]*entity.Tenant, error) {
	s.before = before
	return s.byStatus[status], nil
}

func (s *staleTenants) UpdateColumns(_ context.Context, t *entity.Tenant, _ ...string) error {
	s.updated = append(s.updated, t)
	return nil
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

type recordResubmit struct{ ids []string }

func (r *recordResubmit) Resubmit(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return nil
}

type subsSince struct {
	calls []time.Time
	subs  []*entity.Subscription
}

func (s *subsSince) ListUpdatedSince(_ context.Context, since time.Time) ([]*entity.Subscription, error) {
	s.calls = append(s.calls, since)
	return s.subs, nil
}

type scriptedGuard struct {
	fail map[string]bool
	seen []string
}

func (g *scriptedGuard) Reconcile(_ context.Context, sub *entity.Subscription) ([]string, []string, error) {
	g.seen = append(g.seen, sub.ID)
	if g.fail[sub.ID] {
		return nil, nil, errors.New("db down")
	}
	return []string{"t-9"}, nil, nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newScheduler(tenants TenantStore, subs SubscriptionLister, guard Reconciler, r Resubmitter, q service.JobQueue, probes []Probe) *Scheduler {
	cfg := &config.Config{}
	cfg.Provisioning.StaleAfter = 30 * time.Minute
	cfg.Bench.ProbeTimeout = time.Second
	s := New(tenants, subs, guard, r, q, probes, cfg)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestSweepStale(t *testing.T) {
	tenants := &staleTenants{byStatus: map[entity.TenantStatus][]*entity.Tenant{
		entity.TenantStatusProvisioning: {{ID: "t-1", Status: entity.TenantStatusProvisioning}},
		entity.TenantStatusQueued: {
			{ID: "t-2", Status: entity.TenantStatusQueued},
			{ID: "t-3", Status: entity.TenantStatusQueued},
		},
	}}
	q := new(mockQueue)
	q.On("Release", mock.Anything, "provision_t-1").Return(nil)
	q.On("Held", mock.Anything, "provision_t-2").Return(true, nil)
	q.On("Held", mock.Anything, "provision_t-3").Return(false, nil)
	r := &recordResubmit{}

	s := newScheduler(tenants, nil, nil, r, q, nil)
	require.NoError(t, s.SweepStale(context.Background()))

	assert.Equal(t, fixedNow.Add(-30*time.Minute), tenants.before)
	require.Len(t, tenants.updated, 1)
	expired := tenants.updated[0]
	assert.Equal(t, entity.TenantStatusFailed, expired.Status)
	assert.Contains(t, expired.ProvisioningNotes, NoteTimedOut)
	require.NotNil(t, expired.ProvisioningCompletedAt)
	assert.Equal(t, []string{"t-3"}, r.ids)
	q.AssertExpectations(t)
}

func TestSweepStale_RespectsJobTimeout(t *testing.T) {
	started := fixedNow.Add(-31 * time.Minute)
	longAgo := fixedNow.Add(-61 * time.Minute)
	running := &entity.Tenant{ID: "t-1", Status: entity.TenantStatusProvisioning, Modules: []string{"erpnext", "hrms"}, ProvisioningStartedAt: &started}
	overdue := &entity.Tenant{ID: "t-2", Status: entity.TenantStatusProvisioning, Modules: []string{"erpnext", "hrms"}, ProvisioningStartedAt: &longAgo}
	tenants := &staleTenants{byStatus: map[entity.TenantStatus][]*entity.Tenant{
		entity.TenantStatusProvisioning: {running, overdue},
	}}
	q := new(mockQueue)
	q.On("Release", mock.Anything, "provision_t-2").Return(nil)

	cfg := &config.Config{}
	cfg.Provisioning.StaleAfter = 30 * time.Minute
	cfg.Bench.LongTimeout = 10 * time.Minute
	s := New(tenants, nil, nil, &recordResubmit{}, q, nil, cfg)
	s.now = func() time.Time { return fixedNow }

	// 两个模块：50m 任务时限加余量
	assert.Equal(t, 60*time.Minute, s.Deadline(running))
	assert.Equal(t, 40*time.Minute, s.Deadline(&entity.Tenant{}))

	require.NoError(t, s.SweepStale(context.Background()))
	assert.Equal(t, entity.TenantStatusProvisioning, running.Status)
	require.Len(t, tenants.updated, 1)
	assert.Equal(t, "t-2", tenants.updated[0].ID)
	q.AssertNotCalled(t, "Release", mock.Anything, "provision_t-1")
	q.AssertExpectations(t)
}

func TestEnforcePlans_Watermark(t *testing.T) {
	subs := &subsSince{subs: []*entity.Subscription{{ID: "s-1"}, {ID: "s-2"}}}
	guard := &scriptedGuard{fail: map[string]bool{"s-2": true}}
	s := newScheduler(nil, subs, guard, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.EnforcePlans(ctx))
	assert.Equal(t, []string{"s-1", "s-2"}, guard.seen)

	// s-2 失败，水位不前进
	require.NoError(t, s.EnforcePlans(ctx))
	assert.True(t, subs.calls[1].IsZero())

	guard.fail = nil
	require.NoError(t, s.EnforcePlans(ctx))
	require.NoError(t, s.EnforcePlans(ctx))
	assert.Equal(t, fixedNow, subs.calls[3])
}

func TestProbePlatform(t *testing.T) {
	var calls atomic.Int32
	probes := []Probe{
		{Component: "postgres", Check: func(context.Context) error { calls.Add(1); return nil }},
		{Component: "redis", Check: func(context.Context) error { calls.Add(1); return errors.New("refused") }},
		{Component: "bench", Check: func(ctx context.Context) error {
			calls.Add(1)
			_, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline")
			}
			return nil
		}},
	}
	s := newScheduler(nil, nil, nil, nil, nil, probes)
	require.NoError(t, s.ProbePlatform(context.Background()))
	assert.EqualValues(t, 3, calls.Load())
}

func TestStart_InvalidSpec(t *testing.T) {
	s := newScheduler(nil, nil, nil, nil, nil, nil)
	s.cfg.StaleSweepSpec = "not a spec"
	assert.Error(t, s.Start(context.Background()))
}

func TestStartStop(t *testing.T) {
	s := newScheduler(nil, nil, nil, nil, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.cron.Entries(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
