package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/domain/service"
)

// memTenantRepo 内存租户表，子域名唯一约束与部分唯一索引一致
type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*entity.Tenant
	updates int
	deleted []string
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: make(map[string]*entity.Tenant)}
}

func (r *memTenantRepo) holder(subdomain, excludeID string) bool {
	for _, t := range r.tenants {
		if t.ID != excludeID && t.Subdomain == subdomain && t.Status.HoldsNamespace() {
			return true
		}
	}
	return false
}

func (r *memTenantRepo) Create(_ context.Context, t *entity.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder(t.Subdomain, "") {
		return repository.ErrDuplicate
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	r.tenants[t.ID] = t
	return nil
}

func (r *memTenantRepo) GetByID(_ context.Context, id string) (*entity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tenants[id], nil
}

func (r *memTenantRepo) Update(_ context.Context, t *entity.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Status.HoldsNamespace() && r.holder(t.Subdomain, t.ID) {
		return repository.ErrDuplicate
	}
	r.updates++
	r.tenants[t.ID] = t
	return nil
}

func (r *memTenantRepo) UpdateColumns(ctx context.Context, t *entity.Tenant, _ ...string) error {
	return r.Update(ctx, t)
}

func (r *memTenantRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tenants, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *memTenantRepo) TouchLastAccessed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tenants[id]; ok {
		t.LastAccessedAt = &at
	}
	return nil
}

func (r *memTenantRepo) ListByCustomer(_ context.Context, customerID string, p repository.Pagination) (*repository.PagedResult[*entity.Tenant], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*entity.Tenant
	for _, t := range r.tenants {
		if t.CustomerID == customerID {
			items = append(items, t)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (r *memTenantRepo) SubdomainTaken(_ context.Context, subdomain, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holder(subdomain, excludeID), nil
}

func (r *memTenantRepo) CustomDomainTaken(_ context.Context, domain, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.ID != excludeID && t.CustomDomain == domain {
			return true, nil
		}
	}
	return false, nil
}

func (r *memTenantRepo) CountBySubscription(_ context.Context, subID string, excluded []entity.TenantStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tenants {
		if t.SubscriptionID != nil && *t.SubscriptionID == subID && !hasStatus(excluded, t.Status) {
			n++
		}
	}
	return n, nil
}

func (r *memTenantRepo) ListBySubscription(_ context.Context, subID string, statuses []entity.TenantStatus) ([]*entity.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Tenant
	for _, t := range r.tenants {
		if t.SubscriptionID != nil && *t.SubscriptionID == subID && hasStatus(statuses, t.Status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTenantRepo) ListStale(context.Context, entity.TenantStatus, time.Time) ([]*entity.Tenant, error) {
	return nil, nil
}

func (r *memTenantRepo) put(t *entity.Tenant) *entity.Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
	return t
}

func hasStatus(list []entity.TenantStatus, s entity.TenantStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memSubs struct {
	subs map[string]*entity.Subscription
}

func (m *memSubs) GetByID(_ context.Context, id string) (*entity.Subscription, error) {
	return m.subs[id], nil
}

func (m *memSubs) LatestActiveByCustomer(_ context.Context, customerID string) (*entity.Subscription, error) {
	for _, s := range m.subs {
		if s.CustomerID == customerID && s.IsActive() {
			return s, nil
		}
	}
	return nil, nil
}

func (m *memSubs) LockForUpdate(context.Context, string) error { return nil }

func (m *memSubs) ListUpdatedSince(context.Context, time.Time) ([]*entity.Subscription, error) {
	return nil, nil
}

// serialTx 以互斥锁代替订阅行锁：同一时刻只有一个事务在执行
type serialTx struct {
	mu  sync.Mutex
	txs int
}

func (s *serialTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++
	return fn(ctx)
}

type memPlans struct {
	plans map[string]*entity.Plan
}

func (m *memPlans) GetByID(_ context.Context, id string) (*entity.Plan, error) {
	return m.plans[id], nil
}

type memBackups struct {
	deletedFor []string
}

func (m *memBackups) Create(context.Context, *entity.Backup) error { return nil }
func (m *memBackups) GetByID(context.Context, string) (*entity.Backup, error) { return nil, nil }
func (m *memBackups) Update(context.Context, *entity.Backup) error { return nil }
func (m *memBackups) ListByTenant(_ context.Context, _ string, p repository.Pagination) (*repository.PagedResult[*entity.Backup], error) {
	return repository.NewPagedResult[*entity.Backup](nil, 0, p), nil
}
func (m *memBackups) DeleteByTenant(_ context.Context, tenantID string) error {
	m.deletedFor = append(m.deletedFor, tenantID)
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

type memProgress struct {
	mu   sync.Mutex
	prov map[string]*entity.ProvisioningProgress
}

func (m *memProgress) SetProvisioning(_ context.Context, p *entity.ProvisioningProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prov == nil {
		m.prov = make(map[string]*entity.ProvisioningProgress)
	}
	m.prov[p.TenantID] = p
	return nil
}

func (m *memProgress) GetProvisioning(_ context.Context, id string) (*entity.ProvisioningProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prov[id], nil
}

func (m *memProgress) SetModuleJob(context.Context, *entity.ModuleJobProgress) error { return nil }
func (m *memProgress) GetModuleJob(context.Context, string) (*entity.ModuleJobProgress, error) {
	return nil, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	results map[string]service.CommandResult
}

func (f *fakeRunner) Run(_ context.Context, args []string, _ time.Duration) service.CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	for _, a := range args {
		if res, ok := f.results[a]; ok {
			return res
		}
	}
	return service.CommandResult{}
}

type fakeWorkspace struct {
	sites   map[string]bool
	moveErr error
}

func (w *fakeWorkspace) SiteExists(site string) bool { return w.sites[site] }
func (w *fakeWorkspace) LockFile(site string) (string, bool) { return "", false }
func (w *fakeWorkspace) RemoveLock(string) error { return nil }
func (w *fakeWorkspace) FileSizeMB(string) float64 { return 0 }
func (w *fakeWorkspace) SiteDir(site string) string { return "/bench/sites/" + site }
func (w *fakeWorkspace) MoveSite(oldName, newName string) error {
	if w.moveErr != nil {
		return w.moveErr
	}
	if w.sites[newName] {
		return errors.New("destination exists")
	}
	delete(w.sites, oldName)
	w.sites[newName] = true
	return nil
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, n service.Notification) error {
	return m.Called(ctx, n).Error(0)
}
