package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/service"
	apperrors "tenant-provisioner/pkg/errors"
)

type fakeResolver struct {
	addrs map[string][]string
}

func (r *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if a, ok := r.addrs[host]; ok {
		return a, nil
	}
	return nil, errors.New("no such host")
}

type fakeSiteDB struct {
	size float64
	err  error
	got  string
}

func (d *fakeSiteDB) Ping(context.Context) error { return nil }
func (d *fakeSiteDB) SizeMB(_ context.Context, schema string) (float64, error) {
	d.got = schema
	return d.size, d.err
}

func TestNormalizeDomain(t *testing.T) {
	cases := map[string]string{
		"ERP.Acme.com":  "erp.acme.com",
		" acme.io. ":    "acme.io",
		"a-b.c-d.co.uk": "a-b.c-d.co.uk",
	}
	for in, want := range cases {
		got, err := NormalizeDomain(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "localhost", "-acme.com", "acme-.com", "ac me.com", "acme..com"} {
		_, err := NormalizeDomain(bad)
		assert.Equal(t, apperrors.CodeDomainInvalid, appErr(t, err).Code, bad)
	}
}

func TestDomainManager_SetVerifyRemove(t *testing.T) {
	repo := newMemTenantRepo()
	ctx := context.Background()
	tenant := entity.NewTenant("c-1", "Acme", "acme", "pixone.com")
	tenant.ID = "t-1"
	tenant.Status = entity.TenantStatusActive
	repo.put(tenant)

	other := entity.NewTenant("c-2", "Globex", "globex", "pixone.com")
	other.ID = "t-2"
	other.CustomDomain = "erp.globex.com"
	repo.put(other)

	resolver := &fakeResolver{addrs: map[string][]string{"erp.acme.com": {"10.0.0.5"}}}
	m := NewDomainManager(repo, resolver, "10.0.0.5")

	_, err := m.Set(ctx, tenant, "erp.globex.com")
	assert.Equal(t, apperrors.CodeConflict, appErr(t, err).Code)

	records, err := m.Set(ctx, tenant, "ERP.acme.com")
	require.NoError(t, err)
	assert.Equal(t, []DNSRecord{
		{Type: "CNAME", Name: "erp.acme.com", Value: "acme.pixone.com."},
		{Type: "A", Name: "erp.acme.com", Value: "10.0.0.5"},
	}, records)
	assert.Equal(t, "erp.acme.com", repo.tenants["t-1"].CustomDomain)

	v, err := m.Verify(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, []string{"10.0.0.5"}, v.ResolvedIPs)

	resolver.addrs["erp.acme.com"] = []string{"192.0.2.1"}
	v, err = m.Verify(ctx, tenant)
	require.NoError(t, err)
	assert.False(t, v.Verified)

	require.NoError(t, m.Remove(ctx, tenant))
	assert.Empty(t, repo.tenants["t-1"].CustomDomain)

	_, err = m.Verify(ctx, tenant)
	assert.Equal(t, apperrors.CodeInvalidParam, appErr(t, err).Code)
}

func TestDomainManager_RequiresActive(t *testing.T) {
	m := NewDomainManager(newMemTenantRepo(), &fakeResolver{}, "")
	tenant := &entity.Tenant{ID: "t-1", Status: entity.TenantStatusSuspended}
	_, err := m.Set(context.Background(), tenant, "erp.acme.com")
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr(t, err).Code)
}

func TestDomainManager_UnresolvedDomain(t *testing.T) {
	m := NewDomainManager(newMemTenantRepo(), &fakeResolver{}, "")
	v, err := m.Verify(context.Background(), &entity.Tenant{CustomDomain: "erp.acme.com"})
	require.NoError(t, err)
	assert.False(t, v.Verified)
	assert.Contains(t, v.Message, "DNS not configured")
}

func TestSiteInspector_Health(t *testing.T) {
	runner := &fakeRunner{results: map[string]service.CommandResult{
		"doctor": {Stdout: "Workers online: 2"},
	}}
	ws := &fakeWorkspace{sites: map[string]bool{"acme.pixone.com": true}}
	i := NewSiteInspector(runner, ws, &fakeSiteDB{}, "bench", time.Second)

	h, err := i.Health(context.Background(), &entity.Tenant{SiteName: "acme.pixone.com", Status: entity.TenantStatusActive})
	require.NoError(t, err)
	assert.True(t, h.SiteExists)
	assert.True(t, h.IsHealthy)
	assert.Equal(t, "Workers online: 2", h.DoctorOutput)
	assert.Equal(t, []string{"bench", "--site", "acme.pixone.com", "doctor"}, runner.calls[0])

	h, err = i.Health(context.Background(), &entity.Tenant{SiteName: "gone.pixone.com"})
	require.NoError(t, err)
	assert.False(t, h.SiteExists)
	assert.False(t, h.IsHealthy)
	assert.Len(t, runner.calls, 1)

	_, err = i.Health(context.Background(), &entity.Tenant{})
	assert.Error(t, err)
}

func TestSiteInspector_Metrics(t *testing.T) {
	runner := &fakeRunner{results: map[string]service.CommandResult{
		"du": {Stdout: "412\t/bench/sites/acme.pixone.com\n"},
	}}
	ws := &fakeWorkspace{sites: map[string]bool{"acme.pixone.com": true}}
	db := &fakeSiteDB{size: 87.25}
	i := NewSiteInspector(runner, ws, db, "bench", time.Second)

	m, err := i.Metrics(context.Background(), &entity.Tenant{ID: "t-1", SiteName: "acme.pixone.com"})
	require.NoError(t, err)
	assert.Equal(t, "_acme_pixone_com", db.got)
	assert.Equal(t, 87.25, m.DBSizeMB)
	assert.Equal(t, 412.0, m.StorageMB)

	db.err = errors.New("access denied")
	m, err = i.Metrics(context.Background(), &entity.Tenant{ID: "t-1", SiteName: "acme.pixone.com", DBName: "_custom"})
	require.NoError(t, err)
	assert.Equal(t, "_custom", db.got)
	assert.Zero(t, m.DBSizeMB)
}

func TestParseDiskUsage(t *testing.T) {
	assert.Equal(t, 12.0, parseDiskUsage("12\t/path"))
	assert.Zero(t, parseDiskUsage(""))
	assert.Zero(t, parseDiskUsage("du: cannot access"))
}
