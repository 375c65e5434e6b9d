package lifecycle

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/domain/service"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/logger"
)

var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// NormalizeDomain 小写并校验域名格式
func NormalizeDomain(domain string) (string, error) {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" || len(domain) > 253 || !domainPattern.MatchString(domain) {
		return "", apperrors.ErrDomainInvalid.WithDetail("invalid domain format")
	}
	return domain, nil
}

// DNSRecord 需要客户配置的 DNS 记录
type DNSRecord struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DomainVerification 域名解析检查结果
type DomainVerification struct {
	Domain      string   `json:"domain"`
	Verified    bool     `json:"verified"`
	ResolvedIPs []string `json:"resolved_ips,omitempty"`
	Message     string   `json:"message"`
}

// DomainManager 自定义域名管理
type DomainManager struct {
	tenants  repository.TenantRepository
	resolver service.Resolver
	serverIP string
}

// NewDomainManager 创建自定义域名管理器
func NewDomainManager(tenants repository.TenantRepository, resolver service.Resolver, serverIP string) *DomainManager {
	return &DomainManager{tenants: tenants, resolver: resolver, serverIP: serverIP}
}

// Set 为 Active 租户绑定自定义域名，返回需配置的 DNS 记录
func (m *DomainManager) Set(ctx context.Context, tenant *entity.Tenant, domain string) ([]DNSRecord, error) {
	if tenant.Status != entity.TenantStatusActive {
		return nil, apperrors.ErrInvalidTransition.WithDetail("company must be active to set a custom domain")
	}
	domain, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	taken, err := m.tenants.CustomDomainTaken(ctx, domain, tenant.ID)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if taken {
		return nil, apperrors.ErrConflict.WithReason("domain_in_use").WithDetail("domain is already in use")
	}

	tenant.CustomDomain = domain
	if err := m.tenants.Update(ctx, tenant); err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	logger.Info(ctx, "custom domain set", "tenant_id", tenant.ID, "domain", domain)
	return m.Records(tenant), nil
}

// Records 自定义域名对应的 DNS 记录
func (m *DomainManager) Records(tenant *entity.Tenant) []DNSRecord {
	records := []DNSRecord{{Type: "CNAME", Name: tenant.CustomDomain, Value: tenant.SiteName + "."}}
	if m.serverIP != "" {
		records = append(records, DNSRecord{Type: "A", Name: tenant.CustomDomain, Value: m.serverIP})
	}
	return records
}

// Verify 检查自定义域名是否已解析
func (m *DomainManager) Verify(ctx context.Context, tenant *entity.Tenant) (*DomainVerification, error) {
	if tenant.CustomDomain == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("no custom domain configured")
	}

	out := &DomainVerification{Domain: tenant.CustomDomain}
	addrs, err := m.resolver.LookupHost(ctx, tenant.CustomDomain)
	if err != nil || len(addrs) == 0 {
		out.Message = "DNS not configured yet. Please add the required DNS records."
		return out, nil
	}
	out.ResolvedIPs = addrs
	out.Verified = m.serverIP == "" || contains(addrs, m.serverIP)
	if out.Verified {
		out.Message = "Domain verified!"
	} else {
		out.Message = fmt.Sprintf("Domain resolves to %s, expected %s", strings.Join(addrs, ", "), m.serverIP)
	}
	return out, nil
}

// Remove 解除自定义域名
func (m *DomainManager) Remove(ctx context.Context, tenant *entity.Tenant) error {
	if tenant.CustomDomain == "" {
		return nil
	}
	tenant.CustomDomain = ""
	if err := m.tenants.Update(ctx, tenant); err != nil {
		return apperrors.ErrDatabase.WithError(err)
	}
	logger.Info(ctx, "custom domain removed", "tenant_id", tenant.ID)
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
