// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// TenantStatus 租户状态
type TenantStatus string

const (
	TenantStatusDraft        TenantStatus = "Draft"
	TenantStatusQueued       TenantStatus = "Queued"
	TenantStatusProvisioning TenantStatus = "Provisioning"
	TenantStatusActive       TenantStatus = "Active"
	TenantStatusFailed       TenantStatus = "Failed"
	TenantStatusSuspended    TenantStatus = "Suspended"
	TenantStatusDeleted      TenantStatus = "Deleted"
)

// ReleasedStatuses 不再占用子域名与配额的状态
var ReleasedStatuses = []TenantStatus{TenantStatusDeleted, TenantStatusFailed}

// HoldsNamespace 该状态是否占用子域名
func (s TenantStatus) HoldsNamespace() bool {
	return s != TenantStatusDeleted && s != TenantStatusFailed
}

// SiteStatus 实例状态
type SiteStatus string

const (
	SiteStatusQueued   SiteStatus = "Queued"
	SiteStatusCreating SiteStatus = "Creating"
	SiteStatusActive   SiteStatus = "Active"
	SiteStatusRenaming SiteStatus = "Renaming"
	SiteStatusDeleted  SiteStatus = "Deleted"
)

// Tenant 客户公司（租户）实体
type Tenant struct {
	ID                      string       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name                    string       `json:"name" gorm:"type:varchar(255);not null"`
	Abbreviation            string       `json:"abbreviation" gorm:"type:varchar(10)"`
	Subdomain               string       `json:"subdomain" gorm:"type:varchar(63);index;not null"`
	SiteName                string       `json:"site_name" gorm:"type:varchar(255);index"`
	SiteURL                 string       `json:"site_url" gorm:"type:varchar(255)"`
	CustomDomain            string       `json:"custom_domain,omitempty" gorm:"type:varchar(255);index"`
	CustomerID              string       `json:"customer_id" gorm:"type:varchar(64);index;not null"`
	SubscriptionID          *string      `json:"subscription_id,omitempty" gorm:"type:uuid;index"`
	AdminEmail              string       `json:"admin_email" gorm:"type:varchar(255)"`
	AdminPassword           string       `json:"-" gorm:"type:varchar(255)"`
	Modules                 []string     `json:"modules" gorm:"type:jsonb;serializer:json"`
	DefaultCurrency         string       `json:"default_currency,omitempty" gorm:"type:varchar(8)"`
	Country                 string       `json:"country,omitempty" gorm:"type:varchar(100)"`
	Status                  TenantStatus `json:"status" gorm:"type:varchar(20);index;not null;default:'Draft'"`
	SiteStatus              SiteStatus   `json:"site_status" gorm:"type:varchar(20)"`
	DBName                  string       `json:"db_name,omitempty" gorm:"type:varchar(100)"`
	ProvisioningNotes       string       `json:"provisioning_notes,omitempty" gorm:"type:text"`
	SuspensionReason        string       `json:"suspension_reason,omitempty" gorm:"type:varchar(255)"`
	ProvisioningStartedAt   *time.Time   `json:"provisioning_started_at,omitempty"`
	ProvisioningCompletedAt *time.Time   `json:"provisioning_completed_at,omitempty"`
	DeletionRequestedAt     *time.Time   `json:"deletion_requested_at,omitempty"`
	LastAccessedAt          *time.Time   `json:"last_accessed_at,omitempty"`
	CreatedAt               time.Time    `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt               time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant 创建草稿状态租户
func NewTenant(customerID, name, subdomain, baseDomain string) *Tenant {
	siteName := subdomain + "." + baseDomain
	return &Tenant{
		Name:         name,
		Abbreviation: Abbreviate(name),
		Subdomain:    subdomain,
		SiteName:     siteName,
		SiteURL:      "https://" + siteName,
		CustomerID:   customerID,
		Status:       TenantStatusDraft,
		SiteStatus:   SiteStatusQueued,
	}
}

// IsOwnedBy 是否属于该客户
func (t *Tenant) IsOwnedBy(customerID string) bool {
	return t.CustomerID == customerID
}

// AppendNote 追加开通备注
func (t *Tenant) AppendNote(note string) {
	if t.ProvisioningNotes == "" {
		t.ProvisioningNotes = note
		return
	}
	t.ProvisioningNotes += "\n" + note
}

// SiteDBName 实例数据库名：下划线前缀，点号替换为下划线
func SiteDBName(siteName string) string {
	return "_" + strings.ReplaceAll(siteName, ".", "_")
}

// Abbreviate 生成公司缩写
// 多个单词取前 5 个单词首字母，否则取前 5 个字符；仅保留 [A-Z0-9]，最长 10
func Abbreviate(name string) string {
	words := strings.Fields(name)
	var raw string
	switch {
	case len(words) > 1:
		if len(words) > 5 {
			words = words[:5]
		}
		var b strings.Builder
		for _, w := range words {
			b.WriteString(string([]rune(w)[:1]))
		}
		raw = b.String()
	default:
		r := []rune(strings.TrimSpace(name))
		if len(r) > 5 {
			r = r[:5]
		}
		raw = string(r)
	}

	var out strings.Builder
	for _, c := range strings.ToUpper(raw) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out.WriteRune(c)
		}
	}
	abbr := out.String()
	if len(abbr) > 10 {
		abbr = abbr[:10]
	}
	return abbr
}
