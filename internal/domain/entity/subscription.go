// Package entity 定义领域实体
package entity

import (
	"time"
)

// SubscriptionStatus 订阅状态，由计费系统维护
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "Active"
	SubscriptionStatusTrial     SubscriptionStatus = "Trial"
	SubscriptionStatusPastDue   SubscriptionStatus = "Past Due"
	SubscriptionStatusExpired   SubscriptionStatus = "Expired"
	SubscriptionStatusCancelled SubscriptionStatus = "Cancelled"
)

// DefaultMaxCompanies 套餐未设置上限时的默认值
const DefaultMaxCompanies = 1

// Subscription 客户订阅
type Subscription struct {
	ID         string             `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CustomerID string             `json:"customer_id" gorm:"type:varchar(64);index;not null"`
	PlanID     string             `json:"plan_id" gorm:"type:uuid;index;not null"`
	Status     SubscriptionStatus `json:"status" gorm:"type:varchar(20);index;not null"`
	CreatedAt  time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time          `json:"updated_at" gorm:"autoUpdateTime;index"`
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}

// IsActive 订阅是否可用
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// Plan 套餐
type Plan struct {
	ID              string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Code            string    `json:"code" gorm:"type:varchar(50);uniqueIndex;not null"`
	Name            string    `json:"name" gorm:"type:varchar(100);not null"`
	MaxCompanies    int       `json:"max_companies" gorm:"default:1"`
	MaxUsers        int       `json:"max_users"`
	MaxStorageMB    int       `json:"max_storage_mb"`
	Price           float64   `json:"price" gorm:"type:numeric(12,2)"`
	BillingInterval string    `json:"billing_interval" gorm:"type:varchar(20)"`
	IsActive        bool      `json:"is_active" gorm:"default:true"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Plan) TableName() string {
	return "plans"
}

// CompanyLimit 返回公司数量上限，未设置时为 1
func (p *Plan) CompanyLimit() int {
	if p == nil || p.MaxCompanies <= 0 {
		return DefaultMaxCompanies
	}
	return p.MaxCompanies
}
