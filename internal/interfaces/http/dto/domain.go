package dto

import "tenant-provisioner/internal/application/namespace"

// BaseDomainResponse 主域名信息
type BaseDomainResponse struct {
	BaseDomain string `json:"base_domain"`
	MaxLength  int    `json:"max_length"`
}

// SuggestResponse 名称建议
type SuggestResponse struct {
	BusinessName string                 `json:"business_name"`
	BaseSlug     string                 `json:"base_slug"`
	Suggestions  []namespace.Suggestion `json:"suggestions"`
}

// CustomDomainRequest 设置自定义域名
type CustomDomainRequest struct {
	Domain string `json:"domain" binding:"required"`
}

// EnforceResponse 配额重算结果
type EnforceResponse struct {
	SubscriptionID string   `json:"subscription_id"`
	Suspended      []string `json:"suspended"`
	Reactivated    []string `json:"reactivated"`
}
