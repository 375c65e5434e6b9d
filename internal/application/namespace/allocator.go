// Package namespace 负责子域名校验、保留名过滤与候选建议
package namespace

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/pkg/metrics"
)

// 不可用原因
const (
	ReasonTooShort      = "too_short"
	ReasonTooLong       = "too_long"
	ReasonInvalidFormat = "invalid_format"
	ReasonReserved      = "reserved"
	ReasonTaken         = "taken"
)

const (
	minLength        = 3
	defaultMaxLength = 63
	defaultSuggest   = 5
	maxSuggest       = 10
	minSlugLength    = 2
	defaultDomain    = "pixone.com"
)

var subdomainRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// TakenChecker 查询子域名是否被未释放的租户占用
type TakenChecker interface {
	SubdomainTaken(ctx context.Context, subdomain, excludeID string) (bool, error)
}

// CheckResult 子域名检查结果
type CheckResult struct {
	Available   bool     `json:"available"`
	Subdomain   string   `json:"subdomain"`
	FullDomain  string   `json:"full_domain"`
	Reason      string   `json:"reason,omitempty"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// Suggestion 名称建议
type Suggestion struct {
	Subdomain  string `json:"subdomain"`
	FullDomain string `json:"full_domain"`
	Available  bool   `json:"available"`
}

// AllocationError 子域名不可用
type AllocationError struct {
	Subdomain   string
	Reason      string
	Message     string
	Suggestions []string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("subdomain %q unavailable: %s", e.Subdomain, e.Reason)
}

// ValidationError 无法从输入生成子域名
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Allocator 子域名分配器
type Allocator struct {
	taken      TakenChecker
	baseDomain string
	maxLength  int
	suggestN   int
	reserved   map[string]struct{}
}

// NewAllocator 创建分配器
func NewAllocator(taken TakenChecker, cfg *config.NamespaceConfig) *Allocator {
	a := &Allocator{
		taken:      taken,
		baseDomain: defaultDomain,
		maxLength:  defaultMaxLength,
		suggestN:   defaultSuggest,
		reserved:   make(map[string]struct{}, len(builtinReserved)),
	}
	for _, r := range builtinReserved {
		a.reserved[r] = struct{}{}
	}
	if cfg != nil {
		if d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(cfg.BaseDomain)), "."); d != "" {
			a.baseDomain = d
		}
		if cfg.MaxLength > 0 && cfg.MaxLength < defaultMaxLength {
			a.maxLength = cfg.MaxLength
		}
		if cfg.SuggestionCount > 0 {
			a.suggestN = cfg.SuggestionCount
		}
		for _, r := range cfg.ReservedExtra {
			if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
				a.reserved[r] = struct{}{}
			}
		}
	}
	return a
}

// BaseDomain 平台主域名
func (a *Allocator) BaseDomain() string { return a.baseDomain }

// MaxLength 子域名最大长度
func (a *Allocator) MaxLength() int { return a.maxLength }

// FullDomain 完整域名
func (a *Allocator) FullDomain(subdomain string) string {
	return subdomain + "." + a.baseDomain
}

// IsReserved 是否保留名
func (a *Allocator) IsReserved(subdomain string) bool {
	_, ok := a.reserved[subdomain]
	return ok
}

// Check 检查子域名可用性，不可用时附带建议
func (a *Allocator) Check(ctx context.Context, candidate string) (*CheckResult, error) {
	return a.check(ctx, candidate, "")
}

// Validate 校验子域名可用，excludeID 用于重试时排除自身
func (a *Allocator) Validate(ctx context.Context, candidate, excludeID string) (string, error) {
	res, err := a.check(ctx, candidate, excludeID)
	if err != nil {
		return "", err
	}
	if !res.Available {
		return "", &AllocationError{
			Subdomain:   res.Subdomain,
			Reason:      res.Reason,
			Message:     res.Message,
			Suggestions: res.Suggestions,
		}
	}
	return res.Subdomain, nil
}

func (a *Allocator) check(ctx context.Context, candidate, excludeID string) (*CheckResult, error) {
	slug := strings.ToLower(strings.TrimSpace(candidate))
	res := &CheckResult{
		Subdomain:   slug,
		FullDomain:  a.FullDomain(slug),
		Suggestions: []string{},
	}

	var err error
	switch {
	case len(slug) < minLength:
		res.Reason = ReasonTooShort
		res.Message = fmt.Sprintf("Subdomain must be at least %d characters.", minLength)
	case len(slug) > a.maxLength:
		res.Reason = ReasonTooLong
		res.Message = fmt.Sprintf("Subdomain cannot exceed %d characters.", a.maxLength)
	case !subdomainRe.MatchString(slug):
		res.Reason = ReasonInvalidFormat
		res.Message = "Subdomain may only contain lowercase letters, numbers, and hyphens. It must start and end with a letter or number."
		res.Suggestions, err = a.Suggestions(ctx, Slugify(candidate), a.suggestN)
	case a.IsReserved(slug):
		res.Reason = ReasonReserved
		res.Message = fmt.Sprintf("'%s' is a reserved name and cannot be registered.", slug)
		res.Suggestions, err = a.Suggestions(ctx, slug, a.suggestN)
	default:
		taken, terr := a.taken.SubdomainTaken(ctx, slug, excludeID)
		if terr != nil {
			return nil, fmt.Errorf("failed to check subdomain: %w", terr)
		}
		if taken {
			res.Reason = ReasonTaken
			res.Message = fmt.Sprintf("'%s' is already taken.", res.FullDomain)
			res.Suggestions, err = a.Suggestions(ctx, slug, a.suggestN)
		} else {
			res.Available = true
			res.Message = fmt.Sprintf("'%s' is available!", res.FullDomain)
		}
	}
	if err != nil {
		return nil, err
	}

	reason := res.Reason
	if res.Available {
		reason = "available"
	}
	metrics.SubdomainChecks.WithLabelValues(reason).Inc()
	return res, nil
}

// qualifies 候选是否合法且未被占用
func (a *Allocator) qualifies(ctx context.Context, candidate string) (bool, error) {
	if len(candidate) < minLength || len(candidate) > a.maxLength {
		return false, nil
	}
	if !subdomainRe.MatchString(candidate) || a.IsReserved(candidate) {
		return false, nil
	}
	taken, err := a.taken.SubdomainTaken(ctx, candidate, "")
	if err != nil {
		return false, fmt.Errorf("failed to check suggestion: %w", err)
	}
	return !taken, nil
}

// Suggestions 基于 base 生成至多 n 个可用候选
// 先数字后缀 1..99，再固定后缀列表，顺序稳定
func (a *Allocator) Suggestions(ctx context.Context, base string, n int) ([]string, error) {
	out := []string{}
	if base == "" || n <= 0 {
		return out, nil
	}

	candidates := make([]string, 0, 99+len(qualifiers))
	for i := 1; i <= 99; i++ {
		candidates = append(candidates, fmt.Sprintf("%s%d", base, i))
	}
	for _, q := range qualifiers {
		candidates = append(candidates, base+"-"+q)
	}

	for _, c := range candidates {
		if len(out) >= n {
			break
		}
		ok, err := a.qualifies(ctx, c)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// SuggestForName 根据企业名称生成建议，返回基础 slug 与候选列表
func (a *Allocator) SuggestForName(ctx context.Context, businessName string, count int) (string, []Suggestion, error) {
	if count <= 0 {
		count = defaultSuggest
	}
	if count > maxSuggest {
		count = maxSuggest
	}

	slug := Slugify(businessName)
	if len(slug) > a.maxLength {
		slug = strings.TrimRight(slug[:a.maxLength], "-")
	}
	if len(slug) < minSlugLength {
		return "", nil, &ValidationError{
			Message: "Could not generate a valid subdomain from the given name. Please enter a name using English letters.",
		}
	}

	var candidates []string
	ok, err := a.qualifies(ctx, slug)
	if err != nil {
		return "", nil, err
	}
	if ok {
		candidates = append(candidates, slug)
	}
	more, err := a.Suggestions(ctx, slug, count+2)
	if err != nil {
		return "", nil, err
	}
	candidates = append(candidates, more...)

	seen := make(map[string]struct{}, len(candidates))
	result := make([]Suggestion, 0, count)
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		result = append(result, Suggestion{Subdomain: c, FullDomain: a.FullDomain(c), Available: true})
		if len(result) == count {
			break
		}
	}
	return slug, result, nil
}
