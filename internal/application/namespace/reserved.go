package namespace

// builtinReserved 平台保留的子域名
var builtinReserved = []string{
	"www", "api", "app", "apps", "m", "mobile", "wap",
	"mail", "smtp", "imap", "pop", "pop3", "mx", "email",
	"ftp", "ssh", "sftp", "vpn", "proxy", "relay", "ns", "ns1", "ns2",
	"cdn", "static", "assets", "media", "files", "uploads", "img", "images",
	"pixone", "pix", "pix_one", "frappe", "erpnext", "pixfar",
	"auth", "oauth", "sso", "saml", "login", "logout", "register",
	"signup", "signin", "account", "accounts",
	"admin", "administrator", "root", "superuser", "portal",
	"console", "control", "panel", "cp", "management",
	"dashboard", "home", "index",
	"dev", "develop", "development", "staging", "stage", "test",
	"testing", "qa", "uat", "sandbox", "demo", "preview",
	"support", "help", "helpdesk", "docs", "documentation", "kb",
	"knowledgebase", "wiki", "forum", "community",
	"blog", "news", "press", "marketing", "landing",
	"status", "health", "ping", "monitor", "metrics",
	"billing", "payment", "payments", "invoice", "invoices",
	"checkout", "cart", "shop", "store", "marketplace",
	"system", "internal", "intranet", "localhost", "local",
	"terms", "privacy", "legal", "gdpr", "compliance",
}

// qualifiers 数字后缀用尽后的候选后缀，顺序固定
var qualifiers = []string{"hq", "erp", "app", "go", "io", "hub", "corp", "biz", "bd", "01"}
